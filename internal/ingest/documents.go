package ingest

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/Volpestyle/basic-budget-sub003/constants"
)

// documentType is the content type path is submitted as, or "" when the file
// is not a paystub format the extractor reads. Spool ".done" markers and
// anything else without a known extension come back empty.
func documentType(path string) string {
	return constants.ContentTypeForExt(filepath.Ext(path))
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// skipEntry applies the hidden-entry policy inside a WalkDir callback. Hidden
// directories are pruned with filepath.SkipDir; the root itself is never skipped.
func skipEntry(root, path string, d fs.DirEntry, skipHidden bool) (bool, error) {
	if !skipHidden || path == root || !hidden(path) {
		return false, nil
	}
	if d.IsDir() {
		return true, filepath.SkipDir
	}
	return true, nil
}

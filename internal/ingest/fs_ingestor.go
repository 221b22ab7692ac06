package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

// Document is a file read from disk and ready for submission.
type Document struct {
	Path        string
	Payload     []byte
	ContentType string
	HashHex     string
}

// ReadDocument loads path and derives its content type from the extension.
func ReadDocument(path string) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, errors.Wrap(err, "abs path")
	}
	contentType := documentType(abs)
	if contentType == "" {
		return Document{}, errors.Wrapf(common.ErrUnsupportedContent, "unsupported or missing extension %q", filepath.Ext(abs))
	}
	payload, err := os.ReadFile(abs)
	if err != nil {
		return Document{}, errors.Wrapf(err, "read %s", abs)
	}
	sum := sha256.Sum256(payload)
	return Document{
		Path:        abs,
		Payload:     payload,
		ContentType: contentType,
		HashHex:     hex.EncodeToString(sum[:]),
	}, nil
}

// FSIngestor reads documents from the local filesystem and submits them.
// Files whose content was already submitted by this ingestor are reported as
// deduplicated instead of being processed twice.
type FSIngestor struct {
	submitter Submitter
	logger    *slog.Logger

	mu   sync.Mutex
	seen map[string]string // sha256 -> job ID
}

func NewFSIngestor(submitter Submitter, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{submitter: submitter, logger: logger, seen: make(map[string]string)}
}

func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		i.logger.Warn("skipping file", "path", path, "error", err)
		return IngestionResult{SourcePath: path}, err
	}
	out := IngestionResult{
		SourcePath:  doc.Path,
		HashHex:     doc.HashHex,
		ContentType: doc.ContentType,
		Size:        int64(len(doc.Payload)),
	}

	i.mu.Lock()
	jobID, dup := i.seen[doc.HashHex]
	i.mu.Unlock()
	if dup {
		out.JobID = jobID
		out.Deduplicated = true
		i.logger.Info("duplicate document, reusing job", "path", doc.Path, "job_id", jobID)
		return out, nil
	}

	jobID, err = i.submitter.Submit(ctx, doc.Payload, doc.ContentType, map[string]any{
		"source_path": doc.Path,
		"sha256":      doc.HashHex,
	})
	if err != nil {
		i.logger.Error("submit failed", "path", doc.Path, "error", err)
		return out, err
	}
	i.mu.Lock()
	i.seen[doc.HashHex] = jobID
	i.mu.Unlock()

	out.JobID = jobID
	i.logger.Info("document submitted", "path", doc.Path, "job_id", jobID, "content_type", doc.ContentType)
	return out, nil
}

// IngestDirectory walks root, skips hidden if requested,
// and calls IngestPath for each file. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.Wrap(common.ErrInvalidInput, "root path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skip, err := skipEntry(root, path, d, skipHidden); skip {
			return err
		}
		if d.IsDir() || documentType(path) == "" {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, errors.Wrap(err, "walk")
	}
	return results, stats, nil
}

package constants

import "strings"

// Content types accepted by the extraction engine.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypePNG  = "image/png"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeTIFF = "image/tiff"
	ContentTypeText = "text/plain"
)

// Format is the coarse document kind derived from a content type.
type Format string

const (
	FormatPDF   Format = "PDF"
	FormatImage Format = "IMAGE"
	FormatText  Format = "TXT"
)

// AllowedExtensions holds the default allowed file extensions for directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"tif":  {},
	"tiff": {},
	"txt":  {},
}

var extContentTypes = map[string]string{
	"pdf":  ContentTypePDF,
	"jpg":  ContentTypeJPEG,
	"jpeg": ContentTypeJPEG,
	"png":  ContentTypePNG,
	"tif":  ContentTypeTIFF,
	"tiff": ContentTypeTIFF,
	"txt":  ContentTypeText,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeForExt returns the content type for a file extension, or "" when unsupported.
func ContentTypeForExt(ext string) string {
	return extContentTypes[NormalizeExt(ext)]
}

// NormalizeContentType strips parameters ("; charset=utf-8") and lowercases.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// MapContentTypeToFormat returns the document format, or "" when the type is unsupported.
func MapContentTypeToFormat(ct string) Format {
	switch NormalizeContentType(ct) {
	case ContentTypePDF:
		return FormatPDF
	case ContentTypePNG, ContentTypeJPEG, "image/jpg", ContentTypeTIFF:
		return FormatImage
	case ContentTypeText:
		return FormatText
	default:
		return ""
	}
}

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Lang     string // default "eng"
	DPI      int    // rasterization DPI for scanned PDFs, default 300
	MaxPages int    // 0 = no limit

	// WorkDir holds temp files; empty means os.TempDir().
	WorkDir string
}

// Result is the text recovered from one document.
type Result struct {
	Text     string
	Pages    int
	Source   constants.FieldSource
	Method   string // "text" | "pdf-text" | "pdf-ocr" | "image-ocr"
	Duration time.Duration
	Warnings []string
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// NewExtractor builds an extractor. A nil runner uses ExecRunner.
func NewExtractor(cfg Config, runner Runner, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: runner, logger: logger}
}

// ExtractBytes recovers text from an in-memory document. PDFs use their text
// layer when present and fall back to rasterize+OCR.
func (e *Extractor) ExtractBytes(ctx context.Context, payload []byte, contentType string) (Result, error) {
	start := time.Now()
	if len(payload) == 0 {
		return Result{}, common.NewExtractionError(common.CodeExtractionFailed, "empty payload", nil)
	}

	format := constants.MapContentTypeToFormat(contentType)
	if format == "" {
		e.logger.Error("unsupported content type", "content_type", contentType)
		return Result{}, common.NewExtractionError(common.CodeUnsupportedContent,
			fmt.Sprintf("unsupported content type %q", contentType), common.ErrUnsupportedContent)
	}
	if format == constants.FormatText {
		return Result{
			Text:     Normalize(string(payload)),
			Pages:    1,
			Source:   constants.SourcePDFText,
			Method:   "text",
			Duration: time.Since(start),
		}, nil
	}

	tmpDir, err := os.MkdirTemp(e.cfg.WorkDir, "paystub-*")
	if err != nil {
		return Result{}, errors.Wrap(err, "create work dir")
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("failed to remove work dir", "path", tmpDir, "error", err)
		}
	}()

	ext := "pdf"
	if format == constants.FormatImage {
		ext = imageExt(contentType)
	}
	path := filepath.Join(tmpDir, "document."+ext)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return Result{}, errors.Wrap(err, "write payload")
	}

	var res Result
	switch format {
	case constants.FormatPDF:
		res, err = e.extractPDF(ctx, path, tmpDir)
	default:
		res, err = e.extractImage(ctx, path)
	}
	res.Duration = time.Since(start)
	if err != nil {
		return res, common.NewExtractionError(common.CodeExtractionFailed, "text extraction failed", err)
	}
	e.logger.Debug("text extracted",
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path, tmpDir string) (Result, error) {
	text, pages, err := e.pdfToText(ctx, path)
	if err == nil && strings.TrimSpace(text) != "" {
		return Result{Text: Normalize(text), Pages: pages, Source: constants.SourcePDFText, Method: "pdf-text"}, nil
	}
	var warns []string
	if err != nil {
		warns = append(warns, err.Error())
	}
	e.logger.Debug("no pdf text layer, falling back to ocr", "path", path)

	text, pages, w, err := e.pdfToOCR(ctx, path, tmpDir)
	warns = append(warns, w...)
	if err != nil {
		return Result{Source: constants.SourceOCR, Warnings: warns}, err
	}
	return Result{Text: Normalize(text), Pages: pages, Source: constants.SourceOCR, Method: "pdf-ocr", Warnings: warns}, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (string, int, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", 0, err
	}
	text := string(out)
	// form feed separates pages
	return text, 1 + strings.Count(strings.TrimRight(text, "\f"), "\f"), nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path, tmpDir string) (string, int, []string, error) {
	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	if _, err := e.runner.Run(ctx, e.cfg.Pdftoppm, "-r", fmt.Sprintf("%d", e.cfg.DPI), "-png", path, prefix); err != nil {
		return "", 0, nil, err
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, nil, errors.New("pdftoppm produced no pages")
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		txt, err := e.tesseract(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(txt)
	}
	if b.Len() == 0 {
		return "", len(matches), warns, errors.New("ocr produced no text")
	}
	return b.String(), len(matches), warns, nil
}

func (e *Extractor) extractImage(ctx context.Context, path string) (Result, error) {
	txt, err := e.tesseract(ctx, path)
	if err != nil {
		return Result{Source: constants.SourceOCR}, err
	}
	return Result{Text: Normalize(txt), Pages: 1, Source: constants.SourceOCR, Method: "image-ocr"}, nil
}

func (e *Extractor) tesseract(ctx context.Context, path string) (string, error) {
	// tesseract <file> stdout -l <lang>
	out, err := e.runner.Run(ctx, e.cfg.Tesseract, path, "stdout", "-l", e.cfg.Lang)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func imageExt(contentType string) string {
	switch constants.NormalizeContentType(contentType) {
	case constants.ContentTypePNG:
		return "png"
	case constants.ContentTypeTIFF:
		return "tiff"
	default:
		return "jpg"
	}
}

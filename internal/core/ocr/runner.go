package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

// stderrTail caps how much tool output a failure carries.
const stderrTail = 2 << 10

// Runner invokes an external text extraction tool and returns its stdout.
// Failures come back as extraction errors wrapping a *ToolError.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) ([]byte, error)
}

// ToolError describes a failed pdftotext, pdftoppm or tesseract run.
type ToolError struct {
	Tool     string
	ExitCode int // -1 when the tool never exited, e.g. not found or killed
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ExecRunner runs tools with os/exec, logging each run against the job and
// worker carried by ctx.
type ExecRunner struct {
	Logger *slog.Logger
}

func (r ExecRunner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		"job_id", common.JobIDFromContext(ctx),
		"worker_id", common.WorkerIDFromContext(ctx),
		"tool", tool,
	)
	logger.Debug("running tool", "args", strings.Join(args, " "))

	start := time.Now()
	cmd := exec.CommandContext(ctx, tool, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		logger.Debug("tool finished", "duration_ms", elapsed.Milliseconds(), "stdout_bytes", out.Len())
		return out.Bytes(), nil
	}

	te := &ToolError{Tool: tool, ExitCode: -1, Stderr: tail(errb.String(), stderrTail), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		te.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		te.Err = errors.Wrap(ctxErr, err.Error())
	}
	logger.Warn("tool failed",
		"duration_ms", elapsed.Milliseconds(),
		"exit_code", te.ExitCode,
		"stderr", te.Stderr,
		"error", err,
	)
	return nil, common.NewExtractionError(common.CodeExtractionFailed, tool+" failed", te)
}

// tail keeps the last n bytes of trimmed tool output; the end of stderr is
// where tools report what went wrong.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

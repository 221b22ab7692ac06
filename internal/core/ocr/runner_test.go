package ocr

import (
	"context"
	"os/exec"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerReturnsStdout(t *testing.T) {
	requireShell(t)
	ctx := common.WithWorkerID(common.WithJobID(context.Background(), "job-1"), 2)

	out, err := ExecRunner{}.Run(ctx, "sh", "-c", "printf 'Net Pay 10.00'")
	require.NoError(t, err)
	assert.Equal(t, "Net Pay 10.00", string(out))
}

func TestExecRunnerFailureIsTypedExtractionError(t *testing.T) {
	requireShell(t)

	_, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo 'Error: cannot open file' >&2; exit 3")
	require.Error(t, err)
	assert.True(t, common.IsExtractionError(err))

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, common.CodeExtractionFailed, appErr.Code)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "sh", te.Tool)
	assert.Equal(t, 3, te.ExitCode)
	assert.Equal(t, "Error: cannot open file", te.Stderr)
	assert.Contains(t, err.Error(), "cannot open file")
}

func TestExecRunnerMissingTool(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), "paystub-no-such-tool")
	require.Error(t, err)
	assert.True(t, common.IsExtractionError(err))

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, -1, te.ExitCode)
}

func TestTailKeepsEndOfOutput(t *testing.T) {
	assert.Equal(t, "short", tail("  short\n", 10))

	long := strings.Repeat("x", 50) + "fatal: bad page"
	got := tail(long, 15)
	assert.Equal(t, "...fatal: bad page", got)
}

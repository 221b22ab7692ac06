package constants

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		wantErr string
	}{
		{"pending to processing", JobStatusPending, JobStatusProcessing, ""},
		{"processing to completed", JobStatusProcessing, JobStatusCompleted, ""},
		{"processing to failed", JobStatusProcessing, JobStatusFailed, ""},
		{"pending skips processing", JobStatusPending, JobStatusCompleted, "invalid transition from pending to completed"},
		{"completed is terminal", JobStatusCompleted, JobStatusProcessing, "invalid transition from completed to processing"},
		{"failed is terminal", JobStatusFailed, JobStatusPending, "invalid transition from failed to pending"},
		{"unknown source", JobStatus("queued"), JobStatusProcessing, "unknown source status: queued"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantErr)
			assert.True(t, errors.Is(err, ErrInvalidTransition))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusPending.IsTerminal())
	assert.False(t, JobStatusProcessing.IsTerminal())
	assert.False(t, JobStatus("queued").Valid())
}

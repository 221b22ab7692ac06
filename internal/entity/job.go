package entity

import (
	"maps"
	"time"

	"github.com/Volpestyle/basic-budget-sub003/constants"
)

// Job is one submitted unit of extraction work. It is immutable once enqueued.
type Job struct {
	ID          string
	Payload     []byte
	ContentType string
	Metadata    map[string]any
	SubmittedAt time.Time
}

// ProcessingRequest is the tracked lifecycle record of a job.
type ProcessingRequest struct {
	ID          string              `json:"id"`
	Status      constants.JobStatus `json:"status"`
	FileType    string              `json:"file_type"`
	FileSize    int64               `json:"file_size"`
	Metadata    map[string]any      `json:"metadata,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Result      *ExtractedDocument  `json:"result,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// NewProcessingRequest creates the pending record for job.
func NewProcessingRequest(job Job, now time.Time) ProcessingRequest {
	return ProcessingRequest{
		ID:        job.ID,
		Status:    constants.JobStatusPending,
		FileType:  job.ContentType,
		FileSize:  int64(len(job.Payload)),
		Metadata:  maps.Clone(job.Metadata),
		CreatedAt: job.SubmittedAt,
		UpdatedAt: now,
	}
}

// Advance moves the record to status. Terminal transitions stamp CompletedAt;
// invalid transitions leave the record untouched.
func (r *ProcessingRequest) Advance(status constants.JobStatus, now time.Time) error {
	if err := constants.ValidateTransition(r.Status, status); err != nil {
		return err
	}
	r.Status = status
	r.UpdatedAt = now
	if status.IsTerminal() {
		t := now
		r.CompletedAt = &t
	}
	return nil
}

// Complete moves a processing record to completed with doc as its result.
func (r *ProcessingRequest) Complete(doc *ExtractedDocument, now time.Time) error {
	if err := r.Advance(constants.JobStatusCompleted, now); err != nil {
		return err
	}
	r.Result = doc
	r.Error = ""
	return nil
}

// Fail moves a processing record to failed, keeping message verbatim.
func (r *ProcessingRequest) Fail(message string, now time.Time) error {
	if err := r.Advance(constants.JobStatusFailed, now); err != nil {
		return err
	}
	r.Result = nil
	r.Error = message
	return nil
}

// Clone returns a deep copy.
func (r ProcessingRequest) Clone() ProcessingRequest {
	out := r
	out.Metadata = maps.Clone(r.Metadata)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	out.Result = r.Result.Clone()
	return out
}

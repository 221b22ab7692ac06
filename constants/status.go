package constants

import "github.com/cockroachdb/errors"

// JobStatus is the lifecycle status of a processing request.
type JobStatus string

// Stable values (exposed verbatim over the API and in the archive).
const (
	JobStatusPending    JobStatus = "pending"    // accepted, waiting in the queue
	JobStatusProcessing JobStatus = "processing" // a worker is running the pipeline
	JobStatusCompleted  JobStatus = "completed"  // terminal: pipeline succeeded
	JobStatusFailed     JobStatus = "failed"     // terminal: pipeline returned an error
)

// validTransitions maps from-state to allowed to-states. Terminal states have none.
var validTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending: {
		JobStatusProcessing: true,
	},
	JobStatusProcessing: {
		JobStatusCompleted: true,
		JobStatusFailed:    true,
	},
	JobStatusCompleted: {},
	JobStatusFailed:    {},
}

// ErrInvalidTransition marks every error ValidateTransition returns.
var ErrInvalidTransition = errors.New("invalid status transition")

// ValidateTransition checks if a status transition is allowed.
func ValidateTransition(from, to JobStatus) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return errors.Mark(errors.Newf("unknown source status: %s", from), ErrInvalidTransition)
	}
	if !allowed[to] {
		return errors.Mark(errors.Newf("invalid transition from %s to %s", from, to), ErrInvalidTransition)
	}
	return nil
}

// IsTerminal reports whether no further transitions are possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) Valid() bool {
	_, ok := validTransitions[s]
	return ok
}

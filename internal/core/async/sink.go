package async

import (
	"context"
	"time"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// ResultSink receives every terminal record after it is written to the store.
// A failing sink is logged and never changes the job outcome.
type ResultSink interface {
	Record(ctx context.Context, req entity.ProcessingRequest) error
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(ctx context.Context, req entity.ProcessingRequest) error

func (f ResultSinkFunc) Record(ctx context.Context, req entity.ProcessingRequest) error {
	return f(ctx, req)
}

// Rejection reasons reported to the Observer.
const (
	RejectSaturated = "saturated"
	RejectClosed    = "closed"
	RejectInvalid   = "invalid"
)

// Observer is notified of pool activity, typically to export metrics.
type Observer interface {
	JobSubmitted()
	JobRejected(reason string)
	JobStarted()
	JobFinished(status constants.JobStatus, elapsed time.Duration, confidence float64)
	QueueDepth(n int)
}

type nopObserver struct{}

func (nopObserver) JobSubmitted()                                           {}
func (nopObserver) JobRejected(string)                                      {}
func (nopObserver) JobStarted()                                             {}
func (nopObserver) JobFinished(constants.JobStatus, time.Duration, float64) {}
func (nopObserver) QueueDepth(int)                                          {}

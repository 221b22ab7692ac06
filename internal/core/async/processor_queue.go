package async

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
	"github.com/Volpestyle/basic-budget-sub003/internal/store"
)

const (
	defaultWorkers       = 5
	defaultSubmitTimeout = 5 * time.Second
)

// Processor runs the extraction pipeline for one document.
type Processor interface {
	Run(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error)
}

// ProcessorQueue is the job submitter and worker pool. Jobs wait in a bounded
// channel; a fixed set of workers drains it and writes every status change to
// the result store.
type ProcessorQueue struct {
	proc           Processor
	store          *store.ResultStore
	logger         *slog.Logger
	observer       Observer
	workers        int
	queueSize      int
	submitTimeout  time.Duration
	processTimeout time.Duration
	newID          func() string

	ch   chan entity.Job
	wg   sync.WaitGroup
	once sync.Once

	// mu is held for reading while a submitter may send on ch and for
	// writing when ch is closed.
	mu       sync.RWMutex
	closed   bool
	stopping chan struct{}
	stopOnce sync.Once

	// queued holds the pending records of jobs accepted but not yet picked up.
	queuedMu sync.Mutex
	queued   map[string]entity.ProcessingRequest

	sinksMu sync.RWMutex
	sinks   []ResultSink
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize overrides the default capacity of twice the worker count.
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.queueSize = n
		}
	}
}

// WithSubmitTimeout bounds how long Submit waits for queue capacity.
func WithSubmitTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.submitTimeout = d
		}
	}
}

// WithProcessTimeout puts a deadline on each pipeline run. Zero leaves runs
// unbounded.
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d >= 0 {
			q.processTimeout = d
		}
	}
}

func WithObserver(o Observer) Option {
	return func(q *ProcessorQueue) {
		if o != nil {
			q.observer = o
		}
	}
}

func WithResultSinks(sinks ...ResultSink) Option {
	return func(q *ProcessorQueue) {
		q.sinks = append(q.sinks, sinks...)
	}
}

// WithIDGenerator replaces the random UUID job identifiers.
func WithIDGenerator(fn func() string) Option {
	return func(q *ProcessorQueue) {
		if fn != nil {
			q.newID = fn
		}
	}
}

// NewProcessorQueue creates the queue and starts its workers.
func NewProcessorQueue(proc Processor, results *store.ResultStore, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if results == nil {
		results = store.New(0)
	}
	q := &ProcessorQueue{
		proc:          proc,
		store:         results,
		logger:        logger,
		observer:      nopObserver{},
		workers:       defaultWorkers,
		submitTimeout: defaultSubmitTimeout,
		newID:         uuid.NewString,
		stopping:      make(chan struct{}),
		queued:        make(map[string]entity.ProcessingRequest),
	}
	for _, o := range opts {
		o(q)
	}
	if q.queueSize == 0 {
		q.queueSize = 2 * q.workers
	}
	q.ch = make(chan entity.Job, q.queueSize)
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)
				for job := range q.ch {
					q.process(workerID, job)
				}
				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Submit enqueues a document and returns its job ID. It waits at most the
// submit timeout for capacity and then fails with common.ErrQueueSaturated.
// After Shutdown it fails with common.ErrQueueClosed.
func (q *ProcessorQueue) Submit(ctx context.Context, payload []byte, contentType string, metadata map[string]any) (string, error) {
	return q.SubmitWithID(ctx, q.newID(), payload, contentType, metadata)
}

// SubmitWithID is Submit with a caller-chosen job ID. IDs already known to the
// queue are rejected.
func (q *ProcessorQueue) SubmitWithID(ctx context.Context, id string, payload []byte, contentType string, metadata map[string]any) (string, error) {
	err := common.NewValidator().
		Field("id", id, func(field string, v interface{}) *common.ValidationError {
			if s, _ := v.(string); s == "" {
				return &common.ValidationError{Field: field, Message: "is required"}
			}
			return nil
		}).
		Field("payload", payload, common.NonEmptyPayload).
		Field("metadata", metadata, common.MetadataKeys).
		Error()
	if err != nil {
		q.observer.JobRejected(RejectInvalid)
		return "", err
	}

	now := time.Now()
	job := entity.Job{
		ID:          id,
		Payload:     bytes.Clone(payload),
		ContentType: contentType,
		Metadata:    maps.Clone(metadata),
		SubmittedAt: now,
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.observer.JobRejected(RejectClosed)
		return "", errors.Wrapf(common.ErrQueueClosed, "submit %s", id)
	}
	if !q.markQueued(entity.NewProcessingRequest(job, now)) {
		q.observer.JobRejected(RejectInvalid)
		return "", errors.Wrapf(common.ErrInvalidInput, "job %s already exists", id)
	}

	timer := time.NewTimer(q.submitTimeout)
	defer timer.Stop()

	select {
	case q.ch <- job:
		q.observer.JobSubmitted()
		q.observer.QueueDepth(len(q.ch))
		q.logger.Debug("job queued", "job_id", id, "content_type", contentType, "size", len(payload))
		return id, nil
	case <-timer.C:
		q.unmarkQueued(id)
		q.observer.JobRejected(RejectSaturated)
		q.logger.Warn("queue saturated, rejecting job", "job_id", id, "waited_ms", q.submitTimeout.Milliseconds())
		return "", errors.WithDetailf(common.ErrQueueSaturated, "no capacity within %s", q.submitTimeout)
	case <-q.stopping:
		q.unmarkQueued(id)
		q.observer.JobRejected(RejectClosed)
		return "", errors.Wrapf(common.ErrQueueClosed, "submit %s", id)
	case <-ctx.Done():
		q.unmarkQueued(id)
		return "", errors.Wrap(ctx.Err(), "submit")
	}
}

// Lookup returns the current record of a job. Accepted jobs that no worker
// has picked up yet are reported as pending.
func (q *ProcessorQueue) Lookup(id string) (entity.ProcessingRequest, bool) {
	q.queuedMu.Lock()
	req, ok := q.queued[id]
	q.queuedMu.Unlock()
	if ok {
		return req.Clone(), true
	}
	return q.store.Get(id)
}

// Store exposes the result store for read access.
func (q *ProcessorQueue) Store() *store.ResultStore { return q.store }

// Depth is the number of jobs waiting for a worker.
func (q *ProcessorQueue) Depth() int { return len(q.ch) }

func (q *ProcessorQueue) Workers() int { return q.workers }

func (q *ProcessorQueue) Capacity() int { return q.queueSize }

// AddSink registers a sink for terminal records of jobs finishing from now on.
func (q *ProcessorQueue) AddSink(s ResultSink) {
	q.sinksMu.Lock()
	q.sinks = append(q.sinks, s)
	q.sinksMu.Unlock()
}

// Closed reports whether Shutdown has been called.
func (q *ProcessorQueue) Closed() bool {
	select {
	case <-q.stopping:
		return true
	default:
		return false
	}
}

// Shutdown rejects new submissions, lets workers drain every queued and
// in-flight job, and returns once they have exited or ctx ends.
func (q *ProcessorQueue) Shutdown(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stopping) })

	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context", "queued", len(q.ch))
		return errors.Wrap(ctx.Err(), "drain queue")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	}
}

func (q *ProcessorQueue) markQueued(req entity.ProcessingRequest) bool {
	q.queuedMu.Lock()
	defer q.queuedMu.Unlock()
	if _, ok := q.queued[req.ID]; ok {
		return false
	}
	if _, ok := q.store.Get(req.ID); ok {
		return false
	}
	q.queued[req.ID] = req
	return true
}

func (q *ProcessorQueue) unmarkQueued(id string) {
	q.queuedMu.Lock()
	delete(q.queued, id)
	q.queuedMu.Unlock()
}

func (q *ProcessorQueue) process(workerID int, job entity.Job) {
	ctx := common.WithWorkerID(common.WithJobID(context.Background(), job.ID), workerID)
	log := q.logger.With("worker_id", workerID, "job_id", job.ID)

	start := time.Now()
	req := entity.NewProcessingRequest(job, start)
	if err := req.Advance(constants.JobStatusProcessing, start); err != nil {
		log.Error("invalid state transition", "error", err)
		return
	}
	// publish processing before dropping the pending entry so readers never
	// see the job vanish
	q.store.Put(job.ID, req)
	q.unmarkQueued(job.ID)
	q.observer.JobStarted()
	q.observer.QueueDepth(len(q.ch))
	log.Info("processing job", "content_type", job.ContentType, "size", len(job.Payload))

	doc, err := q.run(ctx, job)
	finished := time.Now()
	elapsed := finished.Sub(start)

	var conf float64
	if err != nil {
		_ = req.Fail(err.Error(), finished)
		log.Error("job failed", "duration_ms", elapsed.Milliseconds(), "error", err)
	} else {
		_ = req.Complete(doc, finished)
		conf = doc.OverallConfidence
		log.Info("job completed", "duration_ms", elapsed.Milliseconds(), "confidence", conf)
	}
	q.store.Put(job.ID, req)
	q.observer.JobFinished(req.Status, elapsed, conf)

	q.record(ctx, req)
}

func (q *ProcessorQueue) run(ctx context.Context, job entity.Job) (doc *entity.ExtractedDocument, err error) {
	if q.processTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.processTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = common.NewExtractionError(common.CodeExtractionFailed, fmt.Sprintf("extraction panicked: %v", r), nil)
		}
	}()
	doc, err = q.proc.Run(ctx, job.Payload, job.ContentType)
	if err == nil && doc == nil {
		err = common.NewExtractionError(common.CodeNoFields, "pipeline returned no document", nil)
	}
	return doc, err
}

func (q *ProcessorQueue) record(ctx context.Context, req entity.ProcessingRequest) {
	q.sinksMu.RLock()
	sinks := q.sinks
	q.sinksMu.RUnlock()
	for _, s := range sinks {
		if err := s.Record(ctx, req.Clone()); err != nil {
			q.logger.Warn("result sink failed", "job_id", req.ID, "sink", fmt.Sprintf("%T", s), "error", err)
		}
	}
}

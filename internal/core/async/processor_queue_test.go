package async

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Volpestyle/basic-budget-sub003/constants"
	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/extract"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/pipeline"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
	"github.com/Volpestyle/basic-budget-sub003/internal/store"
)

type procFunc func(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error)

func (f procFunc) Run(ctx context.Context, payload []byte, contentType string) (*entity.ExtractedDocument, error) {
	return f(ctx, payload, contentType)
}

func okDoc() *entity.ExtractedDocument {
	v, _ := entity.Money("10.00")
	return &entity.ExtractedDocument{
		GrossPay:          &entity.ExtractedField{Value: v, Source: constants.SourcePDFText, Confidence: 0.95},
		OverallConfidence: 0.95,
	}
}

func instant() procFunc {
	return func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		return okDoc(), nil
	}
}

func waitTerminal(t *testing.T, q *ProcessorQueue, id string) entity.ProcessingRequest {
	t.Helper()
	var out entity.ProcessingRequest
	require.Eventually(t, func() bool {
		req, ok := q.Lookup(id)
		if ok && req.Status.IsTerminal() {
			out = req
			return true
		}
		return false
	}, 5*time.Second, 2*time.Millisecond)
	return out
}

func shutdown(t *testing.T, q *ProcessorQueue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))
}

func TestSubmitEndToEnd(t *testing.T) {
	engine := extract.EngineFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		gross, _ := entity.Money("5000.00")
		net, _ := entity.Money("3750.00")
		return &entity.ExtractedDocument{
			GrossPay: &entity.ExtractedField{Value: gross, Source: constants.SourcePDFText},
			NetPay:   &entity.ExtractedField{Value: net, Source: constants.SourcePDFText},
		}, nil
	})
	q := NewProcessorQueue(pipeline.New(engine, nil, nil), store.New(0), nil)
	defer shutdown(t, q)

	id, err := q.Submit(context.Background(), []byte("0123456789"), "application/pdf", map[string]any{"user": "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	req := waitTerminal(t, q, id)
	assert.Equal(t, constants.JobStatusCompleted, req.Status)
	assert.Equal(t, int64(10), req.FileSize)
	assert.Equal(t, "application/pdf", req.FileType)
	assert.Equal(t, "u1", req.Metadata["user"])
	require.NotNil(t, req.CompletedAt)
	require.NotNil(t, req.Result)
	assert.Empty(t, req.Error)
	assert.InDelta(t, 0.95, req.Result.GrossPay.Confidence, 1e-9)
	assert.InDelta(t, 0.95, req.Result.NetPay.Confidence, 1e-9)
	assert.InDelta(t, 0.95, req.Result.OverallConfidence, 1e-9)

	// repeated reads return the same record
	again, ok := q.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, req, again)
}

func TestDefaults(t *testing.T) {
	q := NewProcessorQueue(instant(), nil, nil)
	defer shutdown(t, q)
	assert.Equal(t, 5, q.Workers())
	assert.Equal(t, 10, q.Capacity())

	q2 := NewProcessorQueue(instant(), nil, nil, WithWorkers(3), WithQueueSize(7))
	defer shutdown(t, q2)
	assert.Equal(t, 3, q2.Workers())
	assert.Equal(t, 7, q2.Capacity())
}

func TestLookupUnknown(t *testing.T) {
	q := NewProcessorQueue(instant(), nil, nil)
	defer shutdown(t, q)
	_, ok := q.Lookup("nope")
	assert.False(t, ok)
}

func TestSubmitBackpressure(t *testing.T) {
	const workers = 2
	release := make(chan struct{})
	started := make(chan struct{}, 16)
	slow := procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		started <- struct{}{}
		<-release
		return okDoc(), nil
	})
	timeout := 100 * time.Millisecond
	q := NewProcessorQueue(slow, nil, nil, WithWorkers(workers), WithSubmitTimeout(timeout))

	ctx := context.Background()
	var ids []string
	for i := 0; i < workers; i++ {
		id, err := q.Submit(ctx, []byte("x"), "application/pdf", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for i := 0; i < workers; i++ {
		<-started
	}
	// workers are busy; the buffer holds 2x workers
	for i := 0; i < 2*workers; i++ {
		id, err := q.Submit(ctx, []byte("x"), "application/pdf", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, 2*workers, q.Depth())

	begin := time.Now()
	id, err := q.Submit(ctx, []byte("x"), "application/pdf", nil)
	assert.Empty(t, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrQueueSaturated))
	assert.GreaterOrEqual(t, time.Since(begin), timeout)
	assert.Equal(t, workers, q.Store().Len(), "rejected job must leave no record")

	close(release)
	for _, id := range ids {
		assert.Equal(t, constants.JobStatusCompleted, waitTerminal(t, q, id).Status)
	}
	shutdown(t, q)
}

func TestSubmitWaitsForCapacity(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	q := NewProcessorQueue(procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		started <- struct{}{}
		<-release
		return okDoc(), nil
	}), nil, nil, WithWorkers(1), WithSubmitTimeout(2*time.Second))
	defer shutdown(t, q)

	ctx := context.Background()
	_, err := q.Submit(ctx, []byte("x"), "text/plain", nil)
	require.NoError(t, err)
	<-started
	for i := 0; i < 2; i++ {
		_, err := q.Submit(ctx, []byte("x"), "text/plain", nil)
		require.NoError(t, err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	begin := time.Now()
	_, err = q.Submit(ctx, []byte("x"), "text/plain", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(begin), 40*time.Millisecond)
}

func TestSubmitContextCancelled(t *testing.T) {
	release := make(chan struct{})
	q := NewProcessorQueue(procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		<-release
		return okDoc(), nil
	}), nil, nil, WithWorkers(1), WithQueueSize(1), WithSubmitTimeout(time.Minute))
	defer func() {
		close(release)
		shutdown(t, q)
	}()

	bg := context.Background()
	_, err := q.Submit(bg, []byte("x"), "text/plain", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, time.Millisecond)
	_, err = q.Submit(bg, []byte("x"), "text/plain", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(bg, 30*time.Millisecond)
	defer cancel()
	_, err = q.Submit(ctx, []byte("x"), "text/plain", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSubmitValidation(t *testing.T) {
	q := NewProcessorQueue(instant(), nil, nil)
	defer shutdown(t, q)
	ctx := context.Background()

	_, err := q.Submit(ctx, nil, "application/pdf", nil)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))

	_, err = q.Submit(ctx, []byte("x"), "application/pdf", map[string]any{" ": 1})
	assert.True(t, errors.Is(err, common.ErrInvalidInput))

	id, err := q.SubmitWithID(ctx, "fixed", []byte("x"), "application/pdf", nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", id)
	waitTerminal(t, q, "fixed")

	_, err = q.SubmitWithID(ctx, "fixed", []byte("x"), "application/pdf", nil)
	assert.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestStatusSequence(t *testing.T) {
	gates := map[string]chan struct{}{
		"a": make(chan struct{}),
		"b": make(chan struct{}),
	}
	q := NewProcessorQueue(procFunc(func(_ context.Context, payload []byte, _ string) (*entity.ExtractedDocument, error) {
		<-gates[string(payload)]
		return okDoc(), nil
	}), nil, nil, WithWorkers(1))
	defer shutdown(t, q)
	ctx := context.Background()

	_, err := q.SubmitWithID(ctx, "a", []byte("a"), "text/plain", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, _ := q.Lookup("a")
		return r.Status == constants.JobStatusProcessing
	}, time.Second, time.Millisecond)

	_, err = q.SubmitWithID(ctx, "b", []byte("b"), "text/plain", nil)
	require.NoError(t, err)
	pending, ok := q.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, constants.JobStatusPending, pending.Status)
	assert.Nil(t, pending.CompletedAt)
	_, inStore := q.Store().Get("b")
	assert.False(t, inStore, "pending jobs live in the queue, not the store")

	close(gates["a"])
	require.Eventually(t, func() bool {
		r, _ := q.Lookup("b")
		return r.Status == constants.JobStatusProcessing
	}, time.Second, time.Millisecond)
	processing, _ := q.Lookup("b")
	assert.Nil(t, processing.CompletedAt)
	assert.Nil(t, processing.Result)

	close(gates["b"])
	done := waitTerminal(t, q, "b")
	assert.Equal(t, constants.JobStatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
}

func TestObservedStatusIsMonotonic(t *testing.T) {
	rank := map[constants.JobStatus]int{
		constants.JobStatusPending:    0,
		constants.JobStatusProcessing: 1,
		constants.JobStatusCompleted:  2,
		constants.JobStatusFailed:     2,
	}
	var n atomic.Int64
	q := NewProcessorQueue(procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		time.Sleep(time.Millisecond)
		if n.Add(1)%3 == 0 {
			return nil, errors.New("flaky")
		}
		return okDoc(), nil
	}), nil, nil, WithWorkers(4), WithSubmitTimeout(5*time.Second))
	defer shutdown(t, q)

	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := q.Submit(context.Background(), []byte(fmt.Sprint(i)), "text/plain", nil)
			if !assert.NoError(t, err) {
				return
			}
			last := -1
			for {
				req, ok := q.Lookup(id)
				if !assert.True(t, ok, "accepted job must always be visible") {
					return
				}
				r := rank[req.Status]
				assert.GreaterOrEqual(t, r, last, "status regressed for %s", id)
				last = r
				if req.Status.IsTerminal() {
					assert.NotNil(t, req.CompletedAt)
					return
				}
				assert.Nil(t, req.CompletedAt)
				time.Sleep(100 * time.Microsecond)
			}
		}(i)
	}
	wg.Wait()
}

func TestFailedJobKeepsErrorVerbatim(t *testing.T) {
	cause := common.NewExtractionError(common.CodeNoFields, "neither gross nor net pay found", nil)
	q := NewProcessorQueue(procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		return nil, cause
	}), nil, nil)
	defer shutdown(t, q)

	id, err := q.Submit(context.Background(), []byte("x"), "application/pdf", nil)
	require.NoError(t, err)
	req := waitTerminal(t, q, id)
	assert.Equal(t, constants.JobStatusFailed, req.Status)
	assert.Equal(t, cause.Error(), req.Error)
	assert.Nil(t, req.Result)
	assert.NotNil(t, req.CompletedAt)
}

func TestPanicIsIsolated(t *testing.T) {
	q := NewProcessorQueue(procFunc(func(_ context.Context, payload []byte, _ string) (*entity.ExtractedDocument, error) {
		if string(payload) == "boom" {
			panic("bad document")
		}
		return okDoc(), nil
	}), nil, nil, WithWorkers(1))
	defer shutdown(t, q)
	ctx := context.Background()

	bad, err := q.Submit(ctx, []byte("boom"), "application/pdf", nil)
	require.NoError(t, err)
	good, err := q.Submit(ctx, []byte("fine"), "application/pdf", nil)
	require.NoError(t, err)

	failed := waitTerminal(t, q, bad)
	assert.Equal(t, constants.JobStatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "bad document")
	assert.Equal(t, constants.JobStatusCompleted, waitTerminal(t, q, good).Status)
}

func TestProcessTimeout(t *testing.T) {
	q := NewProcessorQueue(procFunc(func(ctx context.Context, _ []byte, _ string) (*entity.ExtractedDocument, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), nil, nil, WithProcessTimeout(20*time.Millisecond))
	defer shutdown(t, q)

	id, err := q.Submit(context.Background(), []byte("x"), "application/pdf", nil)
	require.NoError(t, err)
	req := waitTerminal(t, q, id)
	assert.Equal(t, constants.JobStatusFailed, req.Status)
	assert.Contains(t, req.Error, "deadline exceeded")
}

func TestShutdownDrainsAllJobs(t *testing.T) {
	q := NewProcessorQueue(procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		time.Sleep(20 * time.Millisecond)
		return okDoc(), nil
	}), nil, nil, WithWorkers(2))

	ctx := context.Background()
	var ids []string
	for i := 0; i < 6; i++ {
		id, err := q.Submit(ctx, []byte("x"), "application/pdf", nil)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	shutdown(t, q)

	for _, id := range ids {
		req, ok := q.Store().Get(id)
		require.True(t, ok)
		assert.True(t, req.Status.IsTerminal(), "job %s not finished at shutdown", id)
	}
	assert.True(t, q.Closed())

	_, err := q.Submit(ctx, []byte("x"), "application/pdf", nil)
	assert.True(t, errors.Is(err, common.ErrQueueClosed))

	// a second shutdown is a no-op
	assert.NoError(t, q.Shutdown(ctx))
}

func TestShutdownReleasesBlockedSubmitters(t *testing.T) {
	release := make(chan struct{})
	q := NewProcessorQueue(procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		<-release
		return okDoc(), nil
	}), nil, nil, WithWorkers(1), WithQueueSize(1), WithSubmitTimeout(time.Minute))

	ctx := context.Background()
	_, err := q.Submit(ctx, []byte("x"), "text/plain", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Depth() == 0 }, time.Second, time.Millisecond)
	_, err = q.Submit(ctx, []byte("x"), "text/plain", nil)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Submit(ctx, []byte("x"), "text/plain", nil)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- q.Shutdown(ctx) }()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, common.ErrQueueClosed))
	case <-time.After(2 * time.Second):
		t.Fatal("blocked submitter was not released")
	}
	close(release)
	require.NoError(t, <-shutdownDone)
}

func TestShutdownHonoursContext(t *testing.T) {
	release := make(chan struct{})
	q := NewProcessorQueue(procFunc(func(context.Context, []byte, string) (*entity.ExtractedDocument, error) {
		<-release
		return okDoc(), nil
	}), nil, nil, WithWorkers(1))
	_, err := q.Submit(context.Background(), []byte("x"), "text/plain", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = q.Shutdown(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	close(release)
	shutdown(t, q)
}

type recordingSink struct {
	mu   sync.Mutex
	got  []entity.ProcessingRequest
	fail bool
}

func (s *recordingSink) Record(_ context.Context, req entity.ProcessingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, req)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *recordingSink) records() []entity.ProcessingRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.ProcessingRequest(nil), s.got...)
}

func TestResultSinks(t *testing.T) {
	ok := &recordingSink{}
	broken := &recordingSink{fail: true}
	late := &recordingSink{}
	q := NewProcessorQueue(instant(), nil, nil, WithResultSinks(broken, ok))
	q.AddSink(late)

	id, err := q.Submit(context.Background(), []byte("x"), "application/pdf", nil)
	require.NoError(t, err)
	shutdown(t, q)

	for _, s := range []*recordingSink{ok, broken, late} {
		recs := s.records()
		require.Len(t, recs, 1)
		assert.Equal(t, id, recs[0].ID)
		assert.Equal(t, constants.JobStatusCompleted, recs[0].Status)
	}
	req, _ := q.Lookup(id)
	assert.Equal(t, constants.JobStatusCompleted, req.Status)
}

type countingObserver struct {
	submitted, started atomic.Int64
	mu                 sync.Mutex
	rejected           map[string]int
	finished           map[constants.JobStatus]int
}

func (o *countingObserver) JobSubmitted() { o.submitted.Add(1) }
func (o *countingObserver) JobRejected(reason string) {
	o.mu.Lock()
	o.rejected[reason]++
	o.mu.Unlock()
}
func (o *countingObserver) JobStarted() { o.started.Add(1) }
func (o *countingObserver) JobFinished(status constants.JobStatus, _ time.Duration, _ float64) {
	o.mu.Lock()
	o.finished[status]++
	o.mu.Unlock()
}
func (o *countingObserver) QueueDepth(int) {}

func TestObserver(t *testing.T) {
	obs := &countingObserver{rejected: map[string]int{}, finished: map[constants.JobStatus]int{}}
	q := NewProcessorQueue(procFunc(func(_ context.Context, p []byte, _ string) (*entity.ExtractedDocument, error) {
		if string(p) == "bad" {
			return nil, errors.New("nope")
		}
		return okDoc(), nil
	}), nil, nil, WithObserver(obs))

	ctx := context.Background()
	_, err := q.Submit(ctx, []byte("good"), "text/plain", nil)
	require.NoError(t, err)
	_, err = q.Submit(ctx, []byte("bad"), "text/plain", nil)
	require.NoError(t, err)
	_, _ = q.Submit(ctx, nil, "text/plain", nil)
	shutdown(t, q)
	_, _ = q.Submit(ctx, []byte("late"), "text/plain", nil)

	assert.Equal(t, int64(2), obs.submitted.Load())
	assert.Equal(t, int64(2), obs.started.Load())
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 1, obs.finished[constants.JobStatusCompleted])
	assert.Equal(t, 1, obs.finished[constants.JobStatusFailed])
	assert.Equal(t, 1, obs.rejected[RejectInvalid])
	assert.Equal(t, 1, obs.rejected[RejectClosed])
}

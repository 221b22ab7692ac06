package async

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/entity"
)

// Submitter accepts jobs under a caller-chosen ID.
type Submitter interface {
	SubmitWithID(ctx context.Context, id string, payload []byte, contentType string, metadata map[string]any) (string, error)
}

// Poller moves messages from a PollableSource into the queue on a fixed
// interval. A message is acknowledged once its job reaches a terminal state
// and negatively acknowledged when the queue refuses it.
type Poller struct {
	source    PollableSource
	submitter Submitter
	interval  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]Message // job ID -> message awaiting a terminal record
}

func NewPoller(source PollableSource, submitter Submitter, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Poller{
		source:    source,
		submitter: submitter,
		interval:  interval,
		logger:    logger,
		inflight:  make(map[string]Message),
	}
}

// Run polls immediately and then every interval until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("poller started", "interval", p.interval.String())
	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// PollOnce fetches one batch and submits it. Once the queue refuses a message
// the rest of the batch is released back to the source.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	msgs, err := p.source.Poll(ctx)
	if err != nil {
		// a source may hand back part of a batch with its error
		for _, m := range msgs {
			p.settle(context.WithoutCancel(ctx), m, false)
		}
		return 0, errors.Wrap(err, "poll source")
	}
	accepted := 0
	for i, m := range msgs {
		id := uuid.NewString()
		meta := maps.Clone(m.Metadata)
		if meta == nil {
			meta = make(map[string]any, 1)
		}
		if m.ID != "" {
			meta["message_id"] = m.ID
		}

		p.mu.Lock()
		p.inflight[id] = m
		p.mu.Unlock()

		_, err := p.submitter.SubmitWithID(ctx, id, m.Payload, m.ContentType, meta)
		if err == nil {
			accepted++
			continue
		}

		p.mu.Lock()
		delete(p.inflight, id)
		p.mu.Unlock()

		if errors.Is(err, common.ErrInvalidInput) {
			// will never succeed; drop it
			p.logger.Error("dropping invalid message", "message_id", m.ID, "error", err)
			p.settle(ctx, m, true)
			continue
		}
		p.logger.Warn("queue refused message, releasing batch", "message_id", m.ID, "remaining", len(msgs)-i, "error", err)
		for _, rest := range msgs[i:] {
			p.settle(context.WithoutCancel(ctx), rest, false)
		}
		return accepted, err
	}
	if len(msgs) > 0 {
		p.logger.Debug("poll submitted", "received", len(msgs), "accepted", accepted)
	}
	return accepted, nil
}

// Record acknowledges the source message of a finished job. It implements
// ResultSink.
func (p *Poller) Record(ctx context.Context, req entity.ProcessingRequest) error {
	if !req.Status.IsTerminal() {
		return nil
	}
	p.mu.Lock()
	m, ok := p.inflight[req.ID]
	delete(p.inflight, req.ID)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return errors.Wrapf(m.Ack(ctx), "ack message %s", m.ID)
}

// Inflight is the number of submitted messages not yet acknowledged.
func (p *Poller) Inflight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inflight)
}

func (p *Poller) settle(ctx context.Context, m Message, ack bool) {
	var err error
	if ack {
		err = m.Ack(ctx)
	} else {
		err = m.Nack(ctx)
	}
	if err != nil {
		p.logger.Warn("failed to settle message", "message_id", m.ID, "ack", ack, "error", err)
	}
}

package broker

import (
	"context"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
	"github.com/Volpestyle/basic-budget-sub003/internal/core/async"
)

const (
	dialAttempts = 10
	dialDelay    = 5 * time.Second
)

// getter is the part of *amqp.Channel used for polling.
type getter interface {
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
}

type outstanding struct {
	delivery amqp.Delivery
	deadline time.Time
}

// RabbitSource is a PollableSource over a durable RabbitMQ queue. Each poll
// pulls up to batch deliveries with basic.get; deliveries left unsettled past
// the visibility timeout are returned to the queue.
type RabbitSource struct {
	ch         getter
	queue      string
	batch      int
	visibility time.Duration
	fetcher    ObjectFetcher
	logger     *slog.Logger
	now        func() time.Time
	closers    []func() error

	mu      sync.Mutex
	pending map[uint64]outstanding
}

// DialRabbitSource connects to cfg.URL, declares the queue and returns a
// source reading from it. fetcher may be nil when every message inlines its
// payload.
func DialRabbitSource(ctx context.Context, cfg common.RabbitMQConfig, qcfg common.QueueConfig, fetcher ObjectFetcher, logger *slog.Logger) (*RabbitSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := connectWithRetry(ctx, cfg.URL, logger)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	_, err = ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare queue %s", cfg.Queue)
	}
	logger.Info("connected to rabbitmq", "queue", cfg.Queue)

	s := newRabbitSource(ch, cfg.Queue, qcfg.BatchSize, qcfg.VisibilityTimeout, fetcher, logger)
	s.closers = []func() error{ch.Close, conn.Close}
	return s, nil
}

func newRabbitSource(ch getter, queue string, batch int, visibility time.Duration, fetcher ObjectFetcher, logger *slog.Logger) *RabbitSource {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 10
	}
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &RabbitSource{
		ch:         ch,
		queue:      queue,
		batch:      batch,
		visibility: visibility,
		fetcher:    fetcher,
		logger:     logger,
		now:        time.Now,
		pending:    make(map[uint64]outstanding),
	}
}

func connectWithRetry(ctx context.Context, url string, logger *slog.Logger) (*amqp.Connection, error) {
	var err error
	for i := 0; i < dialAttempts; i++ {
		var conn *amqp.Connection
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("failed to connect to rabbitmq", "attempt", i+1, "max_attempts", dialAttempts, "error", err)
		if i == dialAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "connect to rabbitmq")
		case <-time.After(dialDelay):
		}
	}
	return nil, errors.Wrapf(err, "connect to rabbitmq after %d attempts", dialAttempts)
}

// Poll implements async.PollableSource.
func (s *RabbitSource) Poll(ctx context.Context) ([]async.Message, error) {
	s.Sweep()

	var out []async.Message
	for len(out) < s.batch {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		d, ok, err := s.ch.Get(s.queue, false)
		if err != nil {
			return out, errors.Wrapf(err, "basic.get %s", s.queue)
		}
		if !ok {
			break
		}
		msg, ok := s.toMessage(ctx, d)
		if ok {
			out = append(out, msg)
		}
	}
	return out, nil
}

// toMessage decodes a delivery. Deliveries that cannot become a message are
// settled here: malformed ones are rejected, the rest requeued.
func (s *RabbitSource) toMessage(ctx context.Context, d amqp.Delivery) (async.Message, bool) {
	id := d.MessageId
	if id == "" {
		id = "delivery-" + strconv.FormatUint(d.DeliveryTag, 10)
	}
	log := s.logger.With("message_id", id, "delivery_tag", d.DeliveryTag)

	env, err := DecodeEnvelope(d.Body)
	var payload []byte
	if err == nil {
		payload, err = s.payload(ctx, env)
	}
	if err != nil {
		requeue := !errors.Is(err, common.ErrInvalidInput)
		log.Error("unusable delivery", "requeue", requeue, "error", err)
		if nerr := d.Nack(false, requeue); nerr != nil {
			log.Warn("failed to nack delivery", "error", nerr)
		}
		return async.Message{}, false
	}

	meta := maps.Clone(env.Metadata)
	if env.IsReference() {
		if meta == nil {
			meta = make(map[string]any, 2)
		}
		meta["bucket"] = env.Bucket
		meta["object"] = env.Object
	}

	s.mu.Lock()
	s.pending[d.DeliveryTag] = outstanding{delivery: d, deadline: s.now().Add(s.visibility)}
	s.mu.Unlock()

	tag := d.DeliveryTag
	return async.NewMessage(id, payload, env.ContentType, meta,
		func(context.Context) error { return s.settle(tag, true) },
		func(context.Context) error { return s.settle(tag, false) },
	), true
}

func (s *RabbitSource) payload(ctx context.Context, env Envelope) ([]byte, error) {
	if !env.IsReference() {
		return env.InlinePayload()
	}
	if s.fetcher == nil {
		return nil, errors.Wrap(common.ErrInvalidInput, "object reference without a configured object store")
	}
	return s.fetcher.Fetch(ctx, env.Bucket, env.Object)
}

// settle acks or requeues a delivery still held by this source. Deliveries
// already returned by Sweep are ignored.
func (s *RabbitSource) settle(tag uint64, ack bool) error {
	s.mu.Lock()
	o, ok := s.pending[tag]
	delete(s.pending, tag)
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("delivery already released", "delivery_tag", tag, "ack", ack)
		return nil
	}
	if ack {
		return errors.Wrapf(o.delivery.Ack(false), "ack delivery %d", tag)
	}
	return errors.Wrapf(o.delivery.Nack(false, true), "nack delivery %d", tag)
}

// Sweep requeues deliveries whose visibility timeout has passed and returns
// how many it released.
func (s *RabbitSource) Sweep() int {
	now := s.now()
	var expired []outstanding
	s.mu.Lock()
	for tag, o := range s.pending {
		if now.After(o.deadline) {
			expired = append(expired, o)
			delete(s.pending, tag)
		}
	}
	s.mu.Unlock()

	for _, o := range expired {
		s.logger.Warn("visibility timeout elapsed, requeueing delivery", "delivery_tag", o.delivery.DeliveryTag)
		if err := o.delivery.Nack(false, true); err != nil {
			s.logger.Warn("failed to requeue delivery", "delivery_tag", o.delivery.DeliveryTag, "error", err)
		}
	}
	return len(expired)
}

// Outstanding is the number of deliveries handed out and not yet settled.
func (s *RabbitSource) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close requeues everything still outstanding and closes the channel and
// connection when the source owns them.
func (s *RabbitSource) Close() error {
	s.mu.Lock()
	rest := s.pending
	s.pending = make(map[uint64]outstanding)
	s.mu.Unlock()
	for _, o := range rest {
		_ = o.delivery.Nack(false, true)
	}

	var errs error
	for _, c := range s.closers {
		errs = errors.CombineErrors(errs, c())
	}
	return errs
}

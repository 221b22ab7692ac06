package async

import (
	"context"
	"maps"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/Volpestyle/basic-budget-sub003/internal/common"
)

// PollableSource is a pluggable backend that yields pending documents. Poll
// returns immediately with zero or more messages.
type PollableSource interface {
	Poll(ctx context.Context) ([]Message, error)
}

// Message is one document pulled from a source. Ack removes it from the
// source for good; Nack makes it available to a later poll.
type Message struct {
	ID          string
	Payload     []byte
	ContentType string
	Metadata    map[string]any

	ack  func(context.Context) error
	nack func(context.Context) error
}

// NewMessage builds a message with its settlement callbacks. Either may be nil.
func NewMessage(id string, payload []byte, contentType string, metadata map[string]any, ack, nack func(context.Context) error) Message {
	return Message{
		ID:          id,
		Payload:     payload,
		ContentType: contentType,
		Metadata:    metadata,
		ack:         ack,
		nack:        nack,
	}
}

func (m Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}

func (m Message) Nack(ctx context.Context) error {
	if m.nack == nil {
		return nil
	}
	return m.nack(ctx)
}

// ChannelSource is an in-process bounded PollableSource.
type ChannelSource struct {
	ch    chan Message
	batch int

	mu       sync.Mutex
	overflow []Message // nacked while the buffer was full
}

// NewChannelSource creates a source holding at most capacity messages and
// returning at most batch per poll.
func NewChannelSource(capacity, batch int) *ChannelSource {
	if capacity <= 0 {
		capacity = 1
	}
	if batch <= 0 {
		batch = capacity
	}
	return &ChannelSource{ch: make(chan Message, capacity), batch: batch}
}

// Push adds a document, waiting for room until ctx ends. A nacked message
// goes back to the tail of the buffer, or to an overflow list when the buffer
// is full, so it is never lost.
func (s *ChannelSource) Push(ctx context.Context, id string, payload []byte, contentType string, metadata map[string]any) error {
	m := Message{ID: id, Payload: payload, ContentType: contentType, Metadata: maps.Clone(metadata)}
	m.nack = func(context.Context) error {
		select {
		case s.ch <- m:
		default:
			s.mu.Lock()
			s.overflow = append(s.overflow, m)
			s.mu.Unlock()
		}
		return nil
	}
	select {
	case s.ch <- m:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(common.ErrQueueSaturated, "push %s: %v", id, ctx.Err())
	}
}

// Poll returns buffered messages first, then overflowed ones. A cancelled
// ctx takes nothing.
func (s *ChannelSource) Poll(ctx context.Context) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Message
	for len(out) < s.batch {
		select {
		case m := <-s.ch:
			out = append(out, m)
			continue
		default:
		}
		s.mu.Lock()
		if len(s.overflow) == 0 {
			s.mu.Unlock()
			break
		}
		out = append(out, s.overflow[0])
		s.overflow = s.overflow[1:]
		s.mu.Unlock()
	}
	return out, nil
}

// Len is the number of messages waiting for a poll.
func (s *ChannelSource) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ch) + len(s.overflow)
}

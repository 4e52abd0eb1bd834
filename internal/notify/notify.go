// Package notify carries "generation completed" events from the lifecycle core
// to whoever presents them: an in-process queue for the local API, and
// optionally a Redis channel for other processes.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

// Event is emitted once per record entering the completed state.
type Event struct {
	ID     string                `json:"id"`
	Type   domain.GenerationType `json:"type"`
	Prompt string                `json:"prompt"`
	At     time.Time             `json:"at"`
}

// Sink receives completion events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

const defaultSubscriberBuffer = 32

// QueueOptions configures a Queue.
type QueueOptions struct {
	Buffer int
	Logger *infra.Logger
}

// Queue is the explicit output channel of the core. Every subscriber gets its
// own buffered channel; a subscriber that falls behind loses events rather
// than blocking the publisher.
type Queue struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *infra.Logger
}

// NewQueue builds an empty queue.
func NewQueue(opts QueueOptions) *Queue {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Queue{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: infra.OrDiscard(opts.Logger),
	}
}

// Subscription is one consumer of a Queue.
type Subscription struct {
	ch    chan Event
	queue *Queue
	once  sync.Once
}

// Events returns the receive side of the subscription. It is closed by Close.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.queue.mu.Lock()
		delete(s.queue.subs, s)
		s.queue.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a new consumer.
func (q *Queue) Subscribe() *Subscription {
	sub := &Subscription{ch: make(chan Event, q.buffer), queue: q}
	q.mu.Lock()
	q.subs[sub] = struct{}{}
	q.mu.Unlock()
	return sub
}

// Subscribers reports the number of attached consumers.
func (q *Queue) Subscribers() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.subs)
}

func (q *Queue) Publish(ctx context.Context, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	for sub := range q.subs {
		select {
		case sub.ch <- ev:
		default:
			q.logger.Warn().Str("generation_id", ev.ID).Msg("notify: subscriber buffer full, dropping event")
		}
	}
	return nil
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }

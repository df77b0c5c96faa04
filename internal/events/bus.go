// Package events fans live dashboard events out to connected listeners.
package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/saga-it/qyburn/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Type names an event on the live stream.
type Type string

const (
	TypeConnected    Type = "connected"
	TypeActivity     Type = "activity"
	TypeNotification Type = "notification"
	TypeAudit        Type = "audit"
	TypeStats        Type = "stats"
)

// Event is a named payload pushed to dashboard clients.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Listener receives events in publish order. Returning an error, or
// panicking, removes the listener from the bus.
type Listener func(Event) error

// Publisher is the write side of the bus used by the workflow, inbox and ledger.
type Publisher interface {
	Publish(evt Event)
}

const (
	defaultQueueSize       = 64
	stalledConsumerTimeout = 5 * time.Second
)

type subscriber struct {
	id    uint64
	queue chan Event
	done  chan struct{}
	once  sync.Once
}

func (s *subscriber) stop() {
	s.once.Do(func() { close(s.done) })
}

// Bus is an in-process publish/subscribe channel. Each listener runs on its
// own goroutine behind a bounded queue, so Publish never blocks on a slow or
// failing listener.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscriber
	nextID    uint64
	queueSize int
	wg        sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets the per-listener buffer. Events beyond it are dropped.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[uint64]*subscriber),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers listener and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus) Subscribe(listener Listener) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscriber{
		id:    b.nextID,
		queue: make(chan Event, b.queueSize),
		done:  make(chan struct{}),
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	telemetry.GetMetrics().ActiveSubscribers.Add(context.Background(), 1)
	log.Debug().Uint64("listener_id", sub.id).Msg("Listener subscribed")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(sub, listener)
	}()

	return func() { b.remove(sub.id) }
}

// Publish queues evt for every listener. With no listeners it does nothing.
func (b *Bus) Publish(evt Event) {
	ctx := context.Background()
	metrics := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("event_type", string(evt.Type)))

	b.mu.RLock()
	defer b.mu.RUnlock()

	metrics.EventsPublishedTotal.Add(ctx, 1, attrs)

	for _, sub := range b.subs {
		select {
		case sub.queue <- evt:
		default:
			metrics.EventsDroppedTotal.Add(ctx, 1, attrs)
			log.Warn().
				Uint64("listener_id", sub.id).
				Str("event_type", string(evt.Type)).
				Msg("Listener queue full, dropping event")
		}
	}
}

// SubscriberCount returns the number of registered listeners.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes every listener and waits for their goroutines to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.remove(id)
	}
	b.wg.Wait()
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	sub.stop()
	telemetry.GetMetrics().ActiveSubscribers.Add(context.Background(), -1)
	log.Debug().Uint64("listener_id", id).Msg("Listener unsubscribed")
}

func (b *Bus) run(sub *subscriber, listener Listener) {
	for {
		select {
		case <-sub.done:
			return
		case evt := <-sub.queue:
			if err := deliver(listener, evt); err != nil {
				telemetry.GetMetrics().ListenerFailures.Add(context.Background(), 1)
				log.Warn().
					Err(err).
					Uint64("listener_id", sub.id).
					Str("event_type", string(evt.Type)).
					Msg("Listener failed, unsubscribing")
				b.remove(sub.id)
				return
			}
		}
	}
}

func deliver(listener Listener, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return listener(evt)
}

// Channel adapts the bus to a receive channel for streaming handlers.
// Delivery stops when the returned function is called or ctx is done. The
// channel is never closed, so readers also select on ctx.
func (b *Bus) Channel(ctx context.Context, buffer int) (<-chan Event, func()) {
	out := make(chan Event, buffer)
	stopped := make(chan struct{})
	var once sync.Once

	unsubscribe := b.Subscribe(func(evt Event) error {
		select {
		case out <- evt:
			return nil
		case <-stopped:
			return nil
		case <-time.After(stalledConsumerTimeout):
			return fmt.Errorf("stream consumer stalled")
		}
	})

	stop := func() {
		once.Do(func() {
			unsubscribe()
			close(stopped)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-stopped:
		}
	}()

	return out, stop
}

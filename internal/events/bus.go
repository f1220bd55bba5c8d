package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener handles a single event. Listeners run on the bus worker
// goroutine, one event at a time; slow work should be done elsewhere.
type Listener func(ctx context.Context, ev Event)

// Bus is an in-process Publisher with registered listeners. Publish
// enqueues onto a bounded buffer and returns immediately; when the
// buffer is full the event is dropped and logged, never blocking the
// request that produced it.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
	ch        chan Event
	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.Logger
}

// NewBus creates a Bus with the given buffer size and starts its worker.
func NewBus(buffer int, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 256
	}
	b := &Bus{
		ch:     make(chan Event, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	go b.run()
	return b
}

// Subscribe registers a listener for all events. Call during wiring,
// before traffic starts.
func (b *Bus) Subscribe(fn Listener) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// Publish enqueues the event, dropping it if the buffer is full.
func (b *Bus) Publish(_ context.Context, ev Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case b.ch <- ev:
	default:
		b.logger.Warn("event bus full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("account_id", ev.AccountID.String()),
		)
	}
}

// Close stops the worker after draining queued events.
func (b *Bus) Close() {
	b.closeOnce.Do(func() {
		close(b.ch)
		<-b.done
	})
}

func (b *Bus) run() {
	defer close(b.done)
	for ev := range b.ch {
		b.mu.RLock()
		listeners := b.listeners
		b.mu.RUnlock()

		for _, fn := range listeners {
			b.dispatch(fn, ev)
		}
	}
}

// dispatch runs one listener, recovering panics so a bad listener cannot
// take down the worker.
func (b *Bus) dispatch(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				zap.String("type", string(ev.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fn(ctx, ev)
}

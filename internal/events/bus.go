package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/robojar-core/internal/device"
)

// DefaultBufferSize is the queue length used when NewBus is given a
// non-positive size.
const DefaultBufferSize = 256

// Handler consumes one transition. Handlers run on the bus goroutine, one
// at a time, so a slow handler delays the others but never a machine.
type Handler func(ctx context.Context, tr device.Transition)

// Logger interface for optional logging support.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscriber struct {
	name    string
	handler Handler
}

// Bus is a bounded, non-blocking transition fan-out.
//
// Thread Safety:
//   - Publish, Subscribe and Dropped are safe for concurrent use.
//   - Run must be called at most once.
type Bus struct {
	ch chan device.Transition

	subs   []subscriber
	subsMu sync.RWMutex

	dropped atomic.Uint64
	onDrop  func(device.Transition)

	logger Logger
}

// NewBus creates a bus with a queue of size events.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Bus{ch: make(chan device.Transition, size)}
}

// SetLogger sets a logger for dropped events and handler panics.
func (b *Bus) SetLogger(logger Logger) {
	b.logger = logger
}

// SetOnDrop sets a callback invoked for every dropped event. It runs on
// the publishing goroutine and must not block.
func (b *Bus) SetOnDrop(fn func(device.Transition)) {
	b.onDrop = fn
}

// Subscribe registers a named handler.
func (b *Bus) Subscribe(name string, h Handler) {
	if h == nil {
		return
	}
	b.subsMu.Lock()
	b.subs = append(b.subs, subscriber{name: name, handler: h})
	b.subsMu.Unlock()
}

// Publish enqueues tr without blocking. It reports false when the queue
// was full and the event was dropped.
func (b *Bus) Publish(tr device.Transition) bool {
	select {
	case b.ch <- tr:
		return true
	default:
	}

	b.dropped.Add(1)
	if b.onDrop != nil {
		b.onDrop(tr)
	}
	if b.logger != nil {
		b.logger.Warn("event dropped, bus full", "device", tr.Device, "to", tr.To)
	}
	return false
}

// Observer returns a device.Observer that publishes onto the bus.
func (b *Bus) Observer() device.Observer {
	return func(tr device.Transition) {
		b.Publish(tr)
	}
}

// Dropped returns how many events have been dropped so far.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.ch)
}

// Run delivers events until ctx is cancelled, then delivers whatever is
// still queued and returns.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.drain(ctx)
			return
		case tr := <-b.ch:
			b.deliver(ctx, tr)
		}
	}
}

func (b *Bus) drain(ctx context.Context) {
	for {
		select {
		case tr := <-b.ch:
			b.deliver(ctx, tr)
		default:
			return
		}
	}
}

func (b *Bus) deliver(ctx context.Context, tr device.Transition) {
	b.subsMu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.subsMu.RUnlock()

	for _, s := range subs {
		b.call(ctx, s, tr)
	}
}

// call runs one handler with panic recovery.
func (b *Bus) call(ctx context.Context, s subscriber, tr device.Transition) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error("event handler panic recovered",
				"handler", s.name,
				"device", tr.Device,
				"panic", r,
			)
		}
	}()
	s.handler(ctx, tr)
}

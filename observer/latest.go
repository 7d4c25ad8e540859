package observer

import (
	"context"
	"sync"
	"sync/atomic"
)

// Latest is a single slot mailbox. Each OnUpdate replaces any value the consumer has not taken
// yet, so a slow consumer always sees the newest value and never queues stale ones.
type Latest[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
	signal  chan struct{}
	dropped atomic.Uint64
}

// NewLatest returns an empty mailbox.
func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{signal: make(chan struct{}, 1)}
}

// OnUpdate stores value, overwriting a pending one. It never blocks.
func (l *Latest[T]) OnUpdate(_ context.Context, value T) error {
	l.mu.Lock()
	if l.pending {
		l.dropped.Add(1)
	}
	l.value = value
	l.pending = true
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return nil
}

// Next blocks until a value is pending or ctx is done, then takes it.
func (l *Latest[T]) Next(ctx context.Context) (T, error) {
	for {
		if v, ok := l.TryNext(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-l.signal:
		}
	}
}

// TryNext takes the pending value without blocking.
func (l *Latest[T]) TryNext() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.pending {
		var zero T
		return zero, false
	}
	v := l.value
	var zero T
	l.value = zero
	l.pending = false
	return v, true
}

// Dropped returns how many values were overwritten before being taken.
func (l *Latest[T]) Dropped() uint64 {
	return l.dropped.Load()
}

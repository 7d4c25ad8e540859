// Package observer broadcasts values from one producer to any number of passive consumers.
package observer

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/pkg/errors"

	"github.com/avioncargo/precisionland/logging"
)

// An Observer receives every value published on a Bus it is subscribed to. OnUpdate runs on the
// publisher's goroutine, so it must return quickly; slow consumers should hand off to a Latest.
type Observer[T any] interface {
	OnUpdate(ctx context.Context, value T) error
}

// FuncObserver adapts a function to an Observer. Subscribe a *FuncObserver so that it can later be
// unsubscribed by identity.
type FuncObserver[T any] struct {
	fn func(ctx context.Context, value T) error
}

// NewFuncObserver returns an observer that calls fn.
func NewFuncObserver[T any](fn func(ctx context.Context, value T) error) *FuncObserver[T] {
	return &FuncObserver[T]{fn: fn}
}

// OnUpdate calls the wrapped function.
func (o *FuncObserver[T]) OnUpdate(ctx context.Context, value T) error {
	return o.fn(ctx, value)
}

// Bus is a thread-safe subscriber registry. Publish copies the registry under the lock and then
// notifies each observer outside it, so observers may subscribe or unsubscribe from a callback.
// Observers are identified by equality, so they must be comparable; pointer types are the norm.
type Bus[T any] struct {
	mu        sync.Mutex
	observers []Observer[T]
	logger    logging.Logger
}

// NewBus returns an empty bus that logs observer failures to logger.
func NewBus[T any](logger logging.Logger) *Bus[T] {
	return &Bus[T]{logger: logger}
}

// ErrNotComparable is returned by Subscribe for observers that cannot be told apart by identity.
var ErrNotComparable = errors.New("observer must be a comparable value, usually a pointer")

func isComparable(o any) bool {
	t := reflect.TypeOf(o)
	return t != nil && t.Comparable()
}

// Subscribe adds o. Subscribing an observer twice is a no-op. Observers whose dynamic type is not
// comparable, like structs holding slices, are rejected with ErrNotComparable.
func (b *Bus[T]) Subscribe(o Observer[T]) error {
	if !isComparable(o) {
		return errors.Wrapf(ErrNotComparable, "cannot subscribe %T", o)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.observers {
		if existing == o {
			return nil
		}
	}
	b.observers = append(b.observers, o)
	return nil
}

// Unsubscribe removes o. It reports whether o was subscribed.
func (b *Bus[T]) Unsubscribe(o Observer[T]) bool {
	if !isComparable(o) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.observers {
		if existing == o {
			b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// Publish delivers value to every current subscriber at most once, in no particular order. An
// observer that errors or panics is logged and skipped; the others still receive the value. The
// returned count is the number of observers that failed.
func (b *Bus[T]) Publish(ctx context.Context, value T) int {
	b.mu.Lock()
	observers := make([]Observer[T], len(b.observers))
	copy(observers, b.observers)
	b.mu.Unlock()

	failed := 0
	for _, o := range observers {
		if err := notify(ctx, o, value); err != nil {
			failed++
			b.logger.Warnw("observer failed", "observer", fmt.Sprintf("%T", o), "error", err)
		}
	}
	return failed
}

func notify[T any](ctx context.Context, o Observer[T], value T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("observer panicked: %v", r)
		}
	}()
	return o.OnUpdate(ctx, value)
}

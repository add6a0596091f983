package install

import (
	"context"
	"sync"
)

type flight[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// flights runs fn once per key. Later callers for the same key wait for
// the first call and share its result, success or failure. Entries live
// for one operation.
type flights[T any] struct {
	mu sync.Mutex
	m  map[string]*flight[T]
}

func newFlights[T any]() *flights[T] {
	return &flights[T]{m: make(map[string]*flight[T])}
}

func (f *flights[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, error) {
	f.mu.Lock()
	if c, ok := f.m[key]; ok {
		f.mu.Unlock()
		select {
		case <-c.done:
			return c.val, c.err
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
	c := &flight[T]{done: make(chan struct{})}
	f.m[key] = c
	f.mu.Unlock()

	c.val, c.err = fn()
	close(c.done)
	return c.val, c.err
}

// Len returns the number of keys seen.
func (f *flights[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m)
}

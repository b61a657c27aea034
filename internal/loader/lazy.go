// Package loader provides a load-once value whose first load is shared by all
// concurrent callers and whose failures are retried on the next call.
package loader

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const flightKey = "load"

// LoadFunc produces the value. It runs on a context that is not cancelled when
// the triggering caller gives up, since other callers may be waiting on it.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Lazy holds a value that is loaded at most once successfully.
//
// Concurrent Get calls during a load share that load. A failed load is reported
// to every caller that waited on it and is not remembered: the next Get starts
// a fresh attempt. Once loaded, Get is a single atomic read.
type Lazy[T any] struct {
	load    LoadFunc[T]
	value   atomic.Pointer[T]
	group   singleflight.Group
	attempt atomic.Int64
	onStart func()
	onDone  func(err error)
}

// Option configures a Lazy.
type Option func(*hooks)

type hooks struct {
	onStart func()
	onDone  func(err error)
}

// WithHooks registers callbacks run around every load attempt. onDone receives
// the attempt's error, nil on success. Either may be nil.
func WithHooks(onStart func(), onDone func(err error)) Option {
	return func(h *hooks) {
		h.onStart = onStart
		h.onDone = onDone
	}
}

// New returns a Lazy that calls load on first use.
func New[T any](load LoadFunc[T], opts ...Option) *Lazy[T] {
	var h hooks
	for _, opt := range opts {
		opt(&h)
	}
	return &Lazy[T]{load: load, onStart: h.onStart, onDone: h.onDone}
}

// Get returns the loaded value, loading it if needed. ctx bounds only how long
// this caller waits; it does not cancel a load other callers share.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if v := l.value.Load(); v != nil {
		return *v, nil
	}
	ch := l.group.DoChan(flightKey, func() (any, error) {
		if v := l.value.Load(); v != nil {
			return *v, nil
		}
		l.attempt.Add(1)
		if l.onStart != nil {
			l.onStart()
		}
		v, err := l.load(context.WithoutCancel(ctx))
		if err == nil {
			l.value.Store(&v)
		}
		if l.onDone != nil {
			l.onDone(err)
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			var zero T
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// Loaded reports whether a load has succeeded.
func (l *Lazy[T]) Loaded() bool {
	return l.value.Load() != nil
}

// Peek returns the value without triggering a load.
func (l *Lazy[T]) Peek() (T, bool) {
	if v := l.value.Load(); v != nil {
		return *v, true
	}
	var zero T
	return zero, false
}

// Attempts returns how many times the load function has been invoked.
func (l *Lazy[T]) Attempts() int64 {
	return l.attempt.Load()
}

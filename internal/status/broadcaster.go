// Package status broadcasts state transitions to subscribers. Each subscriber
// first receives the current state, then every later transition in order.
package status

import "sync"

// Broadcaster holds a current value of type T and fans out every change.
type Broadcaster[T comparable] struct {
	mu      sync.Mutex
	current T
	subs    map[*Subscription[T]]struct{}
}

// NewBroadcaster returns a broadcaster whose current state is initial.
func NewBroadcaster[T comparable](initial T) *Broadcaster[T] {
	return &Broadcaster[T]{
		current: initial,
		subs:    make(map[*Subscription[T]]struct{}),
	}
}

// Current returns the latest published state.
func (b *Broadcaster[T]) Current() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Publish records v and delivers it to every subscriber. Publishing the value
// already current is not a transition and notifies nobody.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v == b.current {
		return
	}
	b.current = v
	for s := range b.subs {
		s.enqueue(v)
	}
}

// Subscribe registers a subscriber. The current state is queued immediately.
func (b *Broadcaster[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{
		owner:  b,
		wake:   make(chan struct{}, 1),
		out:    make(chan T),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	s.enqueue(b.current)
	b.mu.Unlock()
	go s.pump()
	return s
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster[T]) remove(s *Subscription[T]) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is a cancellable handle on a broadcaster. Values are queued
// without bound so a slow reader never makes Publish block or drop states.
type Subscription[T comparable] struct {
	owner  *Broadcaster[T]
	mu     sync.Mutex
	queue  []T
	wake   chan struct{}
	out    chan T
	closed chan struct{}
	once   sync.Once
}

// C delivers states in publish order. It is closed after Cancel.
func (s *Subscription[T]) C() <-chan T {
	return s.out
}

// Cancel unsubscribes. It is safe to call more than once.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() {
		s.owner.remove(s)
		close(s.closed)
	})
}

func (s *Subscription[T]) enqueue(v T) {
	s.mu.Lock()
	s.queue = append(s.queue, v)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) next() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		var zero T
		return zero, false
	}
	v := s.queue[0]
	s.queue = s.queue[1:]
	return v, true
}

func (s *Subscription[T]) pump() {
	defer close(s.out)
	for {
		v, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.closed:
				return
			}
		}
		select {
		case s.out <- v:
		case <-s.closed:
			return
		}
	}
}

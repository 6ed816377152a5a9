// Package subject provides a replaying broadcast variable: the latest published value is
// readable synchronously and every subscriber sees every publish, in order.
package subject

import (
	"context"
	"sync"
)

// Subject holds a value and broadcasts each new one to subscribers.
//
// Publishes are serialized, and each subscriber receives them in exactly the order
// [Subject.Set] was called, without coalescing. Callbacks run synchronously on the
// publishing goroutine; they must not call Set or Subscribe on the same Subject.
type Subject[T any] struct {
	pub sync.Mutex // serializes publish and subscribe

	mu    sync.RWMutex
	value T
	subs  []subscriber[T]
	next  uint64
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// New returns a Subject holding initial.
func New[T any](initial T) *Subject[T] {
	return &Subject[T]{value: initial}
}

// Current returns the latest published value.
func (s *Subject[T]) Current() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set publishes v to every current subscriber and makes it the value future
// subscribers start from.
func (s *Subject[T]) Set(v T) {
	s.pub.Lock()
	defer s.pub.Unlock()

	s.mu.Lock()
	s.value = v
	subs := make([]subscriber[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(v)
	}
}

// Subscribe calls fn with the current value, then with every subsequent publish.
// The returned function cancels the subscription and is safe to call more than once.
func (s *Subject[T]) Subscribe(fn func(T)) (cancel func()) {
	s.pub.Lock()
	defer s.pub.Unlock()

	s.mu.Lock()
	s.next++
	id := s.next
	s.subs = append(s.subs, subscriber[T]{id: id, fn: fn})
	current := s.value
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Subject[T]) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Watch delivers the current value and every later publish on a channel until ctx is
// done, at which point the channel is closed. Values are queued without bound, so a
// slow reader never drops or reorders updates and never blocks publishers.
func (s *Subject[T]) Watch(ctx context.Context) <-chan T {
	out := make(chan T)
	q := &queue[T]{signal: make(chan struct{}, 1)}
	cancel := s.Subscribe(q.push)

	go func() {
		defer close(out)
		defer cancel()
		for {
			v, ok := q.pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-q.signal:
					continue
				}
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	signal chan struct{}
}

func (q *queue[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue[T]) pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	v := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

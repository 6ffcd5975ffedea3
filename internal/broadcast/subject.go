// Package broadcast provides a last-value subject: subscribers see the most
// recently published value first, then every later value.
package broadcast

import "sync"

// Subject holds the last published value of T and fans it out to subscribers.
//
// Each subscriber channel has a single slot. A slow subscriber never blocks
// Publish; it simply sees the newest value when it next reads, older unread
// values are replaced.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Subject[T any] struct {
	mu     sync.RWMutex
	value  T
	set    bool
	subs   map[int]chan T
	nextID int
}

// New creates an empty Subject.
func New[T any]() *Subject[T] {
	return &Subject[T]{subs: make(map[int]chan T)}
}

// NewWithValue creates a Subject that already holds v.
func NewWithValue[T any](v T) *Subject[T] {
	s := New[T]()
	s.value = v
	s.set = true
	return s
}

// Get returns the last published value and whether one has been published.
func (s *Subject[T]) Get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.set
}

// Value returns the last published value, or the zero value.
func (s *Subject[T]) Value() T {
	v, _ := s.Get()
	return v
}

// Publish replaces the current value and notifies every subscriber.
func (s *Subject[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.value = v
	s.set = true
	for _, ch := range s.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel that receives the current value (if any) and
// every later one, and a cancel function that closes it.
func (s *Subject[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, 1)
	if s.set {
		ch <- s.value
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// offer puts v in ch, dropping the stale value if the slot is full.
// Must be called with s.mu held.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

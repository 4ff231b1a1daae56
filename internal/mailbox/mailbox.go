// Package mailbox implements the single-producer/single-consumer
// coalescing inbox named in spec.md §5 (L_kf_in, L_posegraph_in):
// "keep only newest". Grounded on the teacher's latestFrameHolder
// (modules/framebus/internal/bus/bus.go), generalized from Frame to
// any value type via Go generics.
package mailbox

import "sync"

// Mailbox holds at most one pending value of type T. A Put replaces
// whatever was pending; a blocked Take wakes and receives the newest
// value the moment one arrives. This is the coalescing policy spec.md
// §4.5 relies on for the pose-graph optimizer ("coalesces all pending
// pose-graph indices, keeps only the newest").
type Mailbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	value  *T
	seq    uint64
	closed bool
}

// New creates an empty mailbox.
func New[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put replaces the pending value and wakes a waiting Take. Returns
// false if the mailbox is closed.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.value = &v
	m.seq++
	m.cond.Broadcast()
	return true
}

// Take blocks until a value is pending or the mailbox closes, then
// clears and returns it. ok is false only on close with nothing
// pending.
func (m *Mailbox[T]) Take() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.value == nil && !m.closed {
		m.cond.Wait()
	}
	if m.value == nil {
		return v, false
	}
	v = *m.value
	m.value = nil
	return v, true
}

// TryTake returns the pending value without blocking.
func (m *Mailbox[T]) TryTake() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == nil {
		return v, false
	}
	v = *m.value
	m.value = nil
	return v, true
}

// Close wakes any blocked Take permanently.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cond.Broadcast()
}

// Package buffer holds accepted messages between ingestion and flush.
package buffer

import (
	"errors"
	"sync"

	"zero-trust-iot/gateway/internal/telemetry"
)

// ErrFull is returned by Enqueue under the reject policy when the buffer is
// at capacity.
var ErrFull = errors.New("buffer full")

// Policies for Enqueue at capacity. Values match the BUFFER_POLICY config.
const (
	PolicyReject     = "reject"
	PolicyDropOldest = "drop_oldest"
)

// Buffer is a mutex-guarded FIFO of accepted messages. Arrival order is
// preserved per producer; the lock covers only slice operations, never I/O.
type Buffer struct {
	mu       sync.Mutex
	items    []*telemetry.Message
	capacity int
	policy   string
	dropped  int64
}

// New returns a Buffer with the given capacity and backpressure policy.
// capacity 0 means unbounded, in which case the policy never applies.
func New(capacity int, policy string) *Buffer {
	return &Buffer{capacity: capacity, policy: policy}
}

// Enqueue appends msg. At capacity the reject policy refuses with ErrFull;
// the drop_oldest policy evicts the oldest buffered message to make room and
// returns it so the caller can account for the loss.
func (b *Buffer) Enqueue(msg *telemetry.Message) (evicted *telemetry.Message, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity > 0 && len(b.items) >= b.capacity {
		if b.policy != PolicyDropOldest {
			return nil, ErrFull
		}
		evicted = b.items[0]
		b.items[0] = nil
		b.items = b.items[1:]
		b.dropped++
	}
	b.items = append(b.items, msg)
	return evicted, nil
}

// Drain removes and returns up to max messages from the front, preserving
// arrival order. max <= 0 drains everything. Returns nil when empty.
func (b *Buffer) Drain(max int) []*telemetry.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.items)
	if n == 0 {
		return nil
	}
	if max > 0 && n > max {
		n = max
	}
	out := make([]*telemetry.Message, n)
	copy(out, b.items[:n])

	rest := make([]*telemetry.Message, len(b.items)-n)
	copy(rest, b.items[n:])
	b.items = rest
	return out
}

// Len returns the number of buffered messages.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns how many messages the drop_oldest policy has evicted.
func (b *Buffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

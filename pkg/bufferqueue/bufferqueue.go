// Package bufferqueue implements a bounded, single-producer /
// single-consumer exchange of reference-counted image buffers. The
// producer dequeues a slot, fills the backing buffer out of band and
// queues it with per-frame metadata; the consumer acquires the FIFO
// head, uses the buffer and releases the slot back to the free pool.
//
// A fixed table of 32 slots moves through FREE, DEQUEUED, QUEUED and
// ACQUIRED under a single lock. Frames queued in async or cannot-block
// mode are droppable: a newer frame replaces the FIFO head in place
// instead of growing the backlog.
package bufferqueue

import "bufferqueue/pkg/gfx"

// New builds a queue core and returns the producer and consumer
// endpoints bound to it. A nil allocator selects the pooled default.
func New(allocator gfx.Allocator) (*Producer, *Consumer) {
	core := newCore(allocator)
	return &Producer{core: core}, &Consumer{core: core}
}

// Core returns the shared core for stats export. The core has no
// mutating surface.
func (p *Producer) Core() *Core { return p.core }

// Core returns the shared core for stats export.
func (cons *Consumer) Core() *Core { return cons.core }

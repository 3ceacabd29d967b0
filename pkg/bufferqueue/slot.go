package bufferqueue

import (
	"bufferqueue/pkg/fence"
	"bufferqueue/pkg/gfx"
)

// BufferState is the ownership state of one slot.
type BufferState int

const (
	// StateFree: owned by the queue, available to the producer.
	StateFree BufferState = iota
	// StateDequeued: owned by the producer, being filled.
	StateDequeued
	// StateQueued: owned by the queue, waiting in the FIFO.
	StateQueued
	// StateAcquired: owned by the consumer.
	StateAcquired
)

func (s BufferState) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateDequeued:
		return "DEQUEUED"
	case StateQueued:
		return "QUEUED"
	case StateAcquired:
		return "ACQUIRED"
	}
	return "UNKNOWN"
}

// bufferSlot is one entry of the slot table. All fields are guarded by
// the core lock.
type bufferSlot struct {
	buffer *gfx.Buffer
	state  BufferState

	// requestBufferCalled latches once the producer has fetched the
	// backing handle after a (re)allocation.
	requestBufferCalled bool

	// frameNumber is assigned at queue time. Freed slots reset to 0 so
	// the oldest-free scan picks them first.
	frameNumber uint64

	// fence travels producer→consumer with the queued frame.
	fence fence.Fence

	// releaseFence travels consumer→producer: stored at release, waited
	// on by the next dequeuer.
	releaseFence fence.Fence

	// acquireCalled latches once the consumer has received this slot's
	// handle.
	acquireCalled bool

	// needsCleanupOnRelease latches when a non-empty slot is freed, so
	// GetReleasedBuffers can report it to the consumer.
	needsCleanupOnRelease bool
}

package bufferqueue

import "errors"

// Sentinel errors surfaced at the endpoint boundary. The core never
// panics across operations; every failure maps to one of these, except
// an allocation failure in DequeueBuffer, which returns the allocator's
// own error.
var (
	// ErrNoInit is returned after Abandon or after the consumer
	// disconnects (see Consumer.Abandon for the exceptions), and by
	// Connect when no consumer is connected. Before Connect, only
	// DequeueBuffer, QueueBuffer and CancelBuffer return it; the other
	// producer calls do not check for a connected producer.
	ErrNoInit = errors.New("bufferqueue: not initialized or abandoned")

	// ErrBadValue reports an out-of-range argument: slot index,
	// asymmetric width/height, oversized buffer count, unknown scaling
	// mode, or a crop rect not contained in the buffer.
	ErrBadValue = errors.New("bufferqueue: bad value")

	// ErrInvalidOperation reports a call in the wrong state, such as
	// queueing a slot whose backing buffer was never requested or
	// connecting twice.
	ErrInvalidOperation = errors.New("bufferqueue: invalid operation")

	// ErrWouldBlock is returned by DequeueBuffer instead of waiting
	// when the queue is in cannot-block mode.
	ErrWouldBlock = errors.New("bufferqueue: dequeue would block")

	// ErrStaleBufferSlot reports a release whose frame number no longer
	// matches the slot, typically after the producer disconnected and
	// reconnected or the slot was reallocated.
	ErrStaleBufferSlot = errors.New("bufferqueue: stale buffer slot")

	// ErrPresentLater is returned by AcquireBuffer when the head
	// frame's timestamp is later than the requested present time.
	ErrPresentLater = errors.New("bufferqueue: buffer not ready for presentation")

	// ErrNoBufferAvailable is returned by AcquireBuffer when the FIFO
	// is empty.
	ErrNoBufferAvailable = errors.New("bufferqueue: no buffer available")

	// ErrMultipleDequeue reports a second concurrent dequeue from a
	// producer that never set an explicit buffer count.
	ErrMultipleDequeue = errors.New("bufferqueue: cannot dequeue multiple buffers without setting the buffer count")

	// ErrMinUndequeued reports a dequeue that would leave the consumer
	// fewer than the minimum undequeued buffers.
	ErrMinUndequeued = errors.New("bufferqueue: min undequeued buffer count exceeded")
)

package bufferqueue

import (
	"bufferqueue/pkg/fence"
	"bufferqueue/pkg/gfx"
	"bufferqueue/pkg/logger"
	"sync/atomic"
)

// Producer is the image-producer endpoint. All methods are safe for
// concurrent use; state lives on the shared Core.
type Producer struct {
	core *Core
}

// Connect attaches a producer API to the queue. It fails if the queue
// is abandoned, if no consumer is connected, or if another API is
// already connected. Cannot-block mode engages when both sides declare
// themselves application-controlled.
func (p *Producer) Connect(api API, producerControlledByApp bool) (QueueBufferOutput, error) {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	var out QueueBufferOutput
	if c.abandoned {
		return out, ErrNoInit
	}
	if c.consumerListener == nil {
		return out, ErrNoInit
	}
	if !api.valid() {
		return out, ErrBadValue
	}
	if c.connectedAPI != NoConnectedAPI {
		logger.Warn("producer_already_connected",
			"consumer", c.consumerName, "connected_api", int(c.connectedAPI), "api", int(api))
		return out, ErrInvalidOperation
	}

	c.connectedAPI = api
	c.bufferHasBeenQueued = false
	c.dequeueBufferCannotBlock = c.consumerControlledByApp && producerControlledByApp

	out.Width = c.defaultWidth
	out.Height = c.defaultHeight
	out.TransformHint = c.transformHint
	out.NumPendingBuffers = len(c.queue)
	return out, nil
}

// Disconnect detaches the producer API. Every slot is freed and the
// consumer is notified that its buffer references are gone.
// Disconnecting an abandoned queue is not an error.
func (p *Producer) Disconnect(api API) error {
	c := p.core
	var listener ConsumerListener

	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return nil
	}
	if !api.valid() || c.connectedAPI != api {
		c.mu.Unlock()
		return ErrBadValue
	}
	c.freeAllBuffersLocked()
	c.connectedAPI = NoConnectedAPI
	c.dequeueCond.Broadcast()
	listener = c.listenerLocked()
	c.mu.Unlock()

	if listener != nil {
		listener.OnBuffersReleased()
	}
	return nil
}

// SetBufferCount sets an explicit max buffer count override; zero
// clears it and leaves the slots as they are. The producer must not
// hold any dequeued buffers. On success with a non-zero count every
// slot is freed, so the producer must drop its cached handles.
func (p *Producer) SetBufferCount(count int) error {
	c := p.core
	var listener ConsumerListener

	c.mu.Lock()
	if c.abandoned {
		c.mu.Unlock()
		return ErrNoInit
	}
	if count > NumBufferSlots {
		c.mu.Unlock()
		return ErrBadValue
	}
	for i := range c.slots {
		if c.slots[i].state == StateDequeued {
			c.mu.Unlock()
			return ErrInvalidOperation
		}
	}

	if count == 0 {
		c.overrideMaxBufferCount = 0
		c.dequeueCond.Broadcast()
		c.mu.Unlock()
		return nil
	}

	// async is assumed off while (re)setting the count.
	if count < c.minMaxBufferCountLocked(false) {
		c.mu.Unlock()
		return ErrBadValue
	}

	// No dequeued buffers here, so the producer holds no handles worth
	// keeping; start the new regime from an empty slot table.
	c.freeAllBuffersLocked()
	c.overrideMaxBufferCount = count
	c.dequeueCond.Broadcast()
	listener = c.listenerLocked()
	c.mu.Unlock()

	if listener != nil {
		listener.OnBuffersReleased()
	}
	return nil
}

// DequeueBuffer reserves a free slot for the producer to fill. The
// returned fence must be waited on before writing to the buffer. When
// flags carries BufferNeedsReallocation the producer must call
// RequestBuffer before queueing the slot.
//
// Zero width and height select the default size; they must be zero or
// non-zero together. A zero format selects the default format. The
// consumer's usage bits are OR'd into the request.
func (p *Producer) DequeueBuffer(async bool, w, h uint32, format gfx.Format, usage gfx.Usage) (int, fence.Fence, DequeueFlags, error) {
	c := p.core

	if (w == 0) != (h == 0) {
		logger.Error("dequeue_invalid_size", "w", w, "h", h)
		return invalidBufferSlot, fence.NoFence, 0, ErrBadValue
	}

	var flags DequeueFlags
	var releaseFence fence.Fence

	c.mu.Lock()

	if format == 0 {
		format = c.defaultBufferFormat
	}
	usage |= c.consumerUsageBits

	found := invalidBufferSlot
	for tryAgain := true; tryAgain; {
		if c.abandoned {
			c.mu.Unlock()
			return invalidBufferSlot, fence.NoFence, 0, ErrNoInit
		}
		if c.connectedAPI == NoConnectedAPI {
			c.mu.Unlock()
			return invalidBufferSlot, fence.NoFence, 0, ErrNoInit
		}

		effAsync := c.asyncLocked(async)
		maxBufferCount := c.maxBufferCountLocked(effAsync)
		if effAsync && c.overrideMaxBufferCount != 0 &&
			c.overrideMaxBufferCount < c.minMaxBufferCountLocked(true) {
			c.mu.Unlock()
			logger.Error("dequeue_async_with_override", "override", c.overrideMaxBufferCount)
			return invalidBufferSlot, fence.NoFence, 0, ErrBadValue
		}

		// Free buffers in slots beyond the current ceiling.
		for i := maxBufferCount; i < NumBufferSlots; i++ {
			if c.slots[i].state == StateFree && c.slots[i].buffer != nil {
				c.freeBufferLocked(i)
				flags |= ReleaseAllBuffers
			}
		}

		found = invalidBufferSlot
		dequeuedCount := 0
		acquiredCount := 0
		for i := 0; i < maxBufferCount; i++ {
			switch c.slots[i].state {
			case StateDequeued:
				dequeuedCount++
			case StateAcquired:
				acquiredCount++
			case StateFree:
				// Hand out the oldest free buffer: the consumer may
				// still have reads in flight against newer ones.
				if found < 0 || c.slots[i].frameNumber < c.slots[found].frameNumber {
					found = i
				}
			}
		}

		if c.overrideMaxBufferCount == 0 && dequeuedCount > 0 {
			c.mu.Unlock()
			return invalidBufferSlot, fence.NoFence, 0, ErrMultipleDequeue
		}

		// Before the first queue a single dequeue is always permitted;
		// afterwards the consumer's undequeued floor applies.
		if c.bufferHasBeenQueued {
			newUndequeued := maxBufferCount - (dequeuedCount + 1)
			if minUndequeued := c.minUndequeuedCountLocked(effAsync); newUndequeued < minUndequeued {
				c.mu.Unlock()
				logger.Error("dequeue_min_undequeued_exceeded",
					"consumer", c.consumerName, "min", minUndequeued, "dequeued", dequeuedCount)
				return invalidBufferSlot, fence.NoFence, 0, ErrMinUndequeued
			}
		}

		tryAgain = found == invalidBufferSlot
		if tryAgain {
			// The consumer may briefly hold one extra acquired buffer;
			// that wait is short, so cannot-block only fails fast while
			// the consumer is within its budget.
			if c.dequeueBufferCannotBlock && acquiredCount <= c.maxAcquiredBufferCount {
				c.mu.Unlock()
				logger.Warn("dequeue_would_block", "consumer", c.consumerName)
				return invalidBufferSlot, fence.NoFence, 0, ErrWouldBlock
			}
			atomic.AddUint64(&c.dequeueWaits, 1)
			c.dequeueCond.Wait()
		}
	}

	slot := &c.slots[found]

	if w == 0 && h == 0 {
		w = c.defaultWidth
		h = c.defaultHeight
	}

	slot.state = StateDequeued

	if slot.buffer == nil || !slot.buffer.Matches(w, h, format, usage) {
		if slot.buffer != nil {
			slot.buffer.Release()
			slot.buffer = nil
		}
		slot.acquireCalled = false
		slot.requestBufferCalled = false
		slot.fence = fence.NoFence
		slot.releaseFence = fence.NoFence
		flags |= BufferNeedsReallocation
	}

	outFence := slot.fence
	releaseFence = slot.releaseFence
	slot.fence = fence.NoFence
	slot.releaseFence = fence.NoFence
	c.mu.Unlock()

	if flags&BufferNeedsReallocation != 0 {
		buffer, err := c.allocator.Allocate(w, h, format, usage)
		if err != nil {
			// The slot stays dequeued with no handle; the producer
			// recovers with CancelBuffer.
			logger.Error("dequeue_allocation_failed",
				"consumer", c.ConsumerName(), "w", w, "h", h, "format", uint32(format), "error", err)
			return found, fence.NoFence, flags, err
		}

		c.mu.Lock()
		if c.abandoned {
			c.mu.Unlock()
			buffer.Release()
			return invalidBufferSlot, fence.NoFence, 0, ErrNoInit
		}
		// The frame number is assigned at queue time; park it at the
		// ceiling so a freed-and-reused slot never looks oldest.
		c.slots[found].frameNumber = ^uint64(0)
		c.slots[found].buffer = buffer
		c.mu.Unlock()
	}

	if !fence.IsNoFence(releaseFence) {
		if err := releaseFence.Wait(dequeueFenceTimeout); err != nil {
			// Too late to abort the dequeue; hand the buffer out
			// without synchronized access.
			logger.Error("dequeue_fence_wait_failed", "consumer", c.ConsumerName(), "slot", found, "error", err)
		}
	}

	return found, outFence, flags, nil
}

// RequestBuffer returns the backing buffer of a dequeued slot and marks
// the handle as fetched. The caller shares the slot's reference; it
// must IncRef if it keeps the handle past queueing.
func (p *Producer) RequestBuffer(slot int) (*gfx.Buffer, error) {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return nil, ErrNoInit
	}
	if slot < 0 || slot >= NumBufferSlots {
		return nil, ErrBadValue
	}
	if c.slots[slot].state != StateDequeued {
		logger.Error("request_buffer_not_dequeued",
			"consumer", c.consumerName, "slot", slot, "state", c.slots[slot].state.String())
		return nil, ErrBadValue
	}
	c.slots[slot].requestBufferCalled = true
	return c.slots[slot].buffer, nil
}

// QueueBuffer hands a filled slot to the consumer with its per-frame
// metadata. When the FIFO head is droppable it is replaced in place and
// its slot returns to FREE; otherwise the frame is appended and
// OnFrameAvailable fires after the lock is released.
func (p *Producer) QueueBuffer(slot int, input QueueBufferInput) (QueueBufferOutput, error) {
	c := p.core
	var out QueueBufferOutput
	var listener ConsumerListener

	if input.Fence == nil {
		return out, ErrBadValue
	}
	if !input.ScalingMode.valid() {
		logger.Error("queue_unknown_scaling_mode", "mode", int32(input.ScalingMode))
		return out, ErrBadValue
	}

	c.mu.Lock()

	if c.abandoned {
		c.mu.Unlock()
		return out, ErrNoInit
	}
	if c.connectedAPI == NoConnectedAPI {
		c.mu.Unlock()
		return out, ErrNoInit
	}

	async := c.asyncLocked(input.Async)
	maxBufferCount := c.maxBufferCountLocked(async)
	if async && c.overrideMaxBufferCount != 0 &&
		c.overrideMaxBufferCount < c.minMaxBufferCountLocked(true) {
		c.mu.Unlock()
		return out, ErrBadValue
	}
	if slot < 0 || slot >= maxBufferCount {
		c.mu.Unlock()
		logger.Error("queue_slot_out_of_range", "slot", slot, "max", maxBufferCount)
		return out, ErrBadValue
	}

	s := &c.slots[slot]
	switch {
	case s.state != StateDequeued:
		c.mu.Unlock()
		logger.Error("queue_slot_not_dequeued",
			"consumer", c.consumerName, "slot", slot, "state", s.state.String())
		return out, ErrInvalidOperation
	case !s.requestBufferCalled:
		c.mu.Unlock()
		logger.Error("queue_without_request_buffer", "consumer", c.consumerName, "slot", slot)
		return out, ErrInvalidOperation
	}

	cropped, _ := input.Crop.Intersect(s.buffer.Bounds())
	if cropped != input.Crop {
		c.mu.Unlock()
		logger.Error("queue_crop_outside_buffer", "consumer", c.consumerName, "slot", slot)
		return out, ErrBadValue
	}

	s.fence = input.Fence
	s.state = StateQueued
	c.frameCounter++
	s.frameNumber = c.frameCounter

	item := BufferItem{
		Buffer:                    s.buffer,
		Slot:                      slot,
		Crop:                      input.Crop,
		Transform:                 input.Transform &^ TransformInverseDisplay,
		TransformToDisplayInverse: input.Transform&TransformInverseDisplay != 0,
		ScalingMode:               input.ScalingMode,
		Timestamp:                 input.Timestamp,
		IsAutoTimestamp:           input.IsAutoTimestamp,
		FrameNumber:               c.frameCounter,
		Fence:                     input.Fence,
		IsDroppable:               c.dequeueBufferCannotBlock || async,
		AcquireCalled:             s.acquireCalled,
	}

	if len(c.queue) == 0 {
		// An empty queue always takes the frame, droppable or not.
		c.queue = append(c.queue, item)
		listener = c.listenerLocked()
	} else if front := &c.queue[0]; front.IsDroppable {
		// Replace the head in place. The head's slot returns to FREE
		// with frame number zero so it is next in line to dequeue; no
		// frame-available callback for a swap.
		if c.stillTracking(front) {
			c.slots[front.Slot].state = StateFree
			c.slots[front.Slot].frameNumber = 0
		}
		atomic.AddUint64(&c.framesDropped, 1)
		*front = item
	} else {
		c.queue = append(c.queue, item)
		listener = c.listenerLocked()
	}

	c.bufferHasBeenQueued = true
	atomic.AddUint64(&c.framesQueued, 1)
	c.dequeueCond.Broadcast()

	out.Width = c.defaultWidth
	out.Height = c.defaultHeight
	out.TransformHint = c.transformHint
	out.NumPendingBuffers = len(c.queue)
	c.mu.Unlock()

	if listener != nil {
		listener.OnFrameAvailable()
	}
	return out, nil
}

// CancelBuffer returns a dequeued slot to FREE without queueing it. The
// fence is retained on the slot for the next dequeuer to wait on.
func (p *Producer) CancelBuffer(slot int, f fence.Fence) error {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if c.connectedAPI == NoConnectedAPI {
		return ErrNoInit
	}
	if slot < 0 || slot >= NumBufferSlots {
		return ErrBadValue
	}
	if f == nil {
		return ErrBadValue
	}
	if c.slots[slot].state != StateDequeued {
		logger.Error("cancel_slot_not_dequeued",
			"consumer", c.consumerName, "slot", slot, "state", c.slots[slot].state.String())
		return ErrBadValue
	}

	c.slots[slot].state = StateFree
	c.slots[slot].frameNumber = 0
	c.slots[slot].fence = f
	c.dequeueCond.Broadcast()
	return nil
}

// Query reports queue parameters by stable query code.
func (p *Producer) Query(what int) (int, error) {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return 0, ErrNoInit
	}
	switch what {
	case QueryWidth:
		return int(c.defaultWidth), nil
	case QueryHeight:
		return int(c.defaultHeight), nil
	case QueryFormat:
		return int(c.defaultBufferFormat), nil
	case QueryMinUndequeuedBuffers:
		return c.minUndequeuedCountLocked(false), nil
	case QueryConsumerRunningBehind:
		if len(c.queue) >= 2 {
			return 1, nil
		}
		return 0, nil
	case QueryConsumerUsageBits:
		return int(c.consumerUsageBits), nil
	}
	return 0, ErrBadValue
}

// SetAsyncMode makes every subsequent queue/dequeue behave as if the
// per-call async flag were set: frames become droppable and the
// undequeued floor rises.
func (p *Producer) SetAsyncMode(async bool) error {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	c.asyncMode = async
	c.dequeueCond.Broadcast()
	return nil
}

// SetBuffersSize forwards a byte-size hint to the allocator for
// subsequent allocations.
func (p *Producer) SetBuffersSize(size int) error {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if size < 0 {
		return ErrBadValue
	}
	c.allocator.SetBufferSize(size)
	return nil
}

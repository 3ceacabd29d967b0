package bufferqueue

import (
	"sync/atomic"

	"bufferqueue/pkg/fence"
	"bufferqueue/pkg/gfx"
	"bufferqueue/pkg/logger"
)

// Consumer is the image-consumer endpoint. All methods are safe for
// concurrent use; state lives on the shared Core.
type Consumer struct {
	core  *Core
	proxy *proxyListener
}

// AcquireBuffer pops the FIFO head for consumption. With a non-zero
// presentWhen, frames that would already be superseded by that time are
// dropped, and ErrPresentLater is returned while the head is still too
// early to display. The consumer must not exceed its acquired-buffer
// budget.
//
// The returned item's Buffer is nil when this slot's handle was already
// delivered by an earlier acquire; the AcquireCalled flag says so.
func (cons *Consumer) AcquireBuffer(presentWhen int64) (BufferItem, error) {
	c := cons.core
	c.mu.Lock()

	var item BufferItem
	if c.abandoned {
		c.mu.Unlock()
		return item, ErrNoInit
	}

	_, acquiredCount := c.countsLocked(NumBufferSlots)
	if acquiredCount >= c.maxAcquiredBufferCount {
		c.mu.Unlock()
		logger.Error("acquire_over_budget",
			"consumer", c.consumerName, "acquired", acquiredCount, "max", c.maxAcquiredBufferCount)
		return item, ErrInvalidOperation
	}

	if len(c.queue) == 0 {
		c.mu.Unlock()
		return item, ErrNoBufferAvailable
	}

	if presentWhen != 0 {
		// Drop heads that a newer pending frame supersedes by the
		// requested present time.
		for len(c.queue) >= 2 && c.queue[1].Timestamp <= presentWhen {
			front := &c.queue[0]
			if c.stillTracking(front) {
				c.slots[front.Slot].state = StateFree
				c.slots[front.Slot].frameNumber = 0
			}
			atomic.AddUint64(&c.framesDropped, 1)
			c.queue = c.queue[1:]
		}
		if head := &c.queue[0]; head.Timestamp > presentWhen {
			c.mu.Unlock()
			return item, ErrPresentLater
		}
	}

	item = c.queue[0]
	c.queue = c.queue[1:]

	if c.stillTracking(&item) {
		s := &c.slots[item.Slot]
		item.AcquireCalled = s.acquireCalled
		if s.acquireCalled {
			// The consumer already holds this handle; skip
			// re-marshalling it.
			item.Buffer = nil
		}
		s.state = StateAcquired
		s.acquireCalled = true
		s.fence = fence.NoFence
	}

	atomic.AddUint64(&c.framesAcquired, 1)
	c.dequeueCond.Broadcast()
	c.mu.Unlock()
	return item, nil
}

// ReleaseBuffer returns an acquired slot to FREE. The consumer's fence
// is stored on the slot for the next dequeuer to wait on. A release
// whose frame number no longer matches the slot (the producer
// disconnected and reconnected, or the buffer was dropped and
// reallocated) is a no-op reported as ErrStaleBufferSlot. After
// abandonment every release returns ErrNoInit.
func (cons *Consumer) ReleaseBuffer(slot int, frameNumber uint64, releaseFence fence.Fence) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if slot < 0 || slot >= NumBufferSlots {
		return ErrBadValue
	}
	if releaseFence == nil {
		return ErrBadValue
	}

	s := &c.slots[slot]
	if s.state != StateAcquired || s.frameNumber != frameNumber {
		logger.Warn("release_stale_slot",
			"consumer", c.consumerName, "slot", slot,
			"state", s.state.String(), "frame", s.frameNumber, "release_frame", frameNumber)
		return ErrStaleBufferSlot
	}

	s.state = StateFree
	s.releaseFence = releaseFence
	atomic.AddUint64(&c.framesReleased, 1)
	c.dequeueCond.Broadcast()
	return nil
}

// ConsumerConnect registers the consumer listener. A producer cannot
// connect until a consumer is.
func (cons *Consumer) ConsumerConnect(listener ConsumerListener, controlledByApp bool) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if listener == nil {
		return ErrBadValue
	}
	cons.proxy = newProxyListener(listener)
	c.consumerListener = cons.proxy
	c.consumerControlledByApp = controlledByApp
	return nil
}

// ConsumerDisconnect unregisters the listener and abandons the queue:
// every slot is freed, the FIFO is emptied, and any blocked producer
// wakes with ErrNoInit.
func (cons *Consumer) ConsumerDisconnect() error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consumerListener == nil {
		return ErrBadValue
	}
	if cons.proxy != nil {
		cons.proxy.clear()
		cons.proxy = nil
	}
	c.consumerListener = nil
	c.abandoned = true
	c.freeAllBuffersLocked()
	c.dequeueCond.Broadcast()
	return nil
}

// GetReleasedBuffers returns a bitmask of slots whose buffers were
// freed since the last call, so the consumer can drop stale handle
// caches. Reading clears the mask.
func (cons *Consumer) GetReleasedBuffers() (uint64, error) {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return 0, ErrNoInit
	}
	var mask uint64
	for i := range c.slots {
		if c.slots[i].needsCleanupOnRelease {
			mask |= 1 << uint(i)
			c.slots[i].needsCleanupOnRelease = false
		}
	}
	return mask, nil
}

// SetDefaultBufferSize sets the size used when the producer dequeues
// with zero dimensions.
func (cons *Consumer) SetDefaultBufferSize(w, h uint32) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if w == 0 || h == 0 {
		return ErrBadValue
	}
	c.defaultWidth = w
	c.defaultHeight = h
	return nil
}

// SetDefaultBufferFormat sets the format used when the producer
// dequeues with format zero.
func (cons *Consumer) SetDefaultBufferFormat(format gfx.Format) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	c.defaultBufferFormat = format
	return nil
}

// SetConsumerUsageBits sets usage bits OR'd into every dequeue request.
func (cons *Consumer) SetConsumerUsageBits(usage gfx.Usage) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	c.consumerUsageBits = usage
	return nil
}

// SetTransformHint sets the transform hint echoed to the producer in
// queue outputs.
func (cons *Consumer) SetTransformHint(hint uint32) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	c.transformHint = hint
	return nil
}

// SetConsumerName names the queue in logs.
func (cons *Consumer) SetConsumerName(name string) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	c.consumerName = name
	return nil
}

// SetDefaultMaxBufferCount sets the max buffer count used when the
// producer has not set an override.
func (cons *Consumer) SetDefaultMaxBufferCount(count int) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	minBufferCount := 1
	if c.useAsyncBuffer {
		minBufferCount = 2
	}
	if count < minBufferCount || count > NumBufferSlots {
		return ErrBadValue
	}
	c.defaultMaxBufferCount = count
	c.dequeueCond.Broadcast()
	return nil
}

// SetMaxAcquiredBufferCount bounds how many buffers the consumer may
// hold acquired at once.
func (cons *Consumer) SetMaxAcquiredBufferCount(count int) error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if count < 1 || count > NumBufferSlots {
		return ErrBadValue
	}
	c.maxAcquiredBufferCount = count
	c.dequeueCond.Broadcast()
	return nil
}

// Abandon marks the queue dead. Every slot is freed, the FIFO is
// emptied, and subsequent operations on either endpoint return
// ErrNoInit, with two exceptions: producer Disconnect is a successful
// no-op, and ConsumerDisconnect still unregisters a registered
// listener. Idempotent.
func (cons *Consumer) Abandon() error {
	c := cons.core
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abandoned = true
	c.freeAllBuffersLocked()
	c.dequeueCond.Broadcast()
	return nil
}

package bufferqueue

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"bufferqueue/pkg/fence"
	"bufferqueue/pkg/gfx"
	"bufferqueue/pkg/logger"
)

// dequeueFenceTimeout bounds the wait on a consumer-provided release
// fence during DequeueBuffer. Expiry is logged, never propagated.
const dequeueFenceTimeout = 1 * time.Second

// processUniqueID numbers cores created in this process for the default
// consumer name.
var processUniqueID uint64

// Core owns the slot table, the queued-frame FIFO, the counters and the
// configuration. It has no external surface: the Producer and Consumer
// endpoints are thin adapters that take its lock.
//
// A single mutex serializes every mutation; dequeueCond is the one
// condition variable, broadcast whenever a slot may have become free or
// the count arithmetic changed. Listener callbacks are always invoked
// with the lock released.
type Core struct {
	mu          sync.Mutex
	dequeueCond *sync.Cond

	slots [NumBufferSlots]bufferSlot
	queue []BufferItem

	allocator gfx.Allocator

	consumerListener ConsumerListener

	consumerName             string
	defaultWidth             uint32
	defaultHeight            uint32
	defaultBufferFormat      gfx.Format
	consumerUsageBits        gfx.Usage
	transformHint            uint32
	defaultMaxBufferCount    int
	overrideMaxBufferCount   int
	maxAcquiredBufferCount   int
	useAsyncBuffer           bool
	asyncMode                bool
	dequeueBufferCannotBlock bool
	consumerControlledByApp  bool
	connectedAPI             API
	abandoned                bool
	bufferHasBeenQueued      bool
	frameCounter             uint64

	dirtyRegions       [NumBufferSlots]gfx.Rect
	currentDirtyRegion gfx.Rect

	framesQueued   uint64
	framesDropped  uint64
	framesAcquired uint64
	framesReleased uint64
	dequeueWaits   uint64
}

// newCore builds a core bound to the given allocator, with the same
// defaults the original queue ships with: 1x1 RGBA8888, two buffers,
// one acquirable, async buffer enabled.
func newCore(allocator gfx.Allocator) *Core {
	if allocator == nil {
		allocator = gfx.NewPooledAllocator()
	}
	c := &Core{
		allocator:              allocator,
		consumerName:           fmt.Sprintf("unnamed-%d-%d", os.Getpid(), atomic.AddUint64(&processUniqueID, 1)),
		defaultWidth:           1,
		defaultHeight:          1,
		defaultBufferFormat:    gfx.FormatRGBA8888,
		defaultMaxBufferCount:  2,
		maxAcquiredBufferCount: 1,
		useAsyncBuffer:         true,
		connectedAPI:           NoConnectedAPI,
	}
	c.dequeueCond = sync.NewCond(&c.mu)
	for i := range c.slots {
		c.slots[i].fence = fence.NoFence
		c.slots[i].releaseFence = fence.NoFence
	}
	return c
}

// minUndequeuedCountLocked is the floor on slots the producer must
// leave undequeued for the consumer.
func (c *Core) minUndequeuedCountLocked(async bool) int {
	if c.useAsyncBuffer {
		if async {
			return 2
		}
		return 1
	}
	if async {
		return 2
	}
	return 0
}

// minMaxBufferCountLocked is the smallest legal max buffer count for
// the given async mode.
func (c *Core) minMaxBufferCountLocked(async bool) int {
	return c.minUndequeuedCountLocked(async) + 1
}

// maxBufferCountLocked computes the effective slot ceiling. The
// override, when set, supersedes the computed default; the result never
// exceeds the slot table.
func (c *Core) maxBufferCountLocked(async bool) int {
	count := c.defaultMaxBufferCount
	if minMax := c.minMaxBufferCountLocked(async); count < minMax {
		count = minMax
	}
	if c.overrideMaxBufferCount != 0 {
		count = c.overrideMaxBufferCount
	}
	if count > NumBufferSlots {
		count = NumBufferSlots
	}
	return count
}

// asyncLocked folds the sticky async mode into a per-call async flag.
func (c *Core) asyncLocked(async bool) bool {
	return async || c.asyncMode
}

// freeBufferLocked returns slot i to FREE and drops the slot's single
// reference on its backing buffer. The consumer is told through the
// released-buffers mask when a non-empty slot goes away.
func (c *Core) freeBufferLocked(i int) {
	s := &c.slots[i]
	if s.buffer != nil {
		s.buffer.Release()
		s.buffer = nil
		s.needsCleanupOnRelease = true
	}
	s.state = StateFree
	s.frameNumber = 0
	s.requestBufferCalled = false
	s.acquireCalled = false
	s.fence = fence.NoFence
	s.releaseFence = fence.NoFence
}

// freeAllBuffersLocked frees every slot and empties the FIFO.
func (c *Core) freeAllBuffersLocked() {
	c.bufferHasBeenQueued = false
	for i := range c.slots {
		c.freeBufferLocked(i)
	}
	c.queue = c.queue[:0]
}

// stillTracking reports whether a FIFO item still refers to the slot it
// was queued from: same slot id, same buffer handle.
func (c *Core) stillTracking(item *BufferItem) bool {
	if item.Slot < 0 || item.Slot >= NumBufferSlots {
		return false
	}
	return item.Buffer != nil && item.Buffer == c.slots[item.Slot].buffer
}

// countsLocked tallies dequeued and acquired slots below the given
// ceiling.
func (c *Core) countsLocked(maxBufferCount int) (dequeued, acquired int) {
	for i := 0; i < maxBufferCount; i++ {
		switch c.slots[i].state {
		case StateDequeued:
			dequeued++
		case StateAcquired:
			acquired++
		}
	}
	return dequeued, acquired
}

// listenerLocked snapshots the consumer listener for a post-unlock
// callback.
func (c *Core) listenerLocked() ConsumerListener {
	return c.consumerListener
}

// Stats returns a snapshot of the instrumentation counters. Counter
// fields are updated with atomics so Stats can be read off the hot
// path; queue length and frame counter take the lock.
func (c *Core) Stats() Stats {
	c.mu.Lock()
	qlen := len(c.queue)
	frames := c.frameCounter
	c.mu.Unlock()
	return Stats{
		FramesQueued:   atomic.LoadUint64(&c.framesQueued),
		FramesDropped:  atomic.LoadUint64(&c.framesDropped),
		FramesAcquired: atomic.LoadUint64(&c.framesAcquired),
		FramesReleased: atomic.LoadUint64(&c.framesReleased),
		DequeueWaits:   atomic.LoadUint64(&c.dequeueWaits),
		QueueLength:    qlen,
		FrameCounter:   frames,
	}
}

// ConsumerName returns the current consumer name for log attribution.
func (c *Core) ConsumerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumerName
}

// Dump logs the slot table at debug level. Diagnostics only.
func (c *Core) Dump() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.maxBufferCountLocked(false); i++ {
		s := &c.slots[i]
		logger.Debug("slot_state",
			"consumer", c.consumerName,
			"slot", i,
			"state", s.state.String(),
			"frame", s.frameNumber,
			"has_buffer", s.buffer != nil,
		)
	}
}

package bufferqueue

import (
	"testing"

	"bufferqueue/pkg/fence"
)

// Async producers never grow the backlog: a new frame replaces a
// droppable head in place and the dropped slot goes back to the front
// of the free line.
func TestAsyncDropReplacesHead(t *testing.T) {
	p, c, l := newConnectedQueue(t, nil)
	if err := c.SetDefaultMaxBufferCount(3); err != nil {
		t.Fatalf("SetDefaultMaxBufferCount: %v", err)
	}

	for ts := int64(1); ts <= 3; ts++ {
		slot, _, _, err := p.DequeueBuffer(true, 0, 0, 0, 0)
		if err != nil {
			t.Fatalf("dequeue ts=%d: %v", ts, err)
		}
		buf, err := p.RequestBuffer(slot)
		if err != nil {
			t.Fatalf("RequestBuffer: %v", err)
		}
		if _, err := p.QueueBuffer(slot, QueueBufferInput{
			Timestamp: ts, Crop: buf.Bounds(), ScalingMode: ScalingModeFreeze,
			Async: true, Fence: fence.NoFence,
		}); err != nil {
			t.Fatalf("queue ts=%d: %v", ts, err)
		}
	}

	core := p.Core()
	core.mu.Lock()
	qlen := len(core.queue)
	var headTS int64
	var headFrame uint64
	if qlen > 0 {
		headTS = core.queue[0].Timestamp
		headFrame = core.queue[0].FrameNumber
	}
	freeWithZeroFrame := 0
	for i := range core.slots {
		if core.slots[i].state == StateFree && core.slots[i].frameNumber == 0 && core.slots[i].buffer != nil {
			freeWithZeroFrame++
		}
	}
	frameCounter := core.frameCounter
	core.mu.Unlock()

	if qlen != 1 {
		t.Fatalf("droppable heads must be replaced in place, FIFO length %d", qlen)
	}
	if headTS != 3 {
		t.Fatalf("final FIFO must hold the latest frame, got ts=%d", headTS)
	}
	if headFrame != 3 || frameCounter != 3 {
		t.Fatalf("frame counter must count dropped frames too: head=%d counter=%d", headFrame, frameCounter)
	}
	if freeWithZeroFrame != 1 {
		t.Fatalf("the dropped slot must return to FREE with frame number 0, got %d", freeWithZeroFrame)
	}

	// Only the first queue made a frame visible; replacements are
	// silent.
	if got := l.frames(); got != 1 {
		t.Fatalf("expected exactly 1 OnFrameAvailable, got %d", got)
	}
	if s := core.Stats(); s.FramesDropped != 2 {
		t.Fatalf("expected 2 dropped frames, got %d", s.FramesDropped)
	}
}

// A synchronous frame at the head is never dropped; later frames queue
// behind it.
func TestSyncHeadIsNotDropped(t *testing.T) {
	p, c, l := newConnectedQueue(t, nil)
	if err := c.SetDefaultMaxBufferCount(4); err != nil {
		t.Fatalf("SetDefaultMaxBufferCount: %v", err)
	}
	if err := p.SetBufferCount(4); err != nil {
		t.Fatalf("SetBufferCount: %v", err)
	}

	queueOne := func(async bool, ts int64) {
		t.Helper()
		slot, _, _, err := p.DequeueBuffer(async, 0, 0, 0, 0)
		if err != nil {
			t.Fatalf("dequeue ts=%d: %v", ts, err)
		}
		buf, err := p.RequestBuffer(slot)
		if err != nil {
			t.Fatalf("RequestBuffer: %v", err)
		}
		if _, err := p.QueueBuffer(slot, QueueBufferInput{
			Timestamp: ts, Crop: buf.Bounds(), ScalingMode: ScalingModeFreeze,
			Async: async, Fence: fence.NoFence,
		}); err != nil {
			t.Fatalf("queue ts=%d: %v", ts, err)
		}
	}

	queueOne(false, 1)
	queueOne(false, 2)

	core := p.Core()
	core.mu.Lock()
	qlen := len(core.queue)
	core.mu.Unlock()
	if qlen != 2 {
		t.Fatalf("synchronous frames must append, FIFO length %d", qlen)
	}
	if got := l.frames(); got != 2 {
		t.Fatalf("both frames must announce, got %d callbacks", got)
	}
}

package bufferqueue

import (
	"errors"
	"testing"

	"bufferqueue/pkg/fence"
)

func TestAcquireEmptyQueue(t *testing.T) {
	_, c, _ := newConnectedQueue(t, nil)
	if _, err := c.AcquireBuffer(0); !errors.Is(err, ErrNoBufferAvailable) {
		t.Fatalf("empty acquire: want ErrNoBufferAvailable, got %v", err)
	}
}

func TestAcquireBudgetEnforced(t *testing.T) {
	p, c, _ := newConnectedQueue(t, nil)
	if err := c.SetDefaultMaxBufferCount(4); err != nil {
		t.Fatalf("SetDefaultMaxBufferCount: %v", err)
	}
	if err := p.SetBufferCount(4); err != nil {
		t.Fatalf("SetBufferCount: %v", err)
	}

	for i := 0; i < 2; i++ {
		slot, _, _, err := p.DequeueBuffer(false, 0, 0, 0, 0)
		if err != nil {
			t.Fatalf("dequeue %d: %v", i, err)
		}
		buf, err := p.RequestBuffer(slot)
		if err != nil {
			t.Fatalf("RequestBuffer: %v", err)
		}
		if _, err := p.QueueBuffer(slot, QueueBufferInput{
			Crop: buf.Bounds(), ScalingMode: ScalingModeFreeze, Fence: fence.NoFence,
		}); err != nil {
			t.Fatalf("QueueBuffer: %v", err)
		}
	}

	if _, err := c.AcquireBuffer(0); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// max_acquired defaults to 1.
	if _, err := c.AcquireBuffer(0); !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("over-budget acquire: want ErrInvalidOperation, got %v", err)
	}

	if err := c.SetMaxAcquiredBufferCount(2); err != nil {
		t.Fatalf("SetMaxAcquiredBufferCount: %v", err)
	}
	if _, err := c.AcquireBuffer(0); err != nil {
		t.Fatalf("acquire after raising budget: %v", err)
	}
}

func TestAcquireSecondTimeElidesHandle(t *testing.T) {
	p, c, _ := newConnectedQueue(t, nil)

	// Cycle both slots once so the oldest-free rule deterministically
	// hands back the first slot, whose handle was already delivered.
	slot := roundTrip(t, p, c, 0, 0)
	roundTrip(t, p, c, 0, 0)

	got, _, _, err := p.DequeueBuffer(false, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("re-dequeue: %v", err)
	}
	if got != slot {
		t.Fatalf("oldest-free rule should return slot %d, got %d", slot, got)
	}
	buf, err := p.RequestBuffer(got)
	if err != nil {
		t.Fatalf("RequestBuffer: %v", err)
	}
	if _, err := p.QueueBuffer(got, QueueBufferInput{
		Crop: buf.Bounds(), ScalingMode: ScalingModeFreeze, Fence: fence.NoFence,
	}); err != nil {
		t.Fatalf("QueueBuffer: %v", err)
	}
	item, err := c.AcquireBuffer(0)
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}
	if !item.AcquireCalled {
		t.Fatalf("second acquire of the slot must be marked previously acquired")
	}
	if item.Buffer != nil {
		t.Fatalf("second acquire must elide the handle")
	}
}

func TestAcquirePresentWhen(t *testing.T) {
	p, c, _ := newConnectedQueue(t, nil)
	if err := c.SetDefaultMaxBufferCount(4); err != nil {
		t.Fatalf("SetDefaultMaxBufferCount: %v", err)
	}
	if err := p.SetBufferCount(4); err != nil {
		t.Fatalf("SetBufferCount: %v", err)
	}

	queueAt := func(ts int64) {
		t.Helper()
		slot, _, _, err := p.DequeueBuffer(false, 0, 0, 0, 0)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		buf, err := p.RequestBuffer(slot)
		if err != nil {
			t.Fatalf("RequestBuffer: %v", err)
		}
		if _, err := p.QueueBuffer(slot, QueueBufferInput{
			Timestamp: ts, Crop: buf.Bounds(), ScalingMode: ScalingModeFreeze, Fence: fence.NoFence,
		}); err != nil {
			t.Fatalf("QueueBuffer: %v", err)
		}
	}

	queueAt(100)
	queueAt(200)

	// Head is in the future for presentWhen=50.
	if _, err := c.AcquireBuffer(50); !errors.Is(err, ErrPresentLater) {
		t.Fatalf("early acquire: want ErrPresentLater, got %v", err)
	}

	// presentWhen=250 supersedes the ts=100 head; the ts=200 frame is
	// delivered and the stale head's slot returns to FREE.
	item, err := c.AcquireBuffer(250)
	if err != nil {
		t.Fatalf("acquire at 250: %v", err)
	}
	if item.Timestamp != 200 {
		t.Fatalf("expected ts=200 frame, got %d", item.Timestamp)
	}

	s := p.Core().Stats()
	if s.FramesDropped != 1 {
		t.Fatalf("expected one dropped frame, got %d", s.FramesDropped)
	}
}

func TestStaleRelease(t *testing.T) {
	p, c, _ := newConnectedQueue(t, nil)

	slot, _, _, err := p.DequeueBuffer(false, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	buf, err := p.RequestBuffer(slot)
	if err != nil {
		t.Fatalf("RequestBuffer: %v", err)
	}
	if _, err := p.QueueBuffer(slot, QueueBufferInput{
		Crop: buf.Bounds(), ScalingMode: ScalingModeFreeze, Fence: fence.NoFence,
	}); err != nil {
		t.Fatalf("QueueBuffer: %v", err)
	}
	item, err := c.AcquireBuffer(0)
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}

	// Wrong frame number: no-op.
	if err := c.ReleaseBuffer(item.Slot, item.FrameNumber+7, fence.NoFence); !errors.Is(err, ErrStaleBufferSlot) {
		t.Fatalf("wrong frame: want ErrStaleBufferSlot, got %v", err)
	}
	core := p.Core()
	core.mu.Lock()
	state := core.slots[item.Slot].state
	core.mu.Unlock()
	if state != StateAcquired {
		t.Fatalf("stale release must not perturb the slot, got %s", state)
	}

	// Correct release still works afterwards.
	if err := c.ReleaseBuffer(item.Slot, item.FrameNumber, fence.NoFence); err != nil {
		t.Fatalf("ReleaseBuffer: %v", err)
	}
	// Releasing a free slot is stale too.
	if err := c.ReleaseBuffer(item.Slot, item.FrameNumber, fence.NoFence); !errors.Is(err, ErrStaleBufferSlot) {
		t.Fatalf("double release: want ErrStaleBufferSlot, got %v", err)
	}
}

func TestStaleReleaseAfterReconnect(t *testing.T) {
	p, c, _ := newConnectedQueue(t, nil)

	slot, _, _, err := p.DequeueBuffer(false, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	buf, err := p.RequestBuffer(slot)
	if err != nil {
		t.Fatalf("RequestBuffer: %v", err)
	}
	if _, err := p.QueueBuffer(slot, QueueBufferInput{
		Crop: buf.Bounds(), ScalingMode: ScalingModeFreeze, Fence: fence.NoFence,
	}); err != nil {
		t.Fatalf("QueueBuffer: %v", err)
	}
	item, err := c.AcquireBuffer(0)
	if err != nil {
		t.Fatalf("AcquireBuffer: %v", err)
	}

	// The producer tears down and reconnects; the consumer's handle is
	// now stale.
	if err := p.Disconnect(APICPU); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := p.Connect(APICPU, false); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	slot2, _, _, err := p.DequeueBuffer(false, 0, 0, 0, 0)
	if err != nil {
		t.Fatalf("dequeue after reconnect: %v", err)
	}

	if err := c.ReleaseBuffer(item.Slot, item.FrameNumber, fence.NoFence); !errors.Is(err, ErrStaleBufferSlot) {
		t.Fatalf("late release: want ErrStaleBufferSlot, got %v", err)
	}
	core := p.Core()
	core.mu.Lock()
	state := core.slots[slot2].state
	core.mu.Unlock()
	if state != StateDequeued {
		t.Fatalf("late release must not perturb the new owner, got %s", state)
	}
}

func TestGetReleasedBuffersMask(t *testing.T) {
	p, c, _ := newConnectedQueue(t, nil)

	slot := roundTrip(t, p, c, 0, 0)

	// Shrinking the ceiling is not what frees here; disconnect frees
	// every populated slot.
	if err := p.Disconnect(APICPU); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	mask, err := c.GetReleasedBuffers()
	if err != nil {
		t.Fatalf("GetReleasedBuffers: %v", err)
	}
	if mask&(1<<uint(slot)) == 0 {
		t.Fatalf("mask %#x does not report freed slot %d", mask, slot)
	}
	// Reading clears the mask.
	mask, err = c.GetReleasedBuffers()
	if err != nil {
		t.Fatalf("GetReleasedBuffers: %v", err)
	}
	if mask != 0 {
		t.Fatalf("second read must be empty, got %#x", mask)
	}
}

func TestConsumerSettersValidate(t *testing.T) {
	_, c, _ := newConnectedQueue(t, nil)

	if err := c.SetDefaultBufferSize(0, 4); !errors.Is(err, ErrBadValue) {
		t.Fatalf("zero width: want ErrBadValue, got %v", err)
	}
	if err := c.SetDefaultMaxBufferCount(1); !errors.Is(err, ErrBadValue) {
		t.Fatalf("count below async minimum: want ErrBadValue, got %v", err)
	}
	if err := c.SetDefaultMaxBufferCount(NumBufferSlots + 1); !errors.Is(err, ErrBadValue) {
		t.Fatalf("count above slot table: want ErrBadValue, got %v", err)
	}
	if err := c.SetMaxAcquiredBufferCount(0); !errors.Is(err, ErrBadValue) {
		t.Fatalf("zero acquired budget: want ErrBadValue, got %v", err)
	}
	if err := c.SetConsumerName("tests"); err != nil {
		t.Fatalf("SetConsumerName: %v", err)
	}
	if got := c.Core().ConsumerName(); got != "tests" {
		t.Fatalf("consumer name not applied: %q", got)
	}
}

package bufferqueue

import (
	"bufferqueue/pkg/fence"
	"bufferqueue/pkg/gfx"
)

// NumBufferSlots is the size of the slot table. Slot ids are indexes
// into it.
const NumBufferSlots = 32

// invalidBufferSlot marks "no slot" during free-slot scans.
const invalidBufferSlot = -1

// API identifies the producer side connected to the queue.
type API int

const (
	NoConnectedAPI API = iota
	APIEGL
	APICPU
	APIMedia
	APICamera
)

func (a API) valid() bool { return a > NoConnectedAPI && a <= APICamera }

// ScalingMode selects how a queued frame maps onto the consumer's
// output geometry. Values are stable wire constants.
type ScalingMode int32

const (
	ScalingModeFreeze        ScalingMode = 0
	ScalingModeScaleToWindow ScalingMode = 1
	ScalingModeScaleCrop     ScalingMode = 2
	ScalingModeNoScaleCrop   ScalingMode = 3
)

func (m ScalingMode) valid() bool {
	return m >= ScalingModeFreeze && m <= ScalingModeNoScaleCrop
}

// Transform flags carried with each frame. TransformInverseDisplay is
// stripped from the item transform and surfaced as a separate boolean.
const (
	TransformFlipH          uint32 = 0x01
	TransformFlipV          uint32 = 0x02
	TransformRot90          uint32 = 0x04
	TransformInverseDisplay uint32 = 0x08
)

// Query codes accepted by Producer.Query. Values are stable wire
// constants.
const (
	QueryWidth                 = 0
	QueryHeight                = 1
	QueryFormat                = 2
	QueryMinUndequeuedBuffers  = 3
	QueryConsumerRunningBehind = 9
	QueryConsumerUsageBits     = 10
)

// DequeueFlags is the bitfield returned alongside a dequeued slot.
type DequeueFlags int

const (
	// BufferNeedsReallocation tells the producer the slot's backing
	// buffer was (re)allocated and must be fetched via RequestBuffer
	// before queueing.
	BufferNeedsReallocation DequeueFlags = 0x1
	// ReleaseAllBuffers tells the producer every slot's buffer may have
	// been freed and any cached handles are invalid.
	ReleaseAllBuffers DequeueFlags = 0x2
)

// QueueBufferInput carries the per-frame metadata supplied with
// QueueBuffer.
type QueueBufferInput struct {
	Timestamp       int64
	IsAutoTimestamp bool
	Crop            gfx.Rect
	ScalingMode     ScalingMode
	Transform       uint32
	Async           bool
	Fence           fence.Fence
}

// QueueBufferOutput reports queue-side state back to the producer after
// QueueBuffer and Connect.
type QueueBufferOutput struct {
	Width             uint32
	Height            uint32
	TransformHint     uint32
	NumPendingBuffers int
}

// BufferItem is one queued frame: the FIFO element handed to the
// consumer by AcquireBuffer.
type BufferItem struct {
	// Buffer is the backing handle snapshot. It is nil when the
	// consumer has already acquired this slot before (AcquireCalled),
	// letting transports skip re-marshalling the handle.
	Buffer *gfx.Buffer

	Slot                      int
	Crop                      gfx.Rect
	Transform                 uint32
	TransformToDisplayInverse bool
	ScalingMode               ScalingMode
	Timestamp                 int64
	IsAutoTimestamp           bool
	FrameNumber               uint64
	Fence                     fence.Fence

	// IsDroppable marks frames the producer consents to have replaced
	// in place if a newer frame arrives before acquisition.
	IsDroppable bool

	// AcquireCalled reports whether the consumer has ever received this
	// slot's handle.
	AcquireCalled bool
}

// Stats is a snapshot of the core's instrumentation counters.
type Stats struct {
	FramesQueued   uint64 `json:"frames_queued"`
	FramesDropped  uint64 `json:"frames_dropped"`
	FramesAcquired uint64 `json:"frames_acquired"`
	FramesReleased uint64 `json:"frames_released"`
	DequeueWaits   uint64 `json:"dequeue_waits"`
	QueueLength    int    `json:"queue_length"`
	FrameCounter   uint64 `json:"frame_counter"`
}

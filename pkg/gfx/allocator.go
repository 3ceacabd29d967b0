package gfx

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// ErrNoMemory is returned when the allocator refuses to manufacture a
// buffer (invalid geometry or the configured size cap is exceeded).
var ErrNoMemory = errors.New("gfx: buffer allocation failed")

// Allocator manufactures graphic buffers of a requested geometry.
// Implementations must be safe for concurrent use: the queue calls
// Allocate without holding its own lock.
type Allocator interface {
	// Allocate returns a buffer of the given geometry with one
	// reference held by the caller.
	Allocate(w, h uint32, format Format, usage Usage) (*Buffer, error)

	// SetBufferSize sets a byte-size hint for subsequent allocations.
	// Zero clears the hint. Allocations larger than a non-zero hint
	// fail with ErrNoMemory.
	SetBufferSize(size int)
}

// PooledAllocator allocates pixel memory out of a shared byte-buffer
// pool so short-lived reallocation churn (resizes, format switches)
// does not hit the garbage collector.
type PooledAllocator struct {
	sizeHint int64

	allocs     uint64
	allocBytes uint64
}

// NewPooledAllocator returns a ready-to-use pooled allocator.
func NewPooledAllocator() *PooledAllocator { return &PooledAllocator{} }

// Allocate implements Allocator.
func (a *PooledAllocator) Allocate(w, h uint32, format Format, usage Usage) (*Buffer, error) {
	bpp := format.BytesPerPixel()
	if w == 0 || h == 0 || bpp == 0 {
		return nil, ErrNoMemory
	}
	size := int(w) * int(h) * bpp
	if hint := atomic.LoadInt64(&a.sizeHint); hint > 0 && int64(size) > hint {
		return nil, ErrNoMemory
	}

	bb := bytebufferpool.Get()
	if cap(bb.B) < size {
		bb.B = append(bb.B[:0], make([]byte, size)...)
	} else {
		bb.B = bb.B[:size]
		for i := range bb.B {
			bb.B[i] = 0
		}
	}

	atomic.AddUint64(&a.allocs, 1)
	atomic.AddUint64(&a.allocBytes, uint64(size))
	return newBuffer(w, h, format, usage, bb), nil
}

// SetBufferSize implements Allocator.
func (a *PooledAllocator) SetBufferSize(size int) {
	if size < 0 {
		size = 0
	}
	atomic.StoreInt64(&a.sizeHint, int64(size))
}

// Allocs returns the number of buffers manufactured so far.
func (a *PooledAllocator) Allocs() uint64 { return atomic.LoadUint64(&a.allocs) }

// AllocBytes returns the cumulative bytes handed out.
func (a *PooledAllocator) AllocBytes() uint64 { return atomic.LoadUint64(&a.allocBytes) }

// FailingAllocator wraps an Allocator and fails every allocation after
// Trip is called. Used by tests and fault-injection soaks.
type FailingAllocator struct {
	Inner Allocator

	mu      sync.Mutex
	tripped bool
}

// Trip makes all subsequent Allocate calls fail with ErrNoMemory.
func (f *FailingAllocator) Trip() {
	f.mu.Lock()
	f.tripped = true
	f.mu.Unlock()
}

// Reset restores normal allocation.
func (f *FailingAllocator) Reset() {
	f.mu.Lock()
	f.tripped = false
	f.mu.Unlock()
}

// Allocate implements Allocator.
func (f *FailingAllocator) Allocate(w, h uint32, format Format, usage Usage) (*Buffer, error) {
	f.mu.Lock()
	tripped := f.tripped
	f.mu.Unlock()
	if tripped {
		return nil, ErrNoMemory
	}
	return f.Inner.Allocate(w, h, format, usage)
}

// SetBufferSize implements Allocator.
func (f *FailingAllocator) SetBufferSize(size int) { f.Inner.SetBufferSize(size) }

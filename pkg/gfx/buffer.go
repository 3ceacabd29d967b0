package gfx

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/valyala/bytebufferpool"
)

// Format identifies the pixel layout of a buffer.
type Format uint32

const (
	FormatRGBA8888 Format = 1
	FormatRGBX8888 Format = 2
	FormatRGB888   Format = 3
	FormatRGB565   Format = 4
)

// BytesPerPixel returns the per-pixel byte width of the format, or 0
// for unknown formats.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatRGBA8888, FormatRGBX8888:
		return 4
	case FormatRGB888:
		return 3
	case FormatRGB565:
		return 2
	}
	return 0
}

// Usage is a bitfield describing how a buffer will be accessed. Producer
// usage is OR'd with the consumer's bits at dequeue time.
type Usage uint32

const (
	UsageCPURead Usage = 1 << iota
	UsageCPUWrite
	UsageGPUTexture
	UsageGPURender
	UsageComposer
	UsageVideoEncoder
)

// Buffer is a reference-counted handle to image memory. It is shared by
// the producer, the consumer and in-flight queue items; the backing
// bytes return to the pool when the last holder releases it.
//
// The byte slice must not be accessed after the final Release.
type Buffer struct {
	ID     string
	Width  uint32
	Height uint32
	Format Format
	Usage  Usage
	Stride uint32

	refs int32
	bb   *bytebufferpool.ByteBuffer
}

// newBuffer wires a pooled byte buffer into a handle with one reference.
func newBuffer(w, h uint32, format Format, usage Usage, bb *bytebufferpool.ByteBuffer) *Buffer {
	return &Buffer{
		ID:     uuid.NewString(),
		Width:  w,
		Height: h,
		Format: format,
		Usage:  usage,
		Stride: w,
		refs:   1,
		bb:     bb,
	}
}

// Bytes returns the backing pixel memory.
func (b *Buffer) Bytes() []byte { return b.bb.B }

// Size returns the length of the backing pixel memory in bytes.
func (b *Buffer) Size() int { return len(b.bb.B) }

// IncRef adds a reference for a new holder.
func (b *Buffer) IncRef() {
	atomic.AddInt32(&b.refs, 1)
}

// Release drops one reference. The final release returns the backing
// bytes to the pool. Releasing below zero is a bug in the caller and
// panics.
func (b *Buffer) Release() {
	n := atomic.AddInt32(&b.refs, -1)
	if n < 0 {
		panic(fmt.Sprintf("gfx: buffer %s released below zero references", b.ID))
	}
	if n == 0 {
		bytebufferpool.Put(b.bb)
		b.bb = nil
	}
}

// Refs returns the current reference count. For tests and stats only.
func (b *Buffer) Refs() int32 { return atomic.LoadInt32(&b.refs) }

// Matches reports whether the buffer satisfies a dequeue request: exact
// size and format, and at least the requested usage bits.
func (b *Buffer) Matches(w, h uint32, format Format, usage Usage) bool {
	return b.Width == w && b.Height == h && b.Format == format &&
		b.Usage&usage == usage
}

// Bounds returns the rect covering the whole buffer.
func (b *Buffer) Bounds() Rect { return RectFromSize(b.Width, b.Height) }

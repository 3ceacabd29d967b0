package gfx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPooledAllocatorGeometry(t *testing.T) {
	a := NewPooledAllocator()

	buf, err := a.Allocate(4, 3, FormatRGBA8888, UsageCPUWrite)
	require.NoError(t, err)
	assert.Equal(t, 4*3*4, buf.Size())
	assert.Equal(t, uint32(4), buf.Width)
	assert.Equal(t, uint32(3), buf.Height)
	assert.NotEmpty(t, buf.ID)
	assert.Equal(t, int32(1), buf.Refs())

	for _, b := range buf.Bytes() {
		assert.Zero(t, b, "fresh buffers must be zeroed")
	}
	buf.Release()
}

func TestAllocatorRejectsBadGeometry(t *testing.T) {
	a := NewPooledAllocator()

	_, err := a.Allocate(0, 4, FormatRGBA8888, 0)
	assert.ErrorIs(t, err, ErrNoMemory)
	_, err = a.Allocate(4, 4, Format(99), 0)
	assert.ErrorIs(t, err, ErrNoMemory)
}

func TestAllocatorSizeHint(t *testing.T) {
	a := NewPooledAllocator()
	a.SetBufferSize(64)

	_, err := a.Allocate(8, 8, FormatRGBA8888, 0) // 256 bytes
	assert.ErrorIs(t, err, ErrNoMemory)

	buf, err := a.Allocate(4, 4, FormatRGBA8888, 0) // 64 bytes
	require.NoError(t, err)
	buf.Release()

	a.SetBufferSize(0)
	buf, err = a.Allocate(8, 8, FormatRGBA8888, 0)
	require.NoError(t, err)
	buf.Release()
}

func TestBufferRefCounting(t *testing.T) {
	a := NewPooledAllocator()
	buf, err := a.Allocate(2, 2, FormatRGBA8888, 0)
	require.NoError(t, err)

	buf.IncRef()
	assert.Equal(t, int32(2), buf.Refs())
	buf.Release()
	assert.Equal(t, int32(1), buf.Refs())
	buf.Release()
	assert.Equal(t, int32(0), buf.Refs())

	assert.Panics(t, func() { buf.Release() }, "releasing below zero must panic")
}

func TestBufferMatches(t *testing.T) {
	a := NewPooledAllocator()
	buf, err := a.Allocate(8, 8, FormatRGBA8888, UsageCPUWrite|UsageGPUTexture)
	require.NoError(t, err)
	defer buf.Release()

	assert.True(t, buf.Matches(8, 8, FormatRGBA8888, UsageCPUWrite))
	assert.True(t, buf.Matches(8, 8, FormatRGBA8888, 0))
	assert.False(t, buf.Matches(8, 4, FormatRGBA8888, 0))
	assert.False(t, buf.Matches(8, 8, FormatRGB565, 0))
	assert.False(t, buf.Matches(8, 8, FormatRGBA8888, UsageVideoEncoder))
}

func TestFailingAllocator(t *testing.T) {
	f := &FailingAllocator{Inner: NewPooledAllocator()}

	buf, err := f.Allocate(1, 1, FormatRGBA8888, 0)
	require.NoError(t, err)
	buf.Release()

	f.Trip()
	_, err = f.Allocate(1, 1, FormatRGBA8888, 0)
	assert.ErrorIs(t, err, ErrNoMemory)

	f.Reset()
	buf, err = f.Allocate(1, 1, FormatRGBA8888, 0)
	require.NoError(t, err)
	buf.Release()
}

func TestRectIntersect(t *testing.T) {
	a := Rect{Left: 0, Top: 0, Right: 10, Bottom: 10}
	b := Rect{Left: 5, Top: 5, Right: 15, Bottom: 15}

	got, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, Rect{Left: 5, Top: 5, Right: 10, Bottom: 10}, got)

	_, ok = a.Intersect(Rect{Left: 20, Top: 20, Right: 30, Bottom: 30})
	assert.False(t, ok)

	assert.True(t, Rect{}.IsEmpty())
	assert.False(t, RectFromSize(1, 1).IsEmpty())
}

package bufferqueue

import (
	"errors"
	"testing"

	"bufferqueue/pkg/gfx"
)

// The dirty-region channel is advisory: it works regardless of slot
// state and survives queue reconfiguration.
func TestDirtyRegionRoundTrip(t *testing.T) {
	p, _, _ := newConnectedQueue(t, nil)

	if err := p.UpdateDirtyRegion(3, 1, 2, 10, 20); err != nil {
		t.Fatalf("UpdateDirtyRegion: %v", err)
	}
	if err := p.SetCurrentDirtyRegion(3); err != nil {
		t.Fatalf("SetCurrentDirtyRegion: %v", err)
	}

	got, err := p.GetCurrentDirtyRegion()
	if err != nil {
		t.Fatalf("GetCurrentDirtyRegion: %v", err)
	}
	want := gfx.Rect{Left: 1, Top: 2, Right: 10, Bottom: 20}
	if got != want {
		t.Fatalf("current dirty region = %+v, want %+v", got, want)
	}

	// Promotion consumed the slot's rect.
	if err := p.SetCurrentDirtyRegion(3); err != nil {
		t.Fatalf("SetCurrentDirtyRegion: %v", err)
	}
	got, err = p.GetCurrentDirtyRegion()
	if err != nil {
		t.Fatalf("GetCurrentDirtyRegion: %v", err)
	}
	if !got.IsEmpty() {
		t.Fatalf("slot rect must clear after promotion, got %+v", got)
	}
}

func TestDirtyRegionBounds(t *testing.T) {
	p, _, _ := newConnectedQueue(t, nil)

	if err := p.UpdateDirtyRegion(-1, 0, 0, 1, 1); !errors.Is(err, ErrBadValue) {
		t.Fatalf("negative slot: want ErrBadValue, got %v", err)
	}
	if err := p.UpdateDirtyRegion(NumBufferSlots, 0, 0, 1, 1); !errors.Is(err, ErrBadValue) {
		t.Fatalf("slot past table: want ErrBadValue, got %v", err)
	}
	if err := p.SetCurrentDirtyRegion(NumBufferSlots); !errors.Is(err, ErrBadValue) {
		t.Fatalf("promote past table: want ErrBadValue, got %v", err)
	}
}

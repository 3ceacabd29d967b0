package bufferqueue

import "bufferqueue/pkg/gfx"

// The dirty-region side channel lets the producer tell the consumer
// which part of a buffer changed since it was last queued. It is
// advisory: updates are not gated on slot state.

// UpdateDirtyRegion records the dirty rect for a slot.
func (p *Producer) UpdateDirtyRegion(slot int, left, top, right, bottom int32) error {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if slot < 0 || slot >= NumBufferSlots {
		return ErrBadValue
	}
	c.dirtyRegions[slot] = gfx.Rect{Left: left, Top: top, Right: right, Bottom: bottom}
	return nil
}

// SetCurrentDirtyRegion promotes a slot's dirty rect to the current
// rect the consumer reads, clearing the slot's rect.
func (p *Producer) SetCurrentDirtyRegion(slot int) error {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.abandoned {
		return ErrNoInit
	}
	if slot < 0 || slot >= NumBufferSlots {
		return ErrBadValue
	}
	c.currentDirtyRegion = c.dirtyRegions[slot]
	if c.currentDirtyRegion.IsEmpty() {
		c.currentDirtyRegion = gfx.Rect{}
	}
	c.dirtyRegions[slot] = gfx.Rect{}
	return nil
}

// GetCurrentDirtyRegion returns the current dirty rect.
func (p *Producer) GetCurrentDirtyRegion() (gfx.Rect, error) {
	c := p.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abandoned {
		return gfx.Rect{}, ErrNoInit
	}
	return c.currentDirtyRegion, nil
}

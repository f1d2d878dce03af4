package input

// VirtualCursor tracks where the pointer would be on the target while the
// local cursor is pinned. Coordinates are target pixels.
type VirtualCursor struct {
	x, y        float64
	w, h        float64
	sensitivity float64
}

// NewVirtualCursor creates a cursor on a w×h plane.
func NewVirtualCursor(w, h int, sensitivity float64) *VirtualCursor {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	if sensitivity <= 0 {
		sensitivity = 1
	}
	return &VirtualCursor{w: float64(w), h: float64(h), sensitivity: sensitivity}
}

// Place positions the cursor at a normalized point.
func (c *VirtualCursor) Place(nx, ny float64) {
	c.x = Clamp(nx, 0, 1) * (c.w - 1)
	c.y = Clamp(ny, 0, 1) * (c.h - 1)
}

// Move applies a raw delta and returns the normalized position.
func (c *VirtualCursor) Move(dx, dy int) (float64, float64) {
	c.x = Clamp(c.x+float64(dx)*c.sensitivity, 0, c.w-1)
	c.y = Clamp(c.y+float64(dy)*c.sensitivity, 0, c.h-1)
	return c.Normalized()
}

// Normalized returns the position in [0,1].
func (c *VirtualCursor) Normalized() (float64, float64) {
	return norm(c.x, c.w), norm(c.y, c.h)
}

func norm(v, size float64) float64 {
	if size <= 1 {
		return 0
	}
	return Clamp(v/(size-1), 0, 1)
}

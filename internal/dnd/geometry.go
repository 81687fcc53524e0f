package dnd

import "math"

const (
	// AutoscrollEdge is the band, in px, along each scroll container edge
	// that triggers auto-scroll.
	AutoscrollEdge = 48.0
	// AutoscrollMaxSpeed is the largest step, in px, taken per frame.
	AutoscrollMaxSpeed = 28.0
)

type Point struct {
	X, Y float64
}

// Rect is an axis-aligned bounding box in screen px.
type Rect struct {
	X, Y, W, H float64
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

func (r Rect) Intersects(b Rect) bool {
	return r.X < b.Right() && r.Right() > b.X &&
		r.Y < b.Bottom() && r.Bottom() > b.Y
}

func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// SnapToGrid rounds v to the nearest multiple of size. A size below one
// disables snapping.
func SnapToGrid(v, size float64) float64 {
	if size < 1 {
		return v
	}
	return math.Round(v/size) * size
}

// SnapToColumn rounds x to the nearest column boundary of a width split
// into cols equal columns.
func SnapToColumn(x, width float64, cols int) float64 {
	if cols < 1 || width <= 0 {
		return x
	}
	return SnapToGrid(x, width/float64(cols))
}

// ScreenToCanvas converts a screen point into canvas coordinates, undoing
// the canvas offset and zoom.
func ScreenToCanvas(p Point, canvas Rect, zoom float64) Point {
	if zoom <= 0 {
		zoom = 1
	}
	return Point{X: (p.X - canvas.X) / zoom, Y: (p.Y - canvas.Y) / zoom}
}

// edgeSpeed is the scroll step for a pointer d px away from an edge.
func edgeSpeed(d, edge, max float64) float64 {
	within := math.Max(0, edge-math.Max(0, d))
	if within <= 0 {
		return 0
	}
	return math.Ceil(within / edge * max)
}

// AutoscrollDelta returns the scroll step for a pointer at p inside the
// scroll container sc. Up wins over down and left over right when both
// bands are hit.
func AutoscrollDelta(sc Rect, p Point, edge, max float64) (dx, dy float64) {
	if up := edgeSpeed(p.Y-sc.Y, edge, max); up > 0 && p.Y < sc.Y+edge {
		dy = -up
	} else if down := edgeSpeed(sc.Bottom()-p.Y, edge, max); down > 0 && p.Y > sc.Bottom()-edge {
		dy = down
	}
	if left := edgeSpeed(p.X-sc.X, edge, max); left > 0 && p.X < sc.X+edge {
		dx = -left
	} else if right := edgeSpeed(sc.Right()-p.X, edge, max); right > 0 && p.X > sc.Right()-edge {
		dx = right
	}
	return dx, dy
}

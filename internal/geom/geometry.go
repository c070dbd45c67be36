// internal/geom/geometry.go
package geom

import "fmt"

// Au is an "app unit": a fixed-point length equal to 1/60 of a CSS pixel.
// Layout computes and reports all geometry in app units so that fractional
// pixel values survive arithmetic without float drift.
type Au int32

// AppUnitsPerPx is the number of app units in one CSS pixel.
const AppUnitsPerPx = 60

// FromPx converts a CSS pixel length to app units, rounding to the nearest unit.
func FromPx(px float64) Au {
	if px >= 0 {
		return Au(px*AppUnitsPerPx + 0.5)
	}
	return Au(px*AppUnitsPerPx - 0.5)
}

// ToPx converts an app-unit length back to CSS pixels.
func (a Au) ToPx() float64 {
	return float64(a) / AppUnitsPerPx
}

// ScaleBy multiplies the length by a float factor, rounding to app units.
func (a Au) ScaleBy(factor float64) Au {
	return FromPx(a.ToPx() * factor)
}

func (a Au) String() string {
	return fmt.Sprintf("%.2fpx", a.ToPx())
}

// Point2D is a point in CSS pixel space, used for hit testing and input events.
type Point2D struct {
	X, Y float32
}

// Size2D is a width/height pair in CSS pixels, used for viewport sizing.
type Size2D struct {
	Width, Height float32
}

// Rect is an axis-aligned rectangle in app units.
type Rect struct {
	X, Y, Width, Height Au
}

// IsEmpty reports whether the rectangle encloses no area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether the pixel-space point falls inside the rectangle.
func (r Rect) Contains(p Point2D) bool {
	px := FromPx(float64(p.X))
	py := FromPx(float64(p.Y))
	return px >= r.X && px < r.X+r.Width && py >= r.Y && py < r.Y+r.Height
}

// Union returns the smallest rectangle enclosing both r and other.
// An empty rectangle acts as the identity.
func (r Rect) Union(other Rect) Rect {
	if r.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return r
	}
	x := minAu(r.X, other.X)
	y := minAu(r.Y, other.Y)
	right := maxAu(r.X+r.Width, other.X+other.Width)
	bottom := maxAu(r.Y+r.Height, other.Y+other.Height)
	return Rect{X: x, Y: y, Width: right - x, Height: bottom - y}
}

func (r Rect) String() string {
	return fmt.Sprintf("Rect(%s, %s, %sx%s)", r.X, r.Y, r.Width, r.Height)
}

func minAu(a, b Au) Au {
	if a < b {
		return a
	}
	return b
}

func maxAu(a, b Au) Au {
	if a > b {
		return a
	}
	return b
}

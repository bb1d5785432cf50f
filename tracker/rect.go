package tracker

import (
	"math"
)

// Tlwh (top, left, width, height) represents a 1x4 matrix
type Tlwh [4]float32

// Tlbr (top, left, bottom, right) represents a 1x4 matrix
type Tlbr [4]float32

// Xyah (center x, center y, aspect ratio, height) represents a 1x4 matrix
type Xyah [4]float32

// Rect represents a bounding box in Tlwh (top, left, width, height) format
type Rect struct {
	Tlwh Tlwh
}

// NewRect creates a new Rect with given coordinates
func NewRect(x, y, width, height float32) Rect {
	return Rect{
		Tlwh: Tlwh{x, y, width, height},
	}
}

// X returns the x coordinate of the rectangle
func (r Rect) X() float32 {
	return r.Tlwh[0]
}

// Y returns the y coordinate of the rectangle
func (r Rect) Y() float32 {
	return r.Tlwh[1]
}

// Width returns the width of the rectangle
func (r Rect) Width() float32 {
	return r.Tlwh[2]
}

// Height returns the height of the rectangle
func (r Rect) Height() float32 {
	return r.Tlwh[3]
}

// BRX returns the bottom-right x coordinate of the rectangle
func (r Rect) BRX() float32 {
	return r.Tlwh[0] + r.Tlwh[2]
}

// BRY returns the bottom-right y coordinate of the rectangle
func (r Rect) BRY() float32 {
	return r.Tlwh[1] + r.Tlwh[3]
}

// Area returns the area of the rectangle, zero for degenerate boxes
func (r Rect) Area() float64 {

	if r.Tlwh[2] <= 0 || r.Tlwh[3] <= 0 {
		return 0
	}

	return float64(r.Tlwh[2]) * float64(r.Tlwh[3])
}

// Valid reports whether the rectangle has a finite, positive size
func (r Rect) Valid() bool {

	for _, v := range r.Tlwh {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return false
		}
	}

	return r.Tlwh[2] > 0 && r.Tlwh[3] > 0
}

// Tlbr converts the rectangle to Tlbr (top, left, bottom, right) format
func (r Rect) Tlbr() Tlbr {
	return Tlbr{
		r.Tlwh[0],
		r.Tlwh[1],
		r.Tlwh[0] + r.Tlwh[2],
		r.Tlwh[1] + r.Tlwh[3],
	}
}

// Xyah converts the rectangle to Xyah (center x, center y, aspect ratio,
// height) format
func (r Rect) Xyah() Xyah {
	return Xyah{
		r.Tlwh[0] + r.Tlwh[2]/2,
		r.Tlwh[1] + r.Tlwh[3]/2,
		r.Tlwh[2] / r.Tlwh[3],
		r.Tlwh[3],
	}
}

// AspectRatio returns height divided by width
func (r Rect) AspectRatio() float64 {

	if r.Tlwh[2] == 0 {
		return math.Inf(1)
	}

	return float64(r.Tlwh[3]) / float64(r.Tlwh[2])
}

// Intersection returns the overlapping area of two rectangles
func (r Rect) Intersection(other Rect) float64 {

	iw := math.Min(float64(r.BRX()), float64(other.BRX())) -
		math.Max(float64(r.Tlwh[0]), float64(other.Tlwh[0]))

	if iw <= 0 {
		return 0
	}

	ih := math.Min(float64(r.BRY()), float64(other.BRY())) -
		math.Max(float64(r.Tlwh[1]), float64(other.Tlwh[1]))

	if ih <= 0 {
		return 0
	}

	return iw * ih
}

// IoU calculates the Intersection over Union with another rectangle
func (r Rect) IoU(other Rect) float64 {

	inter := r.Intersection(other)

	if inter == 0 {
		return 0
	}

	union := r.Area() + other.Area() - inter

	if union <= 0 {
		return 0
	}

	return inter / union
}

// RectFromTlbr creates a Rect from Tlbr (top, left, bottom, right) format
func RectFromTlbr(tlbr Tlbr) Rect {
	return NewRect(tlbr[0], tlbr[1], tlbr[2]-tlbr[0], tlbr[3]-tlbr[1])
}

// RectFromXyah creates a Rect from Xyah (center x, center y,
// aspect ratio, height) format
func RectFromXyah(xyah Xyah) Rect {
	width := xyah[2] * xyah[3]
	return NewRect(xyah[0]-width/2, xyah[1]-xyah[3]/2, width, xyah[3])
}

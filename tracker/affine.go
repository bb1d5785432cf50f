package tracker

// Affine is a 2x3 row-major camera motion transform mapping previous frame
// coordinates into the current frame
type Affine [6]float64

// Identity returns the transform that leaves coordinates unchanged
func Identity() Affine {
	return Affine{1, 0, 0, 0, 1, 0}
}

// Translation returns a pure translation transform
func Translation(dx, dy float64) Affine {
	return Affine{1, 0, dx, 0, 1, dy}
}

// Apply transforms a point
func (a Affine) Apply(x, y float64) (float64, float64) {
	return a[0]*x + a[1]*y + a[2], a[3]*x + a[4]*y + a[5]
}

// ApplyLinear transforms a direction vector, ignoring translation
func (a Affine) ApplyLinear(x, y float64) (float64, float64) {
	return a[0]*x + a[1]*y, a[3]*x + a[4]*y
}

// ApplyRect moves a box by transforming its corners and taking the axis
// aligned bounds of the result
func (a Affine) ApplyRect(r Rect) Rect {

	tlbr := r.Tlbr()

	x1, y1 := a.Apply(float64(tlbr[0]), float64(tlbr[1]))
	x2, y2 := a.Apply(float64(tlbr[2]), float64(tlbr[3]))

	return RectFromTlbr(Tlbr{
		float32(min(x1, x2)), float32(min(y1, y2)),
		float32(max(x1, x2)), float32(max(y1, y2)),
	})
}

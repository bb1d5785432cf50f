package encoder

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/swdee/go-reidtrack/tracker"
)

// Cropper cuts detection boxes out of a frame and scales them to the model
// input size
type Cropper struct {
	size   image.Point
	scaler draw.Scaler
}

// NewCropper returns a cropper producing width x height images using
// bilinear interpolation
func NewCropper(width, height int) (*Cropper, error) {

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: crop size %dx%d", tracker.ErrConfig, width, height)
	}

	return &Cropper{
		size:   image.Pt(width, height),
		scaler: draw.BiLinear,
	}, nil
}

// Size returns the output size of every crop
func (c *Cropper) Size() image.Point {
	return c.size
}

// Crop returns the box region of img resized to the cropper size. Boxes are
// clamped to the image, a box without any pixel inside it is a shape error.
func (c *Cropper) Crop(img image.Image, box tracker.Rect) (*image.RGBA, error) {

	bounds := img.Bounds()

	x1 := clamp(int(box.X()), bounds.Min.X, bounds.Max.X)
	y1 := clamp(int(box.Y()), bounds.Min.Y, bounds.Max.Y)
	x2 := clamp(int(box.BRX()), bounds.Min.X, bounds.Max.X)
	y2 := clamp(int(box.BRY()), bounds.Min.Y, bounds.Max.Y)

	roi := image.Rect(x1, y1, x2, y2)

	if roi.Empty() {
		return nil, fmt.Errorf("%w: box %v has no pixels inside image %v",
			tracker.ErrShape, box, bounds)
	}

	dst := image.NewRGBA(image.Rectangle{Max: c.size})
	c.scaler.Scale(dst, dst.Bounds(), img, roi, draw.Src, nil)

	return dst, nil
}

// clamp restricts the value x to be within the range min and max
func clamp(val, lo, hi int) int {

	if val > lo {

		if val < hi {
			return val
		}

		return hi
	}

	return lo
}

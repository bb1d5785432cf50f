package encoder

import (
	"fmt"
	"image"
)

// ImageNet channel statistics commonly used to normalise ReID inputs
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Batch concatenates crops into a single NHWC float32 input tensor
type Batch struct {
	data []float32
	// size of the batch
	size int
	// width is the input tensor size width
	width int
	// height is the input tensor size height
	height int
	// mean and std normalise each RGB channel after scaling to [0,1]
	mean [3]float32
	std  [3]float32
	// cnt is a counter for how many crops have been added with Add()
	cnt int
	// imgSize stores a crop's size made up from its elements
	imgSize int
}

// NewBatch creates a batch buffer for batchSize crops of the given size
func NewBatch(batchSize, height, width int, mean, std [3]float32) *Batch {

	imgSize := height * width * 3

	return &Batch{
		data:    make([]float32, batchSize*imgSize),
		size:    batchSize,
		width:   width,
		height:  height,
		mean:    mean,
		std:     std,
		imgSize: imgSize,
	}
}

// Add a crop to the next free slot of the batch
func (b *Batch) Add(img *image.RGBA) error {

	// check if batch is full
	if b.cnt >= b.size {
		return fmt.Errorf("batch full")
	}

	if err := b.addAt(b.cnt, img); err != nil {
		return err
	}

	b.cnt++
	return nil
}

// AddAt writes a crop to the batch at the specific index location
func (b *Batch) AddAt(idx int, img *image.RGBA) error {

	if idx < 0 || idx >= b.size {
		return fmt.Errorf("index %d out of range [0-%d)", idx, b.size)
	}

	return b.addAt(idx, img)
}

// addAt converts the crop into normalised float values at idx
func (b *Batch) addAt(idx int, img *image.RGBA) error {

	bounds := img.Bounds()

	if bounds.Dx() != b.width || bounds.Dy() != b.height {
		return fmt.Errorf("image %dx%d does not match batch shape %dx%d",
			bounds.Dx(), bounds.Dy(), b.width, b.height)
	}

	dst := b.data[idx*b.imgSize : (idx+1)*b.imgSize]
	i := 0

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {

		row := img.Pix[img.PixOffset(bounds.Min.X, y):]

		for x := 0; x < b.width; x++ {
			for c := 0; c < 3; c++ {
				v := float32(row[4*x+c]) / 255
				dst[i] = (v - b.mean[c]) / b.std[c]
				i++
			}
		}
	}

	return nil
}

// Len returns the number of filled slots
func (b *Batch) Len() int {
	return b.cnt
}

// Cap returns the batch size
func (b *Batch) Cap() int {
	return b.size
}

// Shape returns the NHWC dimensions of the input tensor
func (b *Batch) Shape() [4]int {
	return [4]int{b.size, b.height, b.width, 3}
}

// Data returns the input tensor, slots beyond Len hold stale values
func (b *Batch) Data() []float32 {
	return b.data
}

// Slot returns the input values of one crop
func (b *Batch) Slot(idx int) []float32 {
	return b.data[idx*b.imgSize : (idx+1)*b.imgSize]
}

// Feature returns the unit length feature of the crop at idx from a model
// output of the whole batch
func (b *Batch) Feature(idx int, out *Output) ([]float32, error) {

	if idx < 0 || idx >= b.size {
		return nil, fmt.Errorf("index %d out of range [0-%d)", idx, b.size)
	}

	if out.Dim <= 0 {
		return nil, fmt.Errorf("output feature length %d", out.Dim)
	}

	offset := idx * out.Dim

	if offset+out.Dim > out.size() {
		return nil, fmt.Errorf("offset %d out of range [%d,%d)", offset, out.size(), offset+out.Dim)
	}

	if out.Int8 != nil {
		return DequantizeAndL2Normalize(out.Int8[offset:offset+out.Dim], out.Scale, out.ZeroPoint), nil
	}

	return L2Normalize(out.Float[offset : offset+out.Dim]), nil
}

// Clear the batch so it can be reused again
func (b *Batch) Clear() {
	// just reset the counter, the buffer is overwritten by the next Add()
	b.cnt = 0
}

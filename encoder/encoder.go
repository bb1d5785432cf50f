// Package encoder turns detection boxes of a frame image into appearance
// features. The network itself is supplied by the caller through the Model
// interface; this package crops and batches the boxes, fans batches out
// over a pool of model sessions and converts their raw outputs into unit
// length features.
package encoder

import (
	"context"
	"image"

	"github.com/swdee/go-reidtrack/tracker"
)

// Encoder produces one feature vector per box, in box order
type Encoder interface {
	Encode(ctx context.Context, img image.Image, boxes []tracker.Rect) ([][]float32, error)
}

// Model is one inference session of an appearance network with a fixed
// input batch size. A Model is used by one goroutine at a time.
type Model interface {
	// BatchSize is the number of crops the model takes per call
	BatchSize() int
	// Infer runs the network on the filled slots of b
	Infer(ctx context.Context, b *Batch) (*Output, error)
}

// Output is the raw output tensor of a Model. Exactly one of Float and
// Int8 is set, Int8 outputs are dequantized with Scale and ZeroPoint.
type Output struct {
	Float     []float32
	Int8      []int8
	Scale     float32
	ZeroPoint int32
	// Dim is the feature length of one sample
	Dim int
}

// size returns the number of elements in the output tensor
func (o *Output) size() int {
	if o.Int8 != nil {
		return len(o.Int8)
	}
	return len(o.Float)
}

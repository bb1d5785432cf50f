package encoder

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/swdee/go-reidtrack/tracker"
)

// BatchedOptions configures a Batched encoder
type BatchedOptions struct {
	// Width and Height are the model input size
	Width  int
	Height int
	Mean   [3]float32
	Std    [3]float32
}

// Batched encodes the boxes of a frame by splitting them into model sized
// batches that run concurrently on a pool of model sessions
type Batched struct {
	models    *Pool[Model]
	batches   *Pool[*Batch]
	cropper   *Cropper
	batchSize int
}

// NewBatched creates an encoder running on the given model sessions, which
// must share one batch size
func NewBatched(models []Model, opts BatchedOptions) (*Batched, error) {

	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no model sessions", tracker.ErrConfig)
	}

	batchSize := models[0].BatchSize()

	for i, m := range models {
		if m.BatchSize() <= 0 || m.BatchSize() != batchSize {
			return nil, fmt.Errorf("%w: model %d batch size %d, expected %d",
				tracker.ErrConfig, i, m.BatchSize(), batchSize)
		}
	}

	for c := 0; c < 3; c++ {
		if opts.Std[c] == 0 {
			return nil, fmt.Errorf("%w: channel %d has zero std", tracker.ErrConfig, c)
		}
	}

	cropper, err := NewCropper(opts.Width, opts.Height)
	if err != nil {
		return nil, err
	}

	// one batch buffer per session so every session can be busy at once
	batches := make([]*Batch, len(models))

	for i := range batches {
		batches[i] = NewBatch(batchSize, opts.Height, opts.Width, opts.Mean, opts.Std)
	}

	return &Batched{
		models:    NewPool(models, nil),
		batches:   NewPool(batches, nil),
		cropper:   cropper,
		batchSize: batchSize,
	}, nil
}

// Close releases the pools, it must not be called while Encode runs
func (e *Batched) Close() {
	e.batches.Close()
	e.models.Close()
}

// Encode implements Encoder
func (e *Batched) Encode(ctx context.Context, img image.Image, boxes []tracker.Rect) ([][]float32, error) {

	total := len(boxes)

	// crop everything first so a bad box rejects the frame before any
	// inference is started
	crops := make([]*image.RGBA, total)

	for i, box := range boxes {
		crop, err := e.cropper.Crop(img, box)
		if err != nil {
			return nil, fmt.Errorf("box %d: %w", i, err)
		}
		crops[i] = crop
	}

	var wg sync.WaitGroup

	// collect per box feature embeddings
	allEmbeddings := make([][]float32, total)
	errCh := make(chan error, (total+e.batchSize-1)/e.batchSize)

	for offset := 0; offset < total; offset += e.batchSize {

		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}

		end := min(offset+e.batchSize, total)

		batch := e.batches.Get()
		model := e.models.Get()

		wg.Add(1)

		go func(off int, chunk []*image.RGBA) {
			defer wg.Done()

			feats, err := e.processBatch(ctx, model, batch, chunk)
			e.models.Return(model)
			e.batches.Return(batch)

			if err != nil {
				errCh <- fmt.Errorf("boxes %d-%d: %w", off, off+len(chunk)-1, err)
				return
			}

			// copy this batch's features into place for all results
			copy(allEmbeddings[off:], feats)
		}(offset, crops[offset:end])
	}

	wg.Wait()
	close(errCh)

	// if any error, just bail
	for err := range errCh {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return allEmbeddings, nil
}

// processBatch fills a batch with crops and runs inference on it
func (e *Batched) processBatch(ctx context.Context, model Model, batch *Batch, crops []*image.RGBA) ([][]float32, error) {

	batch.Clear()

	for _, crop := range crops {
		if err := batch.Add(crop); err != nil {
			return nil, fmt.Errorf("error adding crop to batch: %w", err)
		}
	}

	out, err := model.Infer(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	// unpack per crop results
	feats := make([][]float32, len(crops))

	for idx := range crops {
		if feats[idx], err = batch.Feature(idx, out); err != nil {
			return nil, fmt.Errorf("error getting output %d: %w", idx, err)
		}
	}

	return feats, nil
}

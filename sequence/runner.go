package sequence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"github.com/swdee/go-reidtrack/encoder"
	"github.com/swdee/go-reidtrack/metrics"
	"github.com/swdee/go-reidtrack/tracker"
)

// RunnerOptions configures the frame preparation of a Runner
type RunnerOptions struct {
	// MaxAspect drops detections whose height to width ratio is not below
	// it, 0 keeps all detections
	MaxAspect float64
	// Normalize scales every feature to unit length
	Normalize bool
}

// Option customises a Runner
type Option func(*Runner)

// WithEncoder computes features from the frame image, replacing any
// features supplied by the loader
func WithEncoder(enc encoder.Encoder) Option {
	return func(r *Runner) {
		r.encoder = enc
	}
}

// WithMotion enables camera motion compensation
func WithMotion(m MotionEstimator) Option {
	return func(r *Runner) {
		r.motion = m
	}
}

// WithSink adds a consumer of associated frames
func WithSink(s Sink) Option {
	return func(r *Runner) {
		r.sinks = append(r.sinks, s)
	}
}

// WithRecorder reports skipped frames and frame durations
func WithRecorder(rec FrameRecorder) Option {
	return func(r *Runner) {
		r.recorder = rec
	}
}

// WithLogger sets the logger of the runner
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = l
	}
}

// Runner tracks a single sequence with its own Engine
type Runner struct {
	engine   *tracker.Engine
	loader   Loader
	opts     RunnerOptions
	encoder  encoder.Encoder
	motion   MotionEstimator
	sinks    []Sink
	recorder FrameRecorder
	log      zerolog.Logger
	// readImage loads a frame image
	readImage func(path string) gocv.Mat
}

// NewRunner creates a runner feeding the frames of loader into engine
func NewRunner(engine *tracker.Engine, loader Loader, opts RunnerOptions, options ...Option) *Runner {

	r := &Runner{
		engine: engine,
		loader: loader,
		opts:   opts,
		log:    zerolog.Nop(),
		readImage: func(path string) gocv.Mat {
			return gocv.IMRead(path, gocv.IMReadColor)
		},
	}

	for _, o := range options {
		o(r)
	}

	return r
}

// needsImage reports whether any stage consumes the frame image
func (r *Runner) needsImage() bool {

	if r.encoder != nil || r.motion != nil {
		return true
	}

	for _, s := range r.sinks {
		if is, ok := s.(ImageSink); ok && is.NeedsImage() {
			return true
		}
	}

	return false
}

// Run tracks every frame of the sequence. Frames with inconsistent shapes
// are skipped, broken track state aborts the sequence. Cancellation is
// checked between frames. The sinks are not closed.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {

	name := r.loader.Name()
	start := time.Now()
	withImage := r.needsImage()

	sum := &Summary{Sequence: name}

	if r.motion != nil {
		r.motion.Reset()
	}

	r.log.Info().Msg("Sequence started")

	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		frame, err := r.loader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, fmt.Errorf("load frame: %w", err)
		}

		frameStart := time.Now()

		skipped, err := r.step(ctx, name, frame, withImage, sum)
		if err != nil {
			return sum, err
		}

		if skipped {
			sum.Skipped++
			continue
		}

		sum.Frames++

		if r.recorder != nil {
			r.recorder.FrameDuration(time.Since(frameStart))
		}
	}

	sum.Live = len(r.engine.Finish())
	sum.Duration = time.Since(start)

	r.log.Info().
		Int("frames", sum.Frames).
		Int("skipped", sum.Skipped).
		Int("tracks", sum.Tracks).
		Dur("duration", sum.Duration).
		Msg("Sequence completed")

	return sum, nil
}

// step processes one frame and reports whether it was skipped
func (r *Runner) step(ctx context.Context, name string, frame *Frame, withImage bool, sum *Summary) (bool, error) {

	dets := filterAspect(frame.Detections, r.opts.MaxAspect)

	var img *gocv.Mat

	if withImage && frame.ImagePath != "" {
		m := r.readImage(frame.ImagePath)
		if m.Empty() {
			m.Close()
			return false, fmt.Errorf("frame %d: read image %s", frame.Index, frame.ImagePath)
		}
		defer m.Close()
		img = &m
	}

	if r.encoder != nil && img != nil && len(dets) > 0 {
		if err := r.encode(ctx, *img, dets); err != nil {
			if errors.Is(err, tracker.ErrShape) {
				r.skip(frame.Index, metrics.ReasonEncoder, err)
				return true, nil
			}
			return false, fmt.Errorf("frame %d: %w", frame.Index, err)
		}
	}

	if r.opts.Normalize {
		for i := range dets {
			dets[i].Feature = tracker.NormalizeVec(dets[i].Feature)
		}
	}

	var warp *tracker.Affine

	if r.motion != nil && img != nil {
		w, err := r.motion.Estimate(*img)
		if err != nil {
			// compensation is an improvement, tracking continues without it
			r.log.Warn().Err(err).Int("frame", frame.Index).Msg("Camera motion estimate failed")
		}
		warp = w
	}

	res, err := r.engine.Update(ctx, tracker.Frame{
		Index:      frame.Index,
		Detections: dets,
		Warp:       warp,
	})

	switch {
	case errors.Is(err, tracker.ErrShape):
		r.skip(frame.Index, metrics.ReasonShape, err)
		return true, nil
	case err != nil:
		return false, err
	}

	sum.Detections += len(dets)
	sum.Tracks += len(res.Created)

	out := &Output{
		Sequence:   name,
		Frame:      frame,
		Detections: dets,
		Result:     res,
		Image:      img,
	}

	for _, s := range r.sinks {
		if err := s.WriteFrame(out); err != nil {
			return false, fmt.Errorf("frame %d: write result: %w", frame.Index, err)
		}
	}

	return false, nil
}

// encode replaces the detection features with encoder output
func (r *Runner) encode(ctx context.Context, img gocv.Mat, dets []tracker.Detection) error {

	goImg, err := img.ToImage()
	if err != nil {
		return fmt.Errorf("convert image: %w", err)
	}

	boxes := make([]tracker.Rect, len(dets))
	for i := range dets {
		boxes[i] = dets[i].Rect
	}

	feats, err := r.encoder.Encode(ctx, goImg, boxes)
	if err != nil {
		return err
	}

	if len(feats) != len(dets) {
		return fmt.Errorf("%w: encoder returned %d features for %d boxes",
			tracker.ErrShape, len(feats), len(dets))
	}

	for i := range dets {
		dets[i].Feature = feats[i]
	}

	return nil
}

func (r *Runner) skip(frame int, reason string, err error) {

	r.log.Warn().Err(err).Int("frame", frame).Str("reason", reason).Msg("Frame skipped")

	if r.recorder != nil {
		r.recorder.SkippedFrame(reason)
	}
}

// filterAspect returns copies of the detections whose height to width
// ratio is below maxAspect
func filterAspect(dets []tracker.Detection, maxAspect float64) []tracker.Detection {

	out := make([]tracker.Detection, 0, len(dets))

	for _, d := range dets {
		if maxAspect > 0 && d.Rect.AspectRatio() >= maxAspect {
			continue
		}
		out = append(out, d)
	}

	return out
}

// Package sequence drives a tracking Engine over the frames of video
// sequences. A Runner pulls frames from a Loader, obtains appearance
// features and camera motion, associates the frame and hands the result to
// its sinks. RunAll tracks independent sequences in parallel.
//
// Detection files use one comma separated row per detection:
//
//	frame,id,left,top,width,height,conf,visibility,area_out[,f1,...,fD]
//
// where id is the ground truth identity or -1 and the optional trailing
// columns hold the appearance feature. Result files use the MOT challenge
// layout frame,id,left,top,width,height,1,-1,-1,-1.
package sequence

import (
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/swdee/go-reidtrack/tracker"
)

// Frame is one frame of a sequence as read by a Loader
type Frame struct {
	// Index is the frame number within the sequence
	Index      int
	Detections []tracker.Detection
	// ImagePath locates the frame image, empty when there is none
	ImagePath string
}

// Loader yields the frames of one sequence in order
type Loader interface {
	// Name identifies the sequence
	Name() string
	// Next returns the next frame or io.EOF after the last one
	Next(ctx context.Context) (*Frame, error)
	Close() error
}

// MotionEstimator measures camera motion from consecutive frame images
type MotionEstimator interface {
	// Estimate returns the motion since the previous image, nil if unknown
	Estimate(img gocv.Mat) (*tracker.Affine, error)
	// Reset forgets the previous image
	Reset()
}

// Output is everything known about one associated frame
type Output struct {
	Sequence string
	Frame    *Frame
	// Detections passed to the engine, in TrackIDs order
	Detections []tracker.Detection
	Result     *tracker.FrameResult
	// Image is the frame image, nil unless a consumer needed it
	Image *gocv.Mat
}

// Sink consumes associated frames
type Sink interface {
	WriteFrame(out *Output) error
	Close() error
}

// ImageSink is a Sink that draws on the frame image, the Runner loads the
// image for every frame when any of its sinks needs it
type ImageSink interface {
	Sink
	NeedsImage() bool
}

// FrameRecorder receives per frame measurements, satisfied by
// metrics.SequenceObserver
type FrameRecorder interface {
	SkippedFrame(reason string)
	FrameDuration(d time.Duration)
}

// Summary describes a finished sequence
type Summary struct {
	Sequence   string
	Frames     int
	Skipped    int
	Detections int
	// Tracks is the number of track ids issued
	Tracks int
	// Live is the number of tracks held when the sequence ended
	Live     int
	Duration time.Duration
}

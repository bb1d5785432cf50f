// Package render draws tracking results onto frame images
package render

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/swdee/go-reidtrack/sequence"
	"github.com/swdee/go-reidtrack/tracker"
)

// Writer is a sequence sink saving every annotated frame as a JPEG file
// named after its frame number
type Writer struct {
	dir   string
	style Style
	traj  *tracker.Trajectories
}

// NewWriter creates dir and returns a writer saving into it
func NewWriter(dir string, style Style) (*Writer, error) {

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}

	w := &Writer{dir: dir, style: style}

	if style.Trail != nil {
		w.traj = tracker.NewTrajectories(style.TrailLength)
	}

	return w, nil
}

// NeedsImage implements sequence.ImageSink
func (w *Writer) NeedsImage() bool {
	return true
}

// WriteFrame implements sequence.Sink. Frames without an image are
// skipped.
func (w *Writer) WriteFrame(out *sequence.Output) error {

	if w.traj != nil {
		w.traj.AddResult(out.Result, out.Detections)
	}

	if out.Image == nil || out.Image.Empty() {
		return nil
	}

	img := out.Image.Clone()
	defer img.Close()

	if w.traj != nil {
		Trail(&img, out.Result.TrackIDs, w.traj, *w.style.Trail)
	}

	TrackBoxes(&img, out.Detections, out.Result, w.style.Font, w.style.LineThickness)

	path := filepath.Join(w.dir, fmt.Sprintf("%06d.jpg", out.Result.Frame))

	if !gocv.IMWrite(path, img) {
		return fmt.Errorf("write %s", path)
	}

	return nil
}

// Close implements sequence.Sink
func (w *Writer) Close() error {
	if w.traj != nil {
		w.traj.Reset()
	}
	return nil
}

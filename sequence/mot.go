package sequence

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/swdee/go-reidtrack/tracker"
)

// detection file columns before the feature
const motColumns = 9

// MOTLoader reads a detection file into memory and yields its frames from
// the first to the last frame number, including frames without detections
type MOTLoader struct {
	name     string
	imageDir string
	frames   map[int][]tracker.Detection
	first    int
	last     int
	next     int
}

// LoadMOT parses the detection file at path. The sequence is named after
// the file. When imageDir is set, frame n is expected at imageDir/%06d.jpg.
func LoadMOT(path, imageDir string) (*MOTLoader, error) {

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open detections: %w", err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	l, err := ParseMOT(name, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.imageDir = imageDir

	return l, nil
}

// ParseMOT reads detection rows from r
func ParseMOT(name string, r io.Reader) (*MOTLoader, error) {

	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	l := &MOTLoader{
		name:   name,
		frames: make(map[int][]tracker.Detection),
	}

	line := 0

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read detections: %w", err)
		}

		line++

		frame, det, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}

		det.Frame = frame
		l.frames[frame] = append(l.frames[frame], det)
	}

	if len(l.frames) > 0 {
		keys := make([]int, 0, len(l.frames))
		for k := range l.frames {
			keys = append(keys, k)
		}

		l.first = slices.Min(keys)
		l.last = slices.Max(keys)
	}

	l.next = l.first

	return l, nil
}

func parseRow(rec []string) (int, tracker.Detection, error) {

	if len(rec) < motColumns {
		return 0, tracker.Detection{}, fmt.Errorf("expected at least %d columns, got %d", motColumns, len(rec))
	}

	vals := make([]float64, len(rec))

	for i, s := range rec {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, tracker.Detection{}, fmt.Errorf("column %d: %w", i+1, err)
		}
		vals[i] = v
	}

	var feat []float32

	if len(vals) > motColumns {
		feat = make([]float32, len(vals)-motColumns)
		for i, v := range vals[motColumns:] {
			feat[i] = float32(v)
		}
	}

	det := tracker.NewDetection(
		tracker.NewRect(float32(vals[2]), float32(vals[3]), float32(vals[4]), float32(vals[5])),
		feat, int(vals[0]),
	)

	det.GTID = int(vals[1])

	// negative visibility marks an unknown value
	if vals[7] >= 0 {
		det.Visibility = min(vals[7], 1)
	}

	det.AreaOut = max(vals[8], 0)

	return int(vals[0]), det, nil
}

// Name implements Loader
func (l *MOTLoader) Name() string {
	return l.name
}

// Len returns the number of frames the loader yields
func (l *MOTLoader) Len() int {
	if len(l.frames) == 0 {
		return 0
	}
	return l.last - l.first + 1
}

// Next implements Loader
func (l *MOTLoader) Next(ctx context.Context) (*Frame, error) {

	if len(l.frames) == 0 || l.next > l.last {
		return nil, io.EOF
	}

	idx := l.next
	l.next++

	f := &Frame{
		Index:      idx,
		Detections: slices.Clone(l.frames[idx]),
	}

	if l.imageDir != "" {
		f.ImagePath = filepath.Join(l.imageDir, fmt.Sprintf("%06d.jpg", idx))
	}

	return f, nil
}

// Close implements Loader
func (l *MOTLoader) Close() error {
	l.frames = nil
	return nil
}

// MOTSink writes tracking results in the MOT challenge layout
type MOTSink struct {
	f *os.File
	w *bufio.Writer
}

// NewMOTSink creates the result file at path, creating its directory
func NewMOTSink(path string) (*MOTSink, error) {

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create result dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create result file: %w", err)
	}

	return &MOTSink{f: f, w: bufio.NewWriter(f)}, nil
}

// WriteFrame implements Sink
func (s *MOTSink) WriteFrame(out *Output) error {

	for i, det := range out.Detections {
		r := det.Rect
		_, err := fmt.Fprintf(s.w, "%d,%d,%.2f,%.2f,%.2f,%.2f,1,-1,-1,-1\n",
			out.Result.Frame, out.Result.TrackIDs[i], r.X(), r.Y(), r.Width(), r.Height())
		if err != nil {
			return err
		}
	}

	return nil
}

// Close flushes and closes the result file
func (s *MOTSink) Close() error {

	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("flush results: %w", err)
	}

	return s.f.Close()
}

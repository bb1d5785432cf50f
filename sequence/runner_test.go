package sequence

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/swdee/go-reidtrack/metrics"
	"github.com/swdee/go-reidtrack/tracker"
)

type sliceLoader struct {
	name   string
	frames []*Frame
	pos    int
	closed bool
}

func (l *sliceLoader) Name() string { return l.name }

func (l *sliceLoader) Next(context.Context) (*Frame, error) {
	if l.pos >= len(l.frames) {
		return nil, io.EOF
	}
	f := l.frames[l.pos]
	l.pos++
	return f, nil
}

func (l *sliceLoader) Close() error {
	l.closed = true
	return nil
}

type memSink struct {
	outputs []*Output
	fail    error
	image   bool
}

func (s *memSink) WriteFrame(out *Output) error {
	if s.fail != nil {
		return s.fail
	}
	s.outputs = append(s.outputs, out)
	return nil
}

func (s *memSink) Close() error { return nil }

func (s *memSink) NeedsImage() bool { return s.image }

type countingRecorder struct {
	skipped map[string]int
	frames  int
}

func (c *countingRecorder) SkippedFrame(reason string) {
	if c.skipped == nil {
		c.skipped = map[string]int{}
	}
	c.skipped[reason]++
}

func (c *countingRecorder) FrameDuration(time.Duration) { c.frames++ }

func newEngine(t *testing.T) *tracker.Engine {
	t.Helper()

	opts := tracker.DefaultOptions()
	opts.Metric = tracker.Euclidean
	opts.OcclusionScale = false
	opts.Threshold.Inactive = 0.4
	opts.Threshold.Ceiling = 100
	opts.InactiveHorizon = 10

	e, err := tracker.NewEngine(opts)
	require.NoError(t, err)

	return e
}

func det(x float32, feat ...float32) tracker.Detection {
	return tracker.NewDetection(tracker.NewRect(x, 0, 10, 20), feat, 0)
}

func TestRunnerTracksFrames(t *testing.T) {

	loader := &sliceLoader{name: "seq", frames: []*Frame{
		{Index: 1, Detections: []tracker.Detection{det(0, 1), det(100, 5)}},
		{Index: 2, Detections: []tracker.Detection{det(2, 1.1), det(100, 5.1)}},
		{Index: 3},
		{Index: 4, Detections: []tracker.Detection{det(4, 1.2)}},
	}}

	sink := &memSink{}
	rec := &countingRecorder{}

	r := NewRunner(newEngine(t), loader, RunnerOptions{}, WithSink(sink), WithRecorder(rec))

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "seq", sum.Sequence)
	assert.Equal(t, 4, sum.Frames)
	assert.Equal(t, 0, sum.Skipped)
	assert.Equal(t, 5, sum.Detections)
	assert.Equal(t, 2, sum.Tracks)
	assert.Equal(t, 2, sum.Live)
	assert.Equal(t, 4, rec.frames)

	require.Len(t, sink.outputs, 4)
	assert.Equal(t, []int{1, 2}, sink.outputs[1].Result.TrackIDs)
	assert.Empty(t, sink.outputs[2].Result.TrackIDs)
	assert.Equal(t, []int{1}, sink.outputs[3].Result.TrackIDs)
	assert.Nil(t, sink.outputs[0].Image)
}

func TestRunnerSkipsShapeErrors(t *testing.T) {

	loader := &sliceLoader{name: "seq", frames: []*Frame{
		{Index: 1, Detections: []tracker.Detection{det(0, 1, 0)}},
		{Index: 2, Detections: []tracker.Detection{det(0, 1, 0), det(50, 1)}},
		{Index: 3, Detections: []tracker.Detection{det(0, 1, 0.1)}},
	}}

	sink := &memSink{}
	rec := &countingRecorder{}

	r := NewRunner(newEngine(t), loader, RunnerOptions{}, WithSink(sink), WithRecorder(rec))

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Frames)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, rec.skipped[metrics.ReasonShape])

	// the skipped frame left the track active so frame 3 matches it
	require.Len(t, sink.outputs, 2)
	assert.Equal(t, []int{1}, sink.outputs[1].Result.TrackIDs)
	assert.Empty(t, sink.outputs[1].Result.Reactivated)
}

func TestRunnerAspectFilterAndNormalize(t *testing.T) {

	tall := tracker.NewDetection(tracker.NewRect(0, 0, 10, 60), []float32{3, 4}, 0)

	loader := &sliceLoader{name: "seq", frames: []*Frame{
		{Index: 1, Detections: []tracker.Detection{det(0, 3, 4), tall}},
	}}

	sink := &memSink{}

	r := NewRunner(newEngine(t), loader, RunnerOptions{MaxAspect: 3, Normalize: true}, WithSink(sink))

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.outputs, 1)
	require.Len(t, sink.outputs[0].Detections, 1)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, sink.outputs[0].Detections[0].Feature, 1e-6)

	// the loader's detections are untouched
	assert.Equal(t, []float32{3, 4}, loader.frames[0].Detections[0].Feature)
}

type fixedEncoder struct {
	feats [][]float32
	calls int
}

func (e *fixedEncoder) Encode(_ context.Context, img image.Image, boxes []tracker.Rect) ([][]float32, error) {
	e.calls++
	if img.Bounds().Dx() != 64 {
		return nil, errors.New("unexpected image")
	}
	return e.feats, nil
}

type shiftMotion struct {
	calls  int
	resets int
}

func (m *shiftMotion) Estimate(img gocv.Mat) (*tracker.Affine, error) {
	m.calls++
	w := tracker.Translation(1, 0)
	return &w, nil
}

func (m *shiftMotion) Reset() { m.resets++ }

func grayImage(string) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), 48, 64, gocv.MatTypeCV8UC3)
}

func TestRunnerEncoderAndMotion(t *testing.T) {

	loader := &sliceLoader{name: "seq", frames: []*Frame{
		{Index: 1, Detections: []tracker.Detection{det(0), det(30)}, ImagePath: "1.jpg"},
		{Index: 2, Detections: []tracker.Detection{det(0)}, ImagePath: "2.jpg"},
	}}

	enc := &fixedEncoder{feats: [][]float32{{1, 0}, {0, 1}}}
	motion := &shiftMotion{}
	sink := &memSink{image: true}
	rec := &countingRecorder{}

	r := NewRunner(newEngine(t), loader, RunnerOptions{},
		WithEncoder(enc), WithMotion(motion), WithSink(sink), WithRecorder(rec))
	r.readImage = grayImage

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	// frame 2 has one box but the encoder returns two features
	assert.Equal(t, 1, sum.Frames)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 1, rec.skipped[metrics.ReasonEncoder])
	assert.Equal(t, 2, enc.calls)
	assert.Equal(t, 1, motion.calls)
	assert.Equal(t, 1, motion.resets)

	require.Len(t, sink.outputs, 1)
	assert.Equal(t, []float32{0, 1}, sink.outputs[0].Detections[1].Feature)
}

func TestRunnerAborts(t *testing.T) {

	frames := []*Frame{{Index: 1, Detections: []tracker.Detection{det(0, 1)}}}

	r := NewRunner(newEngine(t), &sliceLoader{frames: frames}, RunnerOptions{},
		WithSink(&memSink{fail: errors.New("disk full")}))

	_, err := r.Run(context.Background())
	assert.ErrorContains(t, err, "disk full")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r = NewRunner(newEngine(t), &sliceLoader{frames: frames}, RunnerOptions{})

	sum, err := r.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, sum.Frames)
}

func TestParseMOT(t *testing.T) {

	input := `# frame,id,left,top,width,height,conf,vis,area_out,features
1,7,10,20,30,60,0.9,0.5,0,0.1,0.2
1,-1,100,20,30,60,0.9,-1,0.2,0.3,0.4
4,7,12,20,30,60,0.9,1,0,0.1,0.25
`

	l, err := ParseMOT("MOT17-02", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "MOT17-02", l.Name())
	assert.Equal(t, 4, l.Len())

	f, err := l.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.Index)
	require.Len(t, f.Detections, 2)

	d := f.Detections[0]
	assert.Equal(t, tracker.NewRect(10, 20, 30, 60), d.Rect)
	assert.Equal(t, 7, d.GTID)
	assert.Equal(t, 0.5, d.Visibility)
	assert.Equal(t, []float32{0.1, 0.2}, d.Feature)
	assert.Equal(t, 1.0, f.Detections[1].Visibility)
	assert.Equal(t, 0.2, f.Detections[1].AreaOut)

	// frames 2 and 3 have no detections but are still yielded
	for _, want := range []int{2, 3} {
		f, err = l.Next(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, f.Index)
		assert.Empty(t, f.Detections)
	}

	f, err = l.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, f.Index)

	_, err = l.Next(context.Background())
	assert.True(t, errors.Is(err, io.EOF))

	_, err = ParseMOT("bad", strings.NewReader("1,2,3\n"))
	assert.Error(t, err)

	_, err = ParseMOT("bad", strings.NewReader("1,2,3,4,5,6,7,8,x\n"))
	assert.Error(t, err)
}

func TestMOTRoundTrip(t *testing.T) {

	dir := t.TempDir()
	detPath := filepath.Join(dir, "seqA.txt")

	require.NoError(t, os.WriteFile(detPath, []byte(
		"1,1,0,0,10,20,1,1,0,1\n"+
			"2,1,1,0,10,20,1,1,0,1.05\n"), 0o644))

	l, err := LoadMOT(detPath, filepath.Join(dir, "img1"))
	require.NoError(t, err)

	sink, err := NewMOTSink(filepath.Join(dir, "out", "seqA.txt"))
	require.NoError(t, err)

	var paths []string
	recordPaths := &pathSink{paths: &paths}

	r := NewRunner(newEngine(t), l, RunnerOptions{}, WithSink(sink), WithSink(recordPaths))

	_, err = r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "out", "seqA.txt"))
	require.NoError(t, err)

	assert.Equal(t,
		"1,1,0.00,0.00,10.00,20.00,1,-1,-1,-1\n"+
			"2,1,1.00,0.00,10.00,20.00,1,-1,-1,-1\n",
		string(data))

	assert.Equal(t, []string{
		filepath.Join(dir, "img1", "000001.jpg"),
		filepath.Join(dir, "img1", "000002.jpg"),
	}, paths)
}

func TestRunnerMOTFrameGap(t *testing.T) {

	// frames 2 and 3 have no rows and must still age the track
	l, err := ParseMOT("gap", strings.NewReader(
		"1,1,0,0,10,20,1,1,0,1\n"+
			"4,1,1,0,10,20,1,1,0,1.05\n"))
	require.NoError(t, err)

	sink := &memSink{}
	rec := &countingRecorder{}

	r := NewRunner(newEngine(t), l, RunnerOptions{}, WithSink(sink), WithRecorder(rec))

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, sum.Frames)
	assert.Equal(t, 0, sum.Skipped)
	assert.Empty(t, rec.skipped)
	assert.Equal(t, 1, sum.Tracks)

	require.Len(t, sink.outputs, 4)
	assert.Equal(t, []int{1}, sink.outputs[1].Result.Demoted)
	assert.Equal(t, 1, sink.outputs[2].Result.NumInactive)
	assert.Equal(t, []int{1}, sink.outputs[3].Result.Reactivated)
	assert.Equal(t, []int{1}, sink.outputs[3].Result.TrackIDs)
}

type pathSink struct {
	paths *[]string
}

func (s *pathSink) WriteFrame(out *Output) error {
	*s.paths = append(*s.paths, out.Frame.ImagePath)
	return nil
}

func (s *pathSink) Close() error { return nil }

func TestRunAll(t *testing.T) {

	build := func(name string, n int) Job {
		return Job{
			Name: name,
			Build: func() (*Runner, func() error, error) {
				frames := make([]*Frame, n)
				for i := range frames {
					frames[i] = &Frame{Index: i, Detections: []tracker.Detection{det(0, 1)}}
				}
				l := &sliceLoader{name: name, frames: frames}
				return NewRunner(newEngine(t), l, RunnerOptions{}), l.Close, nil
			},
		}
	}

	jobs := []Job{
		build("a", 3),
		{Name: "broken", Build: func() (*Runner, func() error, error) {
			return nil, nil, errors.New("missing detections")
		}},
		build("b", 5),
	}

	sums, err := RunAll(context.Background(), 2, jobs)
	require.Error(t, err)
	assert.ErrorContains(t, err, "sequence broken: missing detections")

	require.Len(t, sums, 3)
	assert.Equal(t, 3, sums[0].Frames)
	assert.Nil(t, sums[1])
	assert.Equal(t, 5, sums[2].Frames)
	assert.Equal(t, 1, sums[2].Tracks)
}

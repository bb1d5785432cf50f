package tracker

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testOptions uses euclidean distance on one dimensional features so
// distances equal the difference of the feature values
func testOptions() Options {

	opts := DefaultOptions()
	opts.Metric = Euclidean
	opts.OcclusionScale = false
	opts.Threshold.Active = 0.4
	opts.Threshold.Inactive = 0.4
	opts.Threshold.Ceiling = 100
	opts.InactiveHorizon = 10

	return opts
}

// detAt returns a detection at horizontal position x with a one value
// feature
func detAt(x float32, feat float32) Detection {
	return NewDetection(NewRect(x, 0, 10, 20), []float32{feat}, 0)
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	e, err := NewEngine(opts)
	require.NoError(t, err)
	return e
}

func update(t *testing.T, e *Engine, index int, dets ...Detection) *FrameResult {
	res, err := e.Update(context.Background(), Frame{Index: index, Detections: dets})
	require.NoError(t, err)
	return res
}

func TestEngineCreatesTracks(t *testing.T) {

	e := newTestEngine(t, testOptions())

	res := update(t, e, 0, detAt(0, 0), detAt(50, 5), detAt(100, 10))

	assert.Equal(t, []int{1, 2, 3}, res.TrackIDs)
	assert.Equal(t, []int{1, 2, 3}, res.Created)
	assert.Empty(t, res.Matched)
	assert.Equal(t, 3, e.Manager().NumActive())
}

func TestEngineMatchesActiveTrack(t *testing.T) {

	e := newTestEngine(t, testOptions())

	update(t, e, 0, detAt(0, 0))
	res := update(t, e, 1, detAt(2, 0.05))

	assert.Equal(t, []int{1}, res.TrackIDs)
	assert.Equal(t, []int{1}, res.Matched)
	assert.Empty(t, res.Created)

	tr, ok := e.Manager().Track(1)
	require.True(t, ok)
	assert.Equal(t, Active, tr.State())
	assert.Equal(t, 0, tr.InactiveCount())
	assert.Len(t, tr.PastFeats(), 2)
	assert.Equal(t, 1, tr.Frame())
}

func TestEnginePrunesAfterHorizon(t *testing.T) {

	opts := testOptions()
	opts.InactiveHorizon = 3

	e := newTestEngine(t, opts)
	update(t, e, 0, detAt(0, 0))

	res := update(t, e, 1)
	assert.Equal(t, []int{1}, res.Demoted)

	tr, ok := e.Manager().Track(1)
	require.True(t, ok)
	assert.Equal(t, Inactive, tr.State())
	assert.Equal(t, 1, tr.InactiveCount())

	for frame := 2; frame <= 3; frame++ {
		res = update(t, e, frame)
		assert.Empty(t, res.Pruned, "frame %d", frame)
	}

	res = update(t, e, 4)
	assert.Equal(t, []int{1}, res.Pruned)
	assert.Equal(t, Pruned, tr.State())

	_, ok = e.Manager().Track(1)
	assert.False(t, ok)

	res = update(t, e, 5)
	assert.Empty(t, res.Pruned)

	// a pruned identity is never revived
	res = update(t, e, 6, detAt(0, 0))
	assert.Equal(t, []int{2}, res.Created)
}

func TestEngineRevivesInactiveTrack(t *testing.T) {

	e := newTestEngine(t, testOptions())

	update(t, e, 0, detAt(0, 0))
	update(t, e, 1)
	update(t, e, 2)

	tr, _ := e.Manager().Track(1)
	require.Equal(t, 2, tr.InactiveCount())

	res := update(t, e, 3, detAt(0, 0.05))

	assert.Equal(t, []int{1}, res.TrackIDs)
	assert.Equal(t, []int{1}, res.Reactivated)
	assert.Equal(t, Active, tr.State())
	assert.Equal(t, 0, tr.InactiveCount())
	assert.Len(t, tr.PastFeats(), 2)
	assert.True(t, e.Manager().IsActive(1))
	assert.Equal(t, 0, e.Manager().NumInactive())
}

// setupJointVersusSeparate leaves track 1 active with features at 1.0 and
// track 2 inactive with a feature at 0.85
func setupJointVersusSeparate(t *testing.T, mode AssignMode, gate bool) *Engine {

	opts := testOptions()
	opts.Assign = mode
	opts.GateFirst = gate

	e := newTestEngine(t, opts)

	update(t, e, 0, detAt(0, 1.0), detAt(100, 0.85))
	res := update(t, e, 1, detAt(0, 1.0))

	require.Equal(t, []int{1}, res.Matched)
	require.Equal(t, []int{2}, res.Demoted)

	return e
}

func TestEngineJointVersusSeparate(t *testing.T) {

	for _, gate := range []bool{false, true} {

		// detection 0 is 0.1 from active track 1 and 0.05 from inactive
		// track 2, detection 1 is far from both
		dets := []Detection{detAt(0, 0.9), detAt(300, 5.0)}

		joint := setupJointVersusSeparate(t, Joint, gate)
		res := update(t, joint, 2, dets...)

		assert.Equal(t, []int{2, 3}, res.TrackIDs, "joint gate=%v", gate)
		assert.Equal(t, []int{2}, res.Reactivated)
		assert.Equal(t, []int{1}, res.Demoted)

		separate := setupJointVersusSeparate(t, Separate, gate)
		res = update(t, separate, 2, dets...)

		assert.Equal(t, []int{1, 3}, res.TrackIDs, "separate gate=%v", gate)
		assert.Empty(t, res.Reactivated)
		assert.False(t, separate.Manager().IsActive(2))
	}
}

func TestEngineActiveProximity(t *testing.T) {

	opts := testOptions()
	opts.ActiveProximity = true
	opts.ProximityIoU = 0.5

	e := newTestEngine(t, opts)
	update(t, e, 0, detAt(0, 0))

	// similar appearance but far away, excluded and becomes a new track
	res := update(t, e, 1, detAt(500, 0.1))

	assert.Equal(t, []int{2}, res.TrackIDs)
	assert.Equal(t, []int{1}, res.Demoted)

	// inactive tracks are not subject to proximity
	res = update(t, e, 2, detAt(900, 0), detAt(500, 0.1))
	assert.Equal(t, []int{1, 2}, res.TrackIDs)
}

func TestEngineMotionGate(t *testing.T) {

	opts := testOptions()
	opts.Motion.Enabled = true
	opts.Motion.Fusion = GateFusion
	opts.Motion.MinIoU = 0.3

	e := newTestEngine(t, opts)
	update(t, e, 0, detAt(0, 0))
	update(t, e, 1)

	// the predicted box is still at x=0 so a detection far away is gated
	res := update(t, e, 2, detAt(200, 0))
	assert.Equal(t, []int{2}, res.Created)

	// while the inactive track 1 is recovered at its predicted position
	res = update(t, e, 3, detAt(1, 0), detAt(200, 0))
	assert.Equal(t, []int{1, 2}, res.TrackIDs)
	assert.Equal(t, []int{1}, res.Reactivated)
}

func TestEngineEmptyFrameAgesTracks(t *testing.T) {

	opts := testOptions()
	opts.Motion.Enabled = true

	e := newTestEngine(t, opts)
	update(t, e, 0, detAt(0, 0), detAt(100, 5))

	res := update(t, e, 1, detAt(0, 0.1), detAt(100, 5))
	require.Equal(t, []int{1, 2}, res.Matched)

	meanBefore, stdBefore, _, _ := e.Thresholds().Stats()

	res, err := e.Update(context.Background(), Frame{Index: 2})
	require.NoError(t, err)

	assert.Empty(t, res.TrackIDs)
	assert.Equal(t, []int{1, 2}, res.Demoted)
	assert.Equal(t, 0, res.NumActive)
	assert.Equal(t, 2, res.NumInactive)

	// no distances means no new statistics
	meanAfter, stdAfter, _, _ := e.Thresholds().Stats()
	assert.Equal(t, meanBefore, meanAfter)
	assert.Equal(t, stdBefore, stdAfter)

	for _, id := range []int{1, 2} {
		tr, ok := e.Manager().Track(id)
		require.True(t, ok)
		assert.Equal(t, Inactive, tr.State())
		assert.Equal(t, 1, tr.InactiveCount())
	}
}

func TestCheckDistances(t *testing.T) {

	assert.NoError(t, checkDistances(nil, 0, 3))
	assert.NoError(t, checkDistances(nil, 2, 0))
	assert.NoError(t, checkDistances(mat.NewDense(2, 3, nil), 2, 3))

	assert.True(t, errors.Is(checkDistances(nil, 2, 3), ErrShape))
	assert.True(t, errors.Is(checkDistances(mat.NewDense(2, 2, nil), 2, 3), ErrShape))
	assert.True(t, errors.Is(checkDistances(mat.NewDense(1, 1, nil), 0, 1), ErrShape))
}

func TestEngineCameraWarp(t *testing.T) {

	opts := testOptions()
	opts.Motion.Enabled = true
	opts.Motion.Fusion = GateFusion
	opts.Motion.MinIoU = 0.3
	opts.ActiveProximity = true
	opts.ProximityIoU = 0.5

	e := newTestEngine(t, opts)
	update(t, e, 0, detAt(0, 0))

	// the camera pans so the object appears 100 pixels to the right
	warp := Translation(100, 0)

	res, err := e.Update(context.Background(), Frame{
		Index:      1,
		Detections: []Detection{detAt(100, 0)},
		Warp:       &warp,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, res.Matched)
}

func TestEngineShapeErrors(t *testing.T) {

	e := newTestEngine(t, testOptions())
	update(t, e, 0, detAt(0, 0))

	// mixed feature lengths within a frame
	bad := detAt(0, 0)
	bad.Feature = []float32{1, 2}

	_, err := e.Update(context.Background(), Frame{Index: 1, Detections: []Detection{detAt(0, 0), bad}})
	assert.True(t, errors.Is(err, ErrShape))

	// feature length differs from the track history
	_, err = e.Update(context.Background(), Frame{Index: 1, Detections: []Detection{bad}})
	assert.True(t, errors.Is(err, ErrShape))

	// rejected frames leave the state untouched
	tr, ok := e.Manager().Track(1)
	require.True(t, ok)
	assert.Equal(t, Active, tr.State())
	assert.Len(t, tr.PastFeats(), 1)

	res := update(t, e, 1, detAt(0, 0))
	assert.Equal(t, []int{1}, res.Matched)
}

func TestEngineCancelled(t *testing.T) {

	e := newTestEngine(t, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Update(ctx, Frame{Index: 0, Detections: []Detection{detAt(0, 0)}})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, e.Manager().NumActive())
}

func TestEngineConfigErrors(t *testing.T) {

	cases := map[string]func(o *Options){
		"metric":    func(o *Options) { o.Metric = 0 },
		"proxy":     func(o *Options) { o.InactiveProxy.Mode = 9 },
		"reduction": func(o *Options) { o.ActiveProxy.Reduction = 0 },
		"threshold": func(o *Options) { o.Threshold.Active = 200 },
		"assign":    func(o *Options) { o.Assign = 0 },
		"history":   func(o *Options) { o.MaxHistory = -1 },
		"fusion": func(o *Options) {
			o.Motion.Enabled = true
			o.Motion.Weight = 2
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			opts := testOptions()
			mutate(&opts)

			_, err := NewEngine(opts)
			assert.True(t, errors.Is(err, ErrConfig), "got %v", err)
		})
	}
}

// TestEngineInvariants drives random frames and checks the per frame
// bookkeeping rules
func TestEngineInvariants(t *testing.T) {

	for _, mode := range []AssignMode{Joint, Separate} {

		opts := testOptions()
		opts.Assign = mode
		opts.InactiveHorizon = 4
		opts.OcclusionScale = true
		opts.Threshold.Mode = Running
		opts.Threshold.StdFactor = 0.5

		e := newTestEngine(t, opts)
		rng := rand.New(rand.NewSource(3))

		for frame := 0; frame < 60; frame++ {

			dets := make([]Detection, rng.Intn(6))

			for i := range dets {
				dets[i] = detAt(float32(rng.Intn(200)), float32(rng.Intn(8))+rng.Float32()*0.1)
			}

			res := update(t, e, frame, dets...)

			assert.Len(t, res.TrackIDs, len(dets))
			assert.Equal(t, len(dets)-len(res.Matched), len(res.Created))

			seen := map[int]bool{}

			for _, id := range res.TrackIDs {
				assert.NotZero(t, id)
				assert.False(t, seen[id], "track %d assigned twice", id)
				seen[id] = true
			}

			for _, tr := range e.Manager().Active() {
				assert.Equal(t, 0, tr.InactiveCount())
			}

			for _, tr := range e.Manager().Inactive() {
				assert.GreaterOrEqual(t, tr.InactiveCount(), 1)
				assert.LessOrEqual(t, tr.InactiveCount(), opts.InactiveHorizon)
				assert.False(t, e.Manager().IsActive(tr.ID()))
			}

			assert.LessOrEqual(t, res.ActiveThreshold, opts.Threshold.Ceiling)
			assert.GreaterOrEqual(t, res.ActiveThreshold, opts.Threshold.Floor)
		}
	}
}

type recordingObserver struct {
	frames []int
	cols   []int
}

func (r *recordingObserver) ObserveFrame(a *FrameAudit) {
	r.frames = append(r.frames, a.Frame)
	r.cols = append(r.cols, len(a.Candidates))
}

func TestEngineObserverAndFinish(t *testing.T) {

	obs := &recordingObserver{}

	e, err := NewEngine(testOptions(), WithObserver(obs))
	require.NoError(t, err)

	update(t, e, 0, detAt(0, 0), detAt(50, 3))
	update(t, e, 1, detAt(0, 0))

	assert.Equal(t, []int{0, 1}, obs.frames)
	assert.Equal(t, []int{0, 2}, obs.cols)

	tracks := e.Finish()
	require.Len(t, tracks, 2)
	assert.Equal(t, 1, tracks[0].ID())
	assert.Equal(t, Inactive, tracks[1].State())

	e.Reset()
	res := update(t, e, 0, detAt(0, 0))
	assert.Equal(t, []int{1}, res.Created)
}

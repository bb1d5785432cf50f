package tracker

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ProxyOptions configures the aggregation of one candidate set
type ProxyOptions struct {
	Mode      ProxyMode
	Reduction Reduction
	// Window is the number of newest features averaged by MeanFeature, 0
	// for the full history
	Window int
}

// MotionOptions configures the Kalman motion model and its fusion with
// appearance distances
type MotionOptions struct {
	Enabled bool
	Fusion  FusionMode
	// Weight of the motion term for ConvexFusion
	Weight float64
	// MinIoU is the predicted overlap below which GateFusion forbids a pair
	MinIoU float64
	// MaxAge limits fusion to tracks inactive for at most this many frames,
	// 0 for no limit
	MaxAge            int
	StdWeightPosition float64
	StdWeightVelocity float64
}

// Options configures an Engine
type Options struct {
	Metric DistanceMethod
	// Temperature scales similarities of the Learned metric
	Temperature   float64
	ActiveProxy   ProxyOptions
	InactiveProxy ProxyOptions
	Assign        AssignMode
	// CostLimit is passed to the solver, 0 for maximum cardinality
	CostLimit float64
	// GateFirst replaces distances above their threshold with NaN before
	// solving
	GateFirst bool
	Threshold ThresholdOptions
	// OcclusionScale computes the covered fraction of every detection and
	// loosens its thresholds accordingly
	OcclusionScale bool
	// ActiveProximity requires an active match to overlap the track's last
	// box by at least ProximityIoU
	ActiveProximity bool
	ProximityIoU    float64
	// InactiveHorizon is the inactive count beyond which tracks are pruned,
	// negative disables pruning
	InactiveHorizon int
	// MaxHistory caps the features kept per track, 0 for unbounded
	MaxHistory int
	Motion     MotionOptions
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Metric:      Cosine,
		Temperature: 1,
		ActiveProxy: ProxyOptions{
			Mode:      EachSample,
			Reduction: Nearest,
		},
		InactiveProxy: ProxyOptions{
			Mode:      EachSample,
			Reduction: Nearest,
		},
		Assign: Joint,
		Threshold: ThresholdOptions{
			Mode:      FixedThreshold,
			Active:    0.4,
			Inactive:  0.55,
			StdFactor: 1,
			Floor:     0,
			Ceiling:   2,
		},
		OcclusionScale:  true,
		ProximityIoU:    0.1,
		InactiveHorizon: 50,
		Motion: MotionOptions{
			Fusion:            ConvexFusion,
			Weight:            0.5,
			MinIoU:            0.2,
			StdWeightPosition: 1.0 / 20,
			StdWeightVelocity: 1.0 / 160,
		},
	}
}

// Frame is the engine input of one video frame
type Frame struct {
	Index      int
	Detections []Detection
	// Warp is the camera motion since the previous frame, nil when unknown
	Warp *Affine
}

// FrameResult describes the outcome of associating one frame
type FrameResult struct {
	Frame int
	// TrackIDs holds the track id given to each detection
	TrackIDs []int
	// Matched lists the ids of tracks matched to a detection, including
	// reactivated ones
	Matched     []int
	Reactivated []int
	Created     []int
	Demoted     []int
	Pruned      []int
	// track counts after the frame
	NumActive   int
	NumInactive int
	// thresholds in effect for this frame
	ActiveThreshold   float64
	InactiveThreshold float64
}

// FrameAudit exposes the intermediate state of one frame to an Observer
type FrameAudit struct {
	Frame      int
	Detections []Detection
	// Candidates holds the track id of every distance column
	Candidates []int
	NumActive  int
	// Distances after motion fusion and gating, nil without candidates
	Distances *mat.Dense
	Result    *FrameResult
}

// Observer receives every associated frame. It is called synchronously from
// Update and must not retain Distances beyond the call.
type Observer interface {
	ObserveFrame(a *FrameAudit)
}

// Option customises an Engine
type Option func(*Engine)

// WithLogger sets the logger used for per frame diagnostics
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithObserver registers an observer called after every frame
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

// Engine associates the detections of consecutive frames of one sequence
// with persistent track identities. An Engine is not safe for concurrent
// use, run one Engine per sequence.
type Engine struct {
	opts        Options
	manager     *Manager
	distances   *DistanceEngine
	activeAgg   Aggregator
	inactiveAgg Aggregator
	thresholds  *ThresholdAdapter
	assigner    Assigner
	// fusion is nil when the motion model is disabled
	fusion    *MotionFusion
	observers []Observer
	log       zerolog.Logger
}

// NewEngine validates opts and builds the strategies used on every frame
func NewEngine(opts Options, options ...Option) (*Engine, error) {

	metric, err := NewMetric(opts.Metric, opts.Temperature)
	if err != nil {
		return nil, err
	}

	activeAgg, err := NewAggregator(opts.ActiveProxy.Mode, opts.ActiveProxy.Reduction, opts.ActiveProxy.Window)
	if err != nil {
		return nil, fmt.Errorf("active proxy: %w", err)
	}

	inactiveAgg, err := NewAggregator(opts.InactiveProxy.Mode, opts.InactiveProxy.Reduction, opts.InactiveProxy.Window)
	if err != nil {
		return nil, fmt.Errorf("inactive proxy: %w", err)
	}

	thresholds, err := NewThresholdAdapter(opts.Threshold)
	if err != nil {
		return nil, err
	}

	assigner, err := NewAssigner(opts.Assign, opts.CostLimit)
	if err != nil {
		return nil, err
	}

	if opts.MaxHistory < 0 {
		return nil, fmt.Errorf("%w: max history must not be negative", ErrConfig)
	}

	if opts.ProximityIoU < 0 || opts.ProximityIoU > 1 {
		return nil, fmt.Errorf("%w: proximity iou %v outside [0, 1]", ErrConfig, opts.ProximityIoU)
	}

	var (
		kf     *KalmanFilter
		fusion *MotionFusion
	)

	if opts.Motion.Enabled {
		if opts.Motion.StdWeightPosition <= 0 || opts.Motion.StdWeightVelocity <= 0 {
			return nil, fmt.Errorf("%w: motion noise weights must be positive", ErrConfig)
		}

		fusion, err = NewMotionFusion(opts.Motion.Fusion, opts.Motion.Weight, opts.Motion.MinIoU, opts.Motion.MaxAge)
		if err != nil {
			return nil, err
		}

		kf = NewKalmanFilter(opts.Motion.StdWeightPosition, opts.Motion.StdWeightVelocity)
	}

	e := &Engine{
		opts:        opts,
		manager:     NewManager(opts.MaxHistory, kf),
		distances:   NewDistanceEngine(metric),
		activeAgg:   activeAgg,
		inactiveAgg: inactiveAgg,
		thresholds:  thresholds,
		assigner:    assigner,
		fusion:      fusion,
		log:         zerolog.Nop(),
	}

	for _, o := range options {
		o(e)
	}

	return e, nil
}

// Manager returns the track manager of the session
func (e *Engine) Manager() *Manager {
	return e.manager
}

// Thresholds returns the threshold adapter of the session
func (e *Engine) Thresholds() *ThresholdAdapter {
	return e.thresholds
}

// Update associates the detections of one frame with the current tracks.
// Shape errors reject the frame before any state changes, errors wrapping
// ErrInconsistent or ErrUnknownTrack are fatal for the session.
func (e *Engine) Update(ctx context.Context, frame Frame) (*FrameResult, error) {

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dets := slices.Clone(frame.Detections)

	for i := range dets {
		dets[i].Frame = frame.Index
	}

	dim, err := validateDetections(dets)
	if err != nil {
		return nil, err
	}

	active := e.manager.Active()
	inactive := e.manager.Candidates(e.opts.InactiveHorizon)

	var dist *mat.Dense

	if len(dets) > 0 {
		dist, err = e.computeDistances(dets, dim, active, inactive)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
		}
	}

	if err := checkDistances(dist, len(dets), len(active)+len(inactive)); err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
	}

	// from here on the frame commits to the track state
	e.manager.BeginFrame()
	e.manager.Predict(frame.Warp)

	if e.opts.OcclusionScale {
		ComputeIoA(dets)
	}

	for _, det := range dets {
		e.thresholds.CountVisibility(det.Visibility)
	}

	if len(dets) > 0 {
		if err := e.thresholds.Update(dist, len(active), len(inactive)); err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
		}
	}

	if e.fusion != nil {
		if err := e.fusion.Apply(dist, dets, inactive, len(active)); err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
		}
	}

	problem := e.problem(dist, dets, active, len(inactive))

	if e.opts.GateFirst {
		problem.Gate()
	}

	matches, err := e.assigner.Assign(problem)
	if err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
	}

	candidates := make([]int, 0, len(active)+len(inactive))

	for _, t := range active {
		candidates = append(candidates, t.id)
	}

	for _, t := range inactive {
		candidates = append(candidates, t.id)
	}

	res := &FrameResult{
		Frame:             frame.Index,
		TrackIDs:          make([]int, len(dets)),
		ActiveThreshold:   e.thresholds.Active(),
		InactiveThreshold: e.thresholds.Inactive(),
	}

	for _, m := range matches {

		id := candidates[m.Col]

		revived, err := e.manager.RecordMatch(id, &dets[m.Row])
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
		}

		res.TrackIDs[m.Row] = id
		res.Matched = append(res.Matched, id)

		if revived {
			res.Reactivated = append(res.Reactivated, id)
		}
	}

	res.Demoted = e.manager.DemoteUnmatched()
	e.manager.AgeInactive()

	for i := range dets {
		if res.TrackIDs[i] == 0 {
			id := e.manager.Create(&dets[i])
			res.TrackIDs[i] = id
			res.Created = append(res.Created, id)
		}
	}

	res.Pruned = e.manager.Prune(e.opts.InactiveHorizon)

	if err := e.manager.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("frame %d: %w", frame.Index, err)
	}

	res.NumActive = e.manager.NumActive()
	res.NumInactive = e.manager.NumInactive()

	e.log.Debug().
		Int("frame", frame.Index).
		Int("detections", len(dets)).
		Int("active", res.NumActive).
		Int("inactive", res.NumInactive).
		Int("matched", len(res.Matched)).
		Int("reactivated", len(res.Reactivated)).
		Int("created", len(res.Created)).
		Int("pruned", len(res.Pruned)).
		Float64("act_thresh", res.ActiveThreshold).
		Float64("inact_thresh", res.InactiveThreshold).
		Msg("Frame associated")

	if len(e.observers) > 0 {
		audit := &FrameAudit{
			Frame:      frame.Index,
			Detections: dets,
			Candidates: candidates,
			NumActive:  len(active),
			Distances:  problem.Dist,
			Result:     res,
		}

		for _, o := range e.observers {
			o.ObserveFrame(audit)
		}
	}

	return res, nil
}

// computeDistances returns the appearance distances of dets to the active
// tracks followed by the inactive candidates, nil when there are none. The
// two candidate sets are compared concurrently.
func (e *Engine) computeDistances(dets []Detection, dim int, active, inactive []*Track) (*mat.Dense, error) {

	if len(active)+len(inactive) == 0 {
		return nil, nil
	}

	feats := make([][]float32, len(dets))

	for i := range dets {
		feats[i] = dets[i].Feature
	}

	detMat := stackFeatures(feats, dim)

	var (
		g                  errgroup.Group
		actDist, inactDist *mat.Dense
	)

	g.Go(func() error {
		var err error
		actDist, err = e.distances.Compute(detMat, active, e.activeAgg)
		if err != nil {
			return fmt.Errorf("active distances: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		var err error
		inactDist, err = e.distances.Compute(detMat, inactive, e.inactiveAgg)
		if err != nil {
			return fmt.Errorf("inactive distances: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	switch {
	case actDist == nil:
		return inactDist, nil
	case inactDist == nil:
		return actDist, nil
	}

	var joined mat.Dense
	joined.Augment(actDist, inactDist)

	return &joined, nil
}

// checkDistances verifies the frame's distance matrix is detections x
// candidates, nil when either side is empty
func checkDistances(dist *mat.Dense, numDets, numCandidates int) error {

	if numDets == 0 || numCandidates == 0 {
		if dist != nil {
			return fmt.Errorf("%w: distances given for %d detections and %d candidates",
				ErrShape, numDets, numCandidates)
		}
		return nil
	}

	if dist == nil {
		return fmt.Errorf("%w: no distances for %d detections and %d candidates",
			ErrShape, numDets, numCandidates)
	}

	if rows, cols := dist.Dims(); rows != numDets || cols != numCandidates {
		return fmt.Errorf("%w: distance matrix is %dx%d, expected %dx%d",
			ErrShape, rows, cols, numDets, numCandidates)
	}

	return nil
}

// problem assembles the assignment input of a frame
func (e *Engine) problem(dist *mat.Dense, dets []Detection, active []*Track, numInactive int) *Problem {

	p := &Problem{
		Dist:              dist,
		NumActive:         len(active),
		NumInactive:       numInactive,
		ActiveThreshold:   e.thresholds.Active(),
		InactiveThreshold: e.thresholds.Inactive(),
	}

	if e.opts.OcclusionScale {
		p.Scale = make([]float64, len(dets))

		for i := range dets {
			p.Scale[i] = OcclusionScale(dets[i].IoA)
		}
	}

	if e.opts.ActiveProximity {
		minIoU := e.opts.ProximityIoU

		p.Proximity = func(r, c int) bool {
			return dets[r].Rect.IoU(active[c].rect) >= minIoU
		}
	}

	return p
}

// Finish ends the sequence and returns every live track for export. The
// thresholds are restored to their configured values while the tracks are
// kept until Reset.
func (e *Engine) Finish() []*Track {

	tracks := e.manager.All()
	e.thresholds.Reset()

	e.log.Info().
		Int("tracks", len(tracks)).
		Int("active", e.manager.NumActive()).
		Int("inactive", e.manager.NumInactive()).
		Msg("Sequence finished")

	return tracks
}

// Reset starts a new tracking session, dropping all tracks and restarting
// track ids at 1
func (e *Engine) Reset() {
	e.manager.Reset()
	e.thresholds.Reset()
}

package tracker

// TrackState represents the life-cycle state of a track
type TrackState int

const (
	// New is the state of a track before it joins the active set
	New TrackState = 0
	// Active tracks were matched in the most recent frame
	Active TrackState = 1
	// Inactive tracks missed at least one frame and may still be revived
	Inactive TrackState = 2
	// Pruned tracks exceeded the inactive horizon and are terminal
	Pruned TrackState = 3
)

// String returns the state name
func (s TrackState) String() string {
	switch s {
	case New:
		return "new"
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Pruned:
		return "pruned"
	}
	return "unknown"
}

// Track is a persistent identity spanning multiple frames
type Track struct {
	// id is unique within a tracking session and never reused
	id int
	// state in the track life-cycle
	state TrackState
	// pastFeats is the history of appearance features, oldest first
	pastFeats [][]float32
	// maxHistory caps pastFeats to the newest samples, 0 is unbounded
	maxHistory int
	// rect is the last matched bounding box
	rect Rect
	// frame is the index of the last matched frame
	frame int
	// startFrame is the index of the frame the track was created on
	startFrame int
	// inactiveCount is the number of frames since the last match
	inactiveCount int
	// hits counts matched detections including the first one
	hits int
	// gtID is the ground truth id of the last matched detection
	gtID int
	// visibility and ioa snapshot of the last matched detection
	visibility float64
	ioa        float64
	// kalman holds the motion state when the motion model is enabled
	kalman *KalmanState
}

// newTrack creates an active track seeded from a detection
func newTrack(id int, det *Detection, maxHistory int) *Track {

	t := &Track{
		id:         id,
		state:      Active,
		maxHistory: maxHistory,
		startFrame: det.Frame,
	}

	t.observe(det)

	return t
}

// ID returns the unique track id
func (t *Track) ID() int {
	return t.id
}

// State returns the current life-cycle state
func (t *Track) State() TrackState {
	return t.state
}

// Rect returns the last matched bounding box
func (t *Track) Rect() Rect {
	return t.rect
}

// Frame returns the index of the last matched frame
func (t *Track) Frame() int {
	return t.frame
}

// StartFrame returns the frame index the track was created on
func (t *Track) StartFrame() int {
	return t.startFrame
}

// InactiveCount returns the frames elapsed since the last match
func (t *Track) InactiveCount() int {
	return t.inactiveCount
}

// Hits returns the number of detections matched to the track
func (t *Track) Hits() int {
	return t.hits
}

// GTID returns the ground truth id of the last matched detection
func (t *Track) GTID() int {
	return t.gtID
}

// Visibility returns the visibility of the last matched detection
func (t *Track) Visibility() float64 {
	return t.visibility
}

// IoA returns the occlusion of the last matched detection
func (t *Track) IoA() float64 {
	return t.ioa
}

// PastFeats returns the feature history, oldest first. The slice must not
// be modified.
func (t *Track) PastFeats() [][]float32 {
	return t.pastFeats
}

// Feature returns the most recent feature
func (t *Track) Feature() []float32 {

	if len(t.pastFeats) == 0 {
		return nil
	}

	return t.pastFeats[len(t.pastFeats)-1]
}

// Kalman returns the motion state or nil when no motion model is used
func (t *Track) Kalman() *KalmanState {
	return t.kalman
}

// observe records a matched detection on the track
func (t *Track) observe(det *Detection) {

	feat := make([]float32, len(det.Feature))
	copy(feat, det.Feature)

	t.pastFeats = append(t.pastFeats, feat)

	if t.maxHistory > 0 && len(t.pastFeats) > t.maxHistory {
		t.pastFeats = t.pastFeats[len(t.pastFeats)-t.maxHistory:]
	}

	t.rect = det.Rect
	t.frame = det.Frame
	t.inactiveCount = 0
	t.hits++
	t.gtID = det.GTID
	t.visibility = det.Visibility
	t.ioa = det.IoA
}

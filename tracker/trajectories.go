package tracker

import (
	"sort"
	"sync"
)

// TrajectoryPoint is one observation of a track
type TrajectoryPoint struct {
	Frame int
	Rect  Rect
}

// Trajectories keeps the history of matched boxes per track id so result
// consumers can rebuild full trajectories
type Trajectories struct {
	// size is the maximum number of most recent points kept per track, 0
	// keeps everything
	size int
	// history of points per track id
	history map[int][]TrajectoryPoint
	sync.Mutex
}

// NewTrajectories returns a trajectory store keeping at most size points per
// track, 0 for unbounded
func NewTrajectories(size int) *Trajectories {
	return &Trajectories{
		size:    size,
		history: make(map[int][]TrajectoryPoint),
	}
}

// Reset clears all history
func (t *Trajectories) Reset() {
	t.Lock()
	defer t.Unlock()

	t.history = make(map[int][]TrajectoryPoint)
}

// Add records the box of track id on frame
func (t *Trajectories) Add(id, frame int, rect Rect) {
	t.Lock()
	defer t.Unlock()

	points := append(t.history[id], TrajectoryPoint{Frame: frame, Rect: rect})

	// drop the oldest point once the history is exceeded
	if t.size > 0 && len(points) > t.size {
		points = points[len(points)-t.size:]
	}

	t.history[id] = points
}

// AddResult records every assigned detection of a frame result
func (t *Trajectories) AddResult(res *FrameResult, dets []Detection) {
	for i, id := range res.TrackIDs {
		if id > 0 && i < len(dets) {
			t.Add(id, res.Frame, dets[i].Rect)
		}
	}
}

// Points returns a copy of the history of track id, oldest first
func (t *Trajectories) Points(id int) []TrajectoryPoint {
	t.Lock()
	defer t.Unlock()

	points, exists := t.history[id]

	if !exists {
		return nil
	}

	out := make([]TrajectoryPoint, len(points))
	copy(out, points)

	return out
}

// IDs returns the track ids with history in ascending order
func (t *Trajectories) IDs() []int {
	t.Lock()
	defer t.Unlock()

	ids := make([]int, 0, len(t.history))

	for id := range t.history {
		ids = append(ids, id)
	}

	sort.Ints(ids)

	return ids
}

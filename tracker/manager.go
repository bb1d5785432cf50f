package tracker

import (
	"fmt"
	"sort"
)

// Manager owns the active and inactive track sets of one tracking session.
// A track is a member of exactly one set; transitions move the pointer
// between maps. A Manager is not safe for concurrent use.
type Manager struct {
	active   map[int]*Track
	inactive map[int]*Track
	// touched holds active track ids matched during the current frame
	touched map[int]struct{}
	// nextID is the id given to the next created track
	nextID     int
	maxHistory int
	kf         *KalmanFilter
}

// NewManager creates a Manager. maxHistory caps each track's feature history
// (0 for unbounded) and kf enables per-track motion state when not nil.
func NewManager(maxHistory int, kf *KalmanFilter) *Manager {

	m := &Manager{
		maxHistory: maxHistory,
		kf:         kf,
	}

	m.Reset()

	return m
}

// Reset drops all tracks and restarts the id counter
func (m *Manager) Reset() {
	m.active = make(map[int]*Track)
	m.inactive = make(map[int]*Track)
	m.touched = make(map[int]struct{})
	m.nextID = 1
}

// BeginFrame clears the per-frame match bookkeeping
func (m *Manager) BeginFrame() {
	clear(m.touched)
}

// Create allocates the next id and inserts a new active track seeded with
// the detection
func (m *Manager) Create(det *Detection) int {

	id := m.nextID
	m.nextID++

	t := newTrack(id, det, m.maxHistory)

	if m.kf != nil {
		t.kalman = m.kf.Initiate(det.Rect.Xyah())
	}

	m.active[id] = t
	m.touched[id] = struct{}{}

	return id
}

// RecordMatch appends the detection to the matched track, resets its
// inactive count and moves it to the active set if it was inactive. It
// reports whether the track was revived from the inactive set.
func (m *Manager) RecordMatch(id int, det *Detection) (bool, error) {

	t, revived := m.active[id], false

	if t == nil {
		if t = m.inactive[id]; t == nil {
			return false, fmt.Errorf("%w: id %d", ErrUnknownTrack, id)
		}

		delete(m.inactive, id)
		m.active[id] = t
		revived = true
	}

	if _, dup := m.touched[id]; dup {
		return revived, fmt.Errorf("%w: track %d matched twice in one frame", ErrInconsistent, id)
	}

	t.observe(det)
	t.state = Active
	m.touched[id] = struct{}{}

	if m.kf != nil && t.kalman != nil {
		if err := m.kf.Update(t.kalman, det.Rect.Xyah()); err != nil {
			// restart the motion estimate from the new observation
			t.kalman = m.kf.Initiate(det.Rect.Xyah())
		}
	}

	return revived, nil
}

// DemoteUnmatched moves every active track not matched this frame into the
// inactive set and returns their ids in ascending order
func (m *Manager) DemoteUnmatched() []int {

	var demoted []int

	for id, t := range m.active {
		if _, ok := m.touched[id]; ok {
			continue
		}

		delete(m.active, id)
		t.state = Inactive
		t.inactiveCount = 0
		m.inactive[id] = t
		demoted = append(demoted, id)
	}

	sort.Ints(demoted)

	return demoted
}

// AgeInactive increments the inactive count of every inactive track
func (m *Manager) AgeInactive() {
	for _, t := range m.inactive {
		t.inactiveCount++
	}
}

// Prune removes inactive tracks whose inactive count exceeds horizon and
// returns their ids in ascending order. A negative horizon disables pruning.
func (m *Manager) Prune(horizon int) []int {

	if horizon < 0 {
		return nil
	}

	var pruned []int

	for id, t := range m.inactive {
		if t.inactiveCount > horizon {
			delete(m.inactive, id)
			t.state = Pruned
			pruned = append(pruned, id)
		}
	}

	sort.Ints(pruned)

	return pruned
}

// Predict moves every track's last box by the camera transform, when
// given, and propagates the motion state one frame ahead
func (m *Manager) Predict(warp *Affine) {

	for _, set := range []map[int]*Track{m.active, m.inactive} {
		for _, t := range set {

			if warp != nil {
				t.rect = warp.ApplyRect(t.rect)
			}

			if m.kf == nil || t.kalman == nil {
				continue
			}

			if warp != nil {
				t.kalman.Warp(*warp)
			}

			m.kf.Predict(t.kalman, t.state != Active)
		}
	}
}

// Track returns the track with the given id from either set
func (m *Manager) Track(id int) (*Track, bool) {

	if t, ok := m.active[id]; ok {
		return t, true
	}

	t, ok := m.inactive[id]

	return t, ok
}

// IsActive reports whether id is in the active set
func (m *Manager) IsActive(id int) bool {
	_, ok := m.active[id]
	return ok
}

// Active returns the active tracks sorted by id
func (m *Manager) Active() []*Track {
	return sortedTracks(m.active, -1)
}

// Inactive returns the inactive tracks sorted by id
func (m *Manager) Inactive() []*Track {
	return sortedTracks(m.inactive, -1)
}

// Candidates returns the inactive tracks whose inactive count is within
// horizon, sorted by id. A negative horizon returns all inactive tracks.
func (m *Manager) Candidates(horizon int) []*Track {
	return sortedTracks(m.inactive, horizon)
}

// All returns every live track, active and inactive, sorted by id
func (m *Manager) All() []*Track {

	all := make([]*Track, 0, len(m.active)+len(m.inactive))
	all = append(all, m.Active()...)
	all = append(all, m.Inactive()...)

	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })

	return all
}

// NumActive returns the size of the active set
func (m *Manager) NumActive() int {
	return len(m.active)
}

// NumInactive returns the size of the inactive set
func (m *Manager) NumInactive() int {
	return len(m.inactive)
}

// CheckInvariants verifies the set membership and inactive count rules
func (m *Manager) CheckInvariants() error {

	for id, t := range m.active {
		if _, dup := m.inactive[id]; dup {
			return fmt.Errorf("%w: track %d is both active and inactive", ErrInconsistent, id)
		}
		if t.inactiveCount != 0 || t.state != Active {
			return fmt.Errorf("%w: active track %d has inactive count %d, state %s",
				ErrInconsistent, id, t.inactiveCount, t.state)
		}
		if id >= m.nextID {
			return fmt.Errorf("%w: track id %d not yet allocated", ErrInconsistent, id)
		}
	}

	for id, t := range m.inactive {
		if t.inactiveCount < 1 || t.state != Inactive {
			return fmt.Errorf("%w: inactive track %d has inactive count %d, state %s",
				ErrInconsistent, id, t.inactiveCount, t.state)
		}
		if id >= m.nextID {
			return fmt.Errorf("%w: track id %d not yet allocated", ErrInconsistent, id)
		}
	}

	return nil
}

// sortedTracks returns the tracks of a set ordered by id, optionally
// filtered to an inactive count within horizon
func sortedTracks(set map[int]*Track, horizon int) []*Track {

	tracks := make([]*Track, 0, len(set))

	for _, t := range set {
		if horizon >= 0 && t.inactiveCount > horizon {
			continue
		}
		tracks = append(tracks, t)
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].id < tracks[j].id })

	return tracks
}

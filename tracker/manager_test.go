package tracker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerLifecycle(t *testing.T) {

	m := NewManager(0, nil)

	d1 := detAt(0, 1)
	d2 := detAt(50, 2)

	m.BeginFrame()
	assert.Equal(t, 1, m.Create(&d1))
	assert.Equal(t, 2, m.Create(&d2))
	require.NoError(t, m.CheckInvariants())

	// frame 1 only track 1 is matched
	m.BeginFrame()
	revived, err := m.RecordMatch(1, &d1)
	require.NoError(t, err)
	assert.False(t, revived)

	assert.Equal(t, []int{2}, m.DemoteUnmatched())
	m.AgeInactive()
	require.NoError(t, m.CheckInvariants())

	tr, ok := m.Track(2)
	require.True(t, ok)
	assert.Equal(t, 1, tr.InactiveCount())
	assert.Equal(t, Inactive, tr.State())

	// frame 2 track 2 comes back
	m.BeginFrame()
	revived, err = m.RecordMatch(2, &d2)
	require.NoError(t, err)
	assert.True(t, revived)

	assert.Equal(t, []int{1}, m.DemoteUnmatched())
	m.AgeInactive()
	require.NoError(t, m.CheckInvariants())

	assert.Equal(t, 0, tr.InactiveCount())
	assert.Equal(t, 2, tr.Hits())
	assert.Equal(t, 1, m.NumActive())
	assert.Equal(t, 1, m.NumInactive())
}

func TestManagerErrors(t *testing.T) {

	m := NewManager(0, nil)
	d := detAt(0, 1)

	m.BeginFrame()
	_, err := m.RecordMatch(7, &d)
	assert.True(t, errors.Is(err, ErrUnknownTrack))

	id := m.Create(&d)

	m.BeginFrame()
	_, err = m.RecordMatch(id, &d)
	require.NoError(t, err)

	_, err = m.RecordMatch(id, &d)
	assert.True(t, errors.Is(err, ErrInconsistent))
}

func TestManagerInvariantViolation(t *testing.T) {

	m := NewManager(0, nil)
	d := detAt(0, 1)
	id := m.Create(&d)

	// force the same track into both sets
	tr, _ := m.Track(id)
	m.inactive[id] = tr

	assert.True(t, errors.Is(m.CheckInvariants(), ErrInconsistent))
}

func TestManagerPrune(t *testing.T) {

	m := NewManager(0, nil)
	d := detAt(0, 1)
	m.Create(&d)
	m.Create(&d)

	m.BeginFrame()
	m.DemoteUnmatched()

	for i := 0; i < 3; i++ {
		m.AgeInactive()
	}

	assert.Empty(t, m.Prune(-1))
	assert.Len(t, m.Candidates(2), 0)
	assert.Len(t, m.Candidates(3), 2)
	assert.Equal(t, []int{1, 2}, m.Prune(2))
	assert.Equal(t, 0, m.NumInactive())

	// ids are never reused
	assert.Equal(t, 3, m.Create(&d))

	m.Reset()
	assert.Equal(t, 1, m.Create(&d))
}

func TestManagerHistoryCap(t *testing.T) {

	m := NewManager(2, nil)

	d := detAt(0, 1)
	id := m.Create(&d)

	for i := 0; i < 4; i++ {
		m.BeginFrame()
		next := detAt(0, float32(i+2))
		_, err := m.RecordMatch(id, &next)
		require.NoError(t, err)
	}

	tr, _ := m.Track(id)

	assert.Equal(t, [][]float32{{4}, {5}}, tr.PastFeats())
	assert.Equal(t, []float32{5}, tr.Feature())
}

func TestTrackCopiesFeature(t *testing.T) {

	m := NewManager(0, nil)

	d := detAt(0, 1)
	id := m.Create(&d)
	d.Feature[0] = 9

	tr, _ := m.Track(id)
	assert.Equal(t, []float32{1}, tr.Feature())
}

package audit

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/swdee/go-reidtrack/tracker"
)

func openStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func det(x, feat float32, gt int) tracker.Detection {
	d := tracker.NewDetection(tracker.NewRect(x, 0, 10, 10), []float32{feat}, 0)
	d.GTID = gt
	return d
}

func TestWriterRecordsFrames(t *testing.T) {

	ctx := context.Background()
	store := openStore(t)

	runID, err := store.BeginRun(ctx, "[tracker]\n")
	require.NoError(t, err)

	w := NewWriter(store, runID, 2, true, zerolog.Nop())

	opts := tracker.DefaultOptions()
	opts.Metric = tracker.Euclidean
	opts.OcclusionScale = false
	opts.Threshold.Inactive = 0.4
	opts.Threshold.Ceiling = 100

	engine, err := tracker.NewEngine(opts, tracker.WithObserver(w.ForSequence("seq")))
	require.NoError(t, err)

	frames := [][]tracker.Detection{
		{det(0, 0, 1), det(500, 10, 2)},
		{det(0, 0.1, 1)},
		{det(500, 10, 2)},
	}

	for i, dets := range frames {
		_, err := engine.Update(ctx, tracker.Frame{Index: i, Detections: dets})
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	assert.Equal(t, 3, w.Written())

	n, err := store.FrameCount(ctx, runID, "seq")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	events, err := store.TrackEvents(ctx, runID, "seq", 2)
	require.NoError(t, err)
	assert.Equal(t, []Event{
		{Frame: 0, TrackID: 2, Kind: EventCreated},
		{Frame: 1, TrackID: 2, Kind: EventDemoted},
		{Frame: 2, TrackID: 2, Kind: EventReactivated},
	}, events)

	dists, err := store.FrameDistances(ctx, runID, "seq", 1)
	require.NoError(t, err)
	require.Len(t, dists, 2)
	assert.Equal(t, 1, dists[0].TrackID)
	assert.InDelta(t, 0.1, dists[0].Value, 1e-6)
	assert.Equal(t, 2, dists[1].TrackID)
	assert.InDelta(t, 9.9, dists[1].Value, 1e-6)

	// the second column of frame 2 is the inactive track
	dists, err = store.FrameDistances(ctx, runID, "seq", 2)
	require.NoError(t, err)
	require.Len(t, dists, 2)
	assert.False(t, dists[0].Inactive)
	assert.True(t, dists[1].Inactive)

	embs, err := store.Embeddings(ctx, runID, "seq", 2)
	require.NoError(t, err)
	require.Len(t, embs, 2)
	assert.Equal(t, 0, embs[0].Frame)
	assert.Equal(t, 2, embs[1].Frame)
	assert.Equal(t, 2, embs[1].TrackID)
	assert.Equal(t, []float32{10}, embs[1].Feature)
}

func TestForbiddenDistanceIsNaN(t *testing.T) {

	ctx := context.Background()
	store := openStore(t)

	runID, err := store.BeginRun(ctx, "")
	require.NoError(t, err)

	rec := &FrameRecord{
		Sequence: "s",
		Frame:    4,
		Distances: []Distance{
			{Det: 0, TrackID: 1, Value: math.NaN()},
			{Det: 0, TrackID: 2, Value: 0.25},
		},
	}
	require.NoError(t, store.WriteFrame(ctx, runID, rec))

	// the same frame twice violates the primary key
	assert.Error(t, store.WriteFrame(ctx, runID, rec))

	dists, err := store.FrameDistances(ctx, runID, "s", 4)
	require.NoError(t, err)
	require.Len(t, dists, 2)
	assert.True(t, math.IsNaN(dists[0].Value))
	assert.Equal(t, 0.25, dists[1].Value)

	// frames of unknown runs are rejected by the foreign key
	assert.Error(t, store.WriteFrame(ctx, "missing", &FrameRecord{Sequence: "s"}))
}

func TestGroundTruthDiagnostics(t *testing.T) {

	ctx := context.Background()
	store := openStore(t)

	runID, err := store.BeginRun(ctx, "")
	require.NoError(t, err)

	w := NewWriter(store, runID, 4, false, zerolog.Nop())
	obs := w.ForSequence("seq")

	first := []tracker.Detection{det(0, 0, 1), det(100, 1, 2), det(200, 2, -1)}
	obs.ObserveFrame(&tracker.FrameAudit{
		Frame:      0,
		Detections: first,
		Result: &tracker.FrameResult{
			Frame:    0,
			TrackIDs: []int{1, 2, 3},
			Created:  []int{1, 2, 3},
		},
	})

	// gt 2 lands on track 1 and gt 1 starts a new track although track 1
	// carried it, the detection without ground truth is never judged
	second := []tracker.Detection{det(0, 1, 2), det(100, 0, 1), det(200, 2, -1)}
	second[0].Visibility = 0.35

	obs.ObserveFrame(&tracker.FrameAudit{
		Frame:      1,
		Detections: second,
		Candidates: []int{1, 2, 3},
		NumActive:  2,
		Distances: mat.NewDense(3, 3, []float64{
			0.2, 0.9, 0.9,
			0.1, math.NaN(), 0.9,
			0.9, 0.9, 0,
		}),
		Result: &tracker.FrameResult{
			Frame:    1,
			TrackIDs: []int{1, 4, 3},
			Matched:  []int{1, 3},
			Created:  []int{4},
			Demoted:  []int{2},
		},
	})

	require.NoError(t, w.Close())

	diags, err := store.Diagnostics(ctx, runID, "seq")
	require.NoError(t, err)
	require.Len(t, diags, 2)

	wrong := diags[0]
	assert.Equal(t, DiagWrongAssigned, wrong.Kind)
	assert.Equal(t, 1, wrong.TrackID)
	assert.Equal(t, 1, wrong.TrackGTID)
	assert.Equal(t, 2, wrong.DetGTID)
	assert.False(t, wrong.Inactive)
	assert.InDelta(t, 0.2, wrong.Distance, 1e-9)

	missed := diags[1]
	assert.Equal(t, DiagUnassigned, missed.Kind)
	assert.Equal(t, 1, missed.Det)
	assert.Equal(t, 1, missed.TrackID)
	assert.Equal(t, 1, missed.DetGTID)
	assert.InDelta(t, 0.1, missed.Distance, 1e-9)

	counts, err := store.DiagnosticCounts(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"wrong_assigned_act_vis_3": 1,
		"unassigned_act_vis_9":     1,
	}, counts)
}

func TestEmbeddingEncoding(t *testing.T) {

	feat := []float32{0, 1, -2.5, 0.333, 65504}

	got, err := decodeEmbedding(encodeEmbedding(feat))
	require.NoError(t, err)
	assert.InDeltaSlice(t, feat, got, 1e-3)
	assert.Len(t, encodeEmbedding(feat), 10)

	_, err = decodeEmbedding([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestLatestRun(t *testing.T) {

	ctx := context.Background()
	store := openStore(t)

	_, err := store.LatestRun(ctx)
	assert.Error(t, err)

	first, err := store.BeginRun(ctx, "")
	require.NoError(t, err)

	id, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, id)
}

func TestCloseIsIdempotent(t *testing.T) {

	var s *Store
	assert.NoError(t, s.Close())

	store := openStore(t)
	w := NewWriter(store, "run", 0, false, zerolog.Nop())
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

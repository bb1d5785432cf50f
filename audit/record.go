package audit

import (
	"slices"

	"github.com/swdee/go-reidtrack/tracker"
)

// Event kinds stored per track
const (
	EventCreated     = "created"
	EventMatched     = "matched"
	EventReactivated = "reactivated"
	EventDemoted     = "demoted"
	EventPruned      = "pruned"
)

// Distance is one entry of a frame's distance matrix
type Distance struct {
	Det     int
	TrackID int
	// Inactive is set for columns of inactive candidates
	Inactive bool
	// Value is NaN for forbidden pairs
	Value float64
}

// Event is a track lifecycle transition
type Event struct {
	Frame   int
	TrackID int
	Kind    string
}

// Embedding is the feature of one detection with its identities
type Embedding struct {
	Frame   int
	Det     int
	TrackID int
	GTID    int
	Feature []float32
}

// FrameRecord is a self contained copy of one associated frame
type FrameRecord struct {
	Sequence          string
	Frame             int
	Detections        int
	NumActive         int
	NumInactive       int
	ActiveThreshold   float64
	InactiveThreshold float64
	Distances         []Distance
	Events            []Event
	Embeddings        []Embedding
	Diagnostics       []Diagnostic
}

// NewFrameRecord copies everything needed from a frame audit so the record
// can outlive the observer call
func NewFrameRecord(sequence string, a *tracker.FrameAudit, embeddings bool) *FrameRecord {

	res := a.Result

	rec := &FrameRecord{
		Sequence:          sequence,
		Frame:             a.Frame,
		Detections:        len(a.Detections),
		NumActive:         res.NumActive,
		NumInactive:       res.NumInactive,
		ActiveThreshold:   res.ActiveThreshold,
		InactiveThreshold: res.InactiveThreshold,
	}

	if a.Distances != nil {
		rows, cols := a.Distances.Dims()
		rec.Distances = make([]Distance, 0, rows*cols)

		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				rec.Distances = append(rec.Distances, Distance{
					Det:      r,
					TrackID:  a.Candidates[c],
					Inactive: c >= a.NumActive,
					Value:    a.Distances.At(r, c),
				})
			}
		}
	}

	// matched ids also appear as reactivated when they came back
	reactivated := make(map[int]bool, len(res.Reactivated))
	for _, id := range res.Reactivated {
		reactivated[id] = true
	}

	add := func(kind string, ids []int) {
		for _, id := range ids {
			rec.Events = append(rec.Events, Event{Frame: a.Frame, TrackID: id, Kind: kind})
		}
	}

	for _, id := range res.Matched {
		if reactivated[id] {
			add(EventReactivated, []int{id})
		} else {
			add(EventMatched, []int{id})
		}
	}

	add(EventDemoted, res.Demoted)
	add(EventCreated, res.Created)
	add(EventPruned, res.Pruned)

	if embeddings {
		rec.Embeddings = make([]Embedding, len(a.Detections))

		for i, det := range a.Detections {
			rec.Embeddings[i] = Embedding{
				Frame:   a.Frame,
				Det:     i,
				TrackID: res.TrackIDs[i],
				GTID:    det.GTID,
				Feature: slices.Clone(det.Feature),
			}
		}
	}

	return rec
}

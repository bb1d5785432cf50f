package audit

import (
	"math"

	"github.com/swdee/go-reidtrack/tracker"
)

// Diagnostic kinds recorded for detections with a known ground truth id
const (
	// DiagWrongAssigned marks a detection matched to a track last seen with
	// a different ground truth id
	DiagWrongAssigned = "wrong_assigned"
	// DiagUnassigned marks a detection that started a new track although a
	// candidate track carried its ground truth id
	DiagUnassigned = "unassigned"
)

// Diagnostic is an association error judged against ground truth ids
type Diagnostic struct {
	Frame   int
	Det     int
	TrackID int
	Kind    string
	// Inactive is set when the track was an inactive candidate
	Inactive bool
	// Distance is the gated distance of the pair, NaN when forbidden
	Distance   float64
	TrackGTID  int
	DetGTID    int
	IoA        float64
	Visibility float64
}

// groundTruth remembers the ground truth id each track was last matched
// with. It is owned by a single sequence observer.
type groundTruth struct {
	last map[int]int
}

func newGroundTruth() *groundTruth {
	return &groundTruth{last: make(map[int]int)}
}

// diagnose judges the associations of a frame and then records the ground
// truth ids the tracks now carry
func (g *groundTruth) diagnose(a *tracker.FrameAudit) []Diagnostic {

	res := a.Result

	column := make(map[int]int, len(a.Candidates))
	for c, id := range a.Candidates {
		column[id] = c
	}

	created := make(map[int]bool, len(res.Created))
	for _, id := range res.Created {
		created[id] = true
	}

	distance := func(r, c int) float64 {
		if a.Distances == nil {
			return math.NaN()
		}
		return a.Distances.At(r, c)
	}

	var out []Diagnostic

	for i, det := range a.Detections {

		if det.GTID < 0 {
			continue
		}

		id := res.TrackIDs[i]

		diag := Diagnostic{
			Frame:      a.Frame,
			Det:        i,
			DetGTID:    det.GTID,
			IoA:        det.IoA,
			Visibility: det.Visibility,
		}

		if !created[id] {
			gt, seen := g.last[id]
			if !seen || gt == det.GTID {
				continue
			}

			c := column[id]
			diag.TrackID = id
			diag.Kind = DiagWrongAssigned
			diag.Inactive = c >= a.NumActive
			diag.Distance = distance(i, c)
			diag.TrackGTID = gt
			out = append(out, diag)

			continue
		}

		for c, cand := range a.Candidates {
			if gt, seen := g.last[cand]; !seen || gt != det.GTID {
				continue
			}

			diag.TrackID = cand
			diag.Kind = DiagUnassigned
			diag.Inactive = c >= a.NumActive
			diag.Distance = distance(i, c)
			diag.TrackGTID = det.GTID
			out = append(out, diag)

			break
		}
	}

	for i, det := range a.Detections {
		g.last[res.TrackIDs[i]] = det.GTID
	}

	for _, id := range res.Pruned {
		delete(g.last, id)
	}

	return out
}

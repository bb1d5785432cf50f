package tracker

import (
	"math"

	clipper "github.com/ctessum/go.clipper"
)

// occlusionGrid is the number of integer clipper units per pixel
const occlusionGrid = 16

// OcclusionScale returns the factor applied to acceptance thresholds of a
// detection whose box is covered by ioa
func OcclusionScale(ioa float64) float64 {
	return math.Max(0.4, math.Pow(1-ioa, 0.1))
}

// ComputeIoA sets IoA on every detection to the fraction of its box covered
// by the union of all other boxes in the frame
func ComputeIoA(dets []Detection) {

	for i := range dets {

		subject := boxPath(dets[i].Rect)
		own := pathArea(subject)

		if own <= 0 {
			dets[i].IoA = 0
			continue
		}

		c := clipper.NewClipper(0)
		c.AddPath(subject, clipper.PtSubject, true)

		overlaps := 0

		for j := range dets {
			if j == i || dets[i].Rect.Intersection(dets[j].Rect) <= 0 {
				continue
			}

			c.AddPath(boxPath(dets[j].Rect), clipper.PtClip, true)
			overlaps++
		}

		if overlaps == 0 {
			dets[i].IoA = 0
			continue
		}

		solution, ok := c.Execute1(clipper.CtIntersection, clipper.PftNonZero, clipper.PftNonZero)
		if !ok {
			dets[i].IoA = 0
			continue
		}

		var covered float64

		for _, p := range solution {
			covered += pathArea(p)
		}

		dets[i].IoA = math.Min(1, math.Abs(covered)/own)
	}
}

// boxPath converts a rectangle into a closed clipper polygon
func boxPath(r Rect) clipper.Path {

	x1 := clipper.CInt(math.Round(float64(r.X()) * occlusionGrid))
	y1 := clipper.CInt(math.Round(float64(r.Y()) * occlusionGrid))
	x2 := clipper.CInt(math.Round(float64(r.BRX()) * occlusionGrid))
	y2 := clipper.CInt(math.Round(float64(r.BRY()) * occlusionGrid))

	return clipper.Path{
		&clipper.IntPoint{X: x1, Y: y1},
		&clipper.IntPoint{X: x2, Y: y1},
		&clipper.IntPoint{X: x2, Y: y2},
		&clipper.IntPoint{X: x1, Y: y2},
	}
}

// pathArea returns the signed shoelace area of a polygon, holes come out
// negative so summing a solution yields the covered area
func pathArea(p clipper.Path) float64 {

	if len(p) < 3 {
		return 0
	}

	var a float64

	for i, pt := range p {
		next := p[(i+1)%len(p)]
		a += float64(pt.X)*float64(next.Y) - float64(next.X)*float64(pt.Y)
	}

	return a / 2
}

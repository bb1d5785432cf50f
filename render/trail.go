package render

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/swdee/go-reidtrack/tracker"
)

// TrailStyle defines the parameters used for rendering the trail style
type TrailStyle struct {
	// LineSame draws the trail in the track color instead of LineColor
	LineSame      bool
	LineColor     color.RGBA
	LineThickness int
	// CircleSame draws the midpoint circle in the track color instead of
	// CircleColor
	CircleSame   bool
	CircleColor  color.RGBA
	CircleRadius int
}

// DefaultTrailStyle returns default trail style settings
func DefaultTrailStyle() TrailStyle {
	return TrailStyle{
		LineSame:      false,
		LineColor:     Yellow,
		LineThickness: 1,
		CircleSame:    true,
		CircleColor:   Pink,
		CircleRadius:  3,
	}
}

// Trail draws the recent path of the given tracks, joining the bottom
// centre of their boxes frame by frame
func Trail(img *gocv.Mat, ids []int, traj *tracker.Trajectories, style TrailStyle) {

	for _, id := range ids {

		objClr := TrackColor(id)

		lineClr := objClr
		circleClr := objClr

		if !style.LineSame {
			lineClr = style.LineColor
		}

		if !style.CircleSame {
			circleClr = style.CircleColor
		}

		points := traj.Points(id)

		if len(points) < 2 {
			continue
		}

		for i := 1; i < len(points); i++ {
			gocv.Line(img, footPoint(points[i-1].Rect), footPoint(points[i].Rect),
				lineClr, style.LineThickness)
		}

		// mark the current position
		gocv.Circle(img, footPoint(points[len(points)-1].Rect),
			style.CircleRadius, circleClr, -1)
	}
}

// footPoint returns the bottom centre of a box, where a person touches the
// ground
func footPoint(r tracker.Rect) image.Point {
	return image.Pt(int(r.X()+r.Width()/2), int(r.BRY()))
}

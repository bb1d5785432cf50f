package render

import (
	"image/color"

	"gocv.io/x/gocv"
)

// Alignment of a box label relative to its box
type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	Alignment Alignment
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// Style bundles everything drawn on an annotated frame
type Style struct {
	Font          Font
	LineThickness int
	// Trail draws track paths when set
	Trail *TrailStyle
	// TrailLength is the number of past positions kept per track
	TrailLength int
}

// DefaultStyle draws boxes, labels and a trail of the last 30 positions
func DefaultStyle() Style {
	trail := DefaultTrailStyle()

	return Style{
		Font:          DefaultFont(),
		LineThickness: 2,
		Trail:         &trail,
		TrailLength:   30,
	}
}

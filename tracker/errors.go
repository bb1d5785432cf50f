package tracker

import "errors"

var (
	// ErrShape is returned when a frame's inputs have inconsistent
	// dimensions. The frame is rejected and no track state is changed.
	ErrShape = errors.New("shape mismatch")

	// ErrConfig is returned for invalid options before any frame runs
	ErrConfig = errors.New("invalid configuration")

	// ErrUnknownTrack is returned when a match names a track id that is
	// in neither the active nor the inactive set
	ErrUnknownTrack = errors.New("unknown track")

	// ErrInconsistent marks a broken internal invariant, such as a track
	// present in both sets. It is fatal for the sequence.
	ErrInconsistent = errors.New("track state inconsistent")
)

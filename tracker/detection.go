package tracker

import "fmt"

// Detection represents one observed object instance in a single frame
type Detection struct {
	// Rect is the bounding box of the detected object
	Rect Rect
	// Feature is the appearance embedding produced by the external encoder
	Feature []float32
	// Frame is the index of the frame the detection belongs to
	Frame int
	// GTID is the ground truth identity for evaluation, -1 when unknown
	GTID int
	// Visibility is the visible fraction of the object in [0,1]
	Visibility float64
	// AreaOut is the fraction of the box lying outside the image
	AreaOut float64
	// IoA is the fraction of the box covered by other detections in the
	// same frame
	IoA float64
}

// NewDetection is a constructor function for the Detection struct
func NewDetection(rect Rect, feature []float32, frame int) Detection {
	return Detection{
		Rect:       rect,
		Feature:    feature,
		Frame:      frame,
		GTID:       -1,
		Visibility: 1,
	}
}

// validateDetections checks that every detection carries a feature vector
// of the same length and returns that length
func validateDetections(dets []Detection) (int, error) {

	if len(dets) == 0 {
		return 0, nil
	}

	dim := len(dets[0].Feature)

	if dim == 0 {
		return 0, fmt.Errorf("%w: detection 0 has an empty feature vector", ErrShape)
	}

	for i, det := range dets {
		if len(det.Feature) != dim {
			return 0, fmt.Errorf("%w: detection %d has feature length %d, expected %d",
				ErrShape, i, len(det.Feature), dim)
		}
	}

	return dim, nil
}

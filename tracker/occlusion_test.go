package tracker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func boxDet(x, y, w, h float32) Detection {
	return NewDetection(NewRect(x, y, w, h), []float32{1}, 0)
}

func TestComputeIoA(t *testing.T) {

	dets := []Detection{
		boxDet(0, 0, 10, 10),
		boxDet(5, 0, 10, 10),
		boxDet(100, 100, 10, 10),
	}

	ComputeIoA(dets)

	assert.InDelta(t, 0.5, dets[0].IoA, 1e-6)
	assert.InDelta(t, 0.5, dets[1].IoA, 1e-6)
	assert.Equal(t, 0.0, dets[2].IoA)
}

func TestComputeIoAUnion(t *testing.T) {

	// two halves cover the first box completely without being counted twice
	dets := []Detection{
		boxDet(0, 0, 10, 10),
		boxDet(0, 0, 5, 10),
		boxDet(5, 0, 5, 10),
		boxDet(2, 0, 6, 10),
	}

	ComputeIoA(dets)

	assert.InDelta(t, 1.0, dets[0].IoA, 1e-6)
	assert.InDelta(t, 1.0, dets[1].IoA, 1e-6)
	assert.InDelta(t, 1.0, dets[3].IoA, 1e-6)
}

func TestOcclusionScale(t *testing.T) {

	assert.Equal(t, 1.0, OcclusionScale(0))
	assert.Equal(t, 0.4, OcclusionScale(1))
	assert.InDelta(t, math.Pow(0.5, 0.1), OcclusionScale(0.5), 1e-12)
	// (1-0.9999999)^(1/10) is about 0.2 so the floor applies
	assert.Equal(t, 0.4, OcclusionScale(0.9999999))
}

func TestMotionFusionConvex(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	tr := trackWith(1, []float32{1})
	tr.kalman = kf.Initiate(NewRect(0, 0, 10, 10).Xyah())
	tr.inactiveCount = 1

	noMotion := trackWith(2, []float32{1})

	f, err := NewMotionFusion(ConvexFusion, 0.5, 0, 0)
	assert.NoError(t, err)

	dist := mat.NewDense(2, 3, []float64{
		9, 0.2, 0.2,
		9, 0.4, math.NaN(),
	})

	dets := []Detection{boxDet(0, 0, 10, 10), boxDet(5, 0, 10, 10)}

	err = f.Apply(dist, dets, []*Track{tr, noMotion}, 1)
	assert.NoError(t, err)

	// active column untouched
	assert.Equal(t, 9.0, dist.At(0, 0))
	// iou 1 and 1/3
	assert.InDelta(t, 0.1, dist.At(0, 1), 1e-6)
	assert.InDelta(t, 0.5*0.4+0.5*(1-1.0/3), dist.At(1, 1), 1e-6)
	// no motion estimate keeps appearance, NaN stays NaN
	assert.Equal(t, 0.2, dist.At(0, 2))
	assert.True(t, math.IsNaN(dist.At(1, 2)))
}

func TestMotionFusionMaxAge(t *testing.T) {

	kf := NewKalmanFilter(1.0/20, 1.0/160)

	tr := trackWith(1, []float32{1})
	tr.kalman = kf.Initiate(NewRect(0, 0, 10, 10).Xyah())
	tr.inactiveCount = 5

	f, err := NewMotionFusion(GateFusion, 0, 0.5, 4)
	assert.NoError(t, err)

	_, ok := f.Predicted(tr)
	assert.False(t, ok)

	tr.inactiveCount = 4

	dist := mat.NewDense(1, 1, []float64{0.1})
	assert.NoError(t, f.Apply(dist, []Detection{boxDet(50, 50, 10, 10)}, []*Track{tr}, 0))
	assert.True(t, math.IsNaN(dist.At(0, 0)))
}

func TestRectConversions(t *testing.T) {

	r := NewRect(10, 20, 30, 60)

	assert.Equal(t, Tlbr{10, 20, 40, 80}, r.Tlbr())
	assert.Equal(t, Xyah{25, 50, 0.5, 60}, r.Xyah())
	assert.Equal(t, r, RectFromXyah(r.Xyah()))
	assert.Equal(t, r, RectFromTlbr(r.Tlbr()))
	assert.Equal(t, 2.0, r.AspectRatio())

	assert.InDelta(t, 1.0, r.IoU(r), 1e-9)
	assert.Equal(t, 0.0, r.IoU(NewRect(100, 100, 5, 5)))
	assert.InDelta(t, 1.0/3, NewRect(0, 0, 10, 10).IoU(NewRect(5, 0, 10, 10)), 1e-9)

	assert.False(t, NewRect(0, 0, 0, 10).Valid())
	assert.Equal(t, NewRect(15, 10, 30, 60), Translation(5, -10).ApplyRect(r))
}

func TestTrajectories(t *testing.T) {

	tr := NewTrajectories(2)

	dets := []Detection{boxDet(0, 0, 1, 1), boxDet(5, 5, 1, 1)}

	tr.AddResult(&FrameResult{Frame: 0, TrackIDs: []int{1, 2}}, dets)
	tr.AddResult(&FrameResult{Frame: 1, TrackIDs: []int{2, 1}}, dets)
	tr.AddResult(&FrameResult{Frame: 2, TrackIDs: []int{1, 0}}, dets)

	assert.Equal(t, []int{1, 2}, tr.IDs())

	points := tr.Points(1)
	assert.Len(t, points, 2)
	assert.Equal(t, 1, points[0].Frame)
	assert.Equal(t, dets[1].Rect, points[0].Rect)
	assert.Equal(t, 2, points[1].Frame)

	assert.Nil(t, tr.Points(9))

	tr.Reset()
	assert.Empty(t, tr.IDs())
}

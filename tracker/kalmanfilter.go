package tracker

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// KalmanState holds the 8 dimensional state (x, y, a, h, vx, vy, va, vh) of
// a track and its covariance
type KalmanState struct {
	Mean [8]float64
	Cov  *mat.Dense
}

// Rect returns the bounding box described by the state mean
func (s *KalmanState) Rect() Rect {
	return RectFromXyah(Xyah{
		float32(s.Mean[0]), float32(s.Mean[1]), float32(s.Mean[2]), float32(s.Mean[3]),
	})
}

// Warp applies a camera motion transform to the state position and velocity
func (s *KalmanState) Warp(a Affine) {

	x, y := a.Apply(s.Mean[0], s.Mean[1])
	vx, vy := a.ApplyLinear(s.Mean[4], s.Mean[5])

	s.Mean[0], s.Mean[1] = x, y
	s.Mean[4], s.Mean[5] = vx, vy
}

// KalmanFilter is a constant velocity filter in Xyah measurement space
type KalmanFilter struct {
	stdWeightPosition float64
	stdWeightVelocity float64
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter initializes and returns a new KalmanFilter
func NewKalmanFilter(stdWeightPosition, stdWeightVelocity float64) *KalmanFilter {

	ndim := 4

	// constant velocity transition with dt = 1 frame
	motionMat := mat.NewDense(8, 8, nil)

	for i := 0; i < 8; i++ {
		motionMat.Set(i, i, 1)
	}

	for i := 0; i < ndim; i++ {
		motionMat.Set(i, ndim+i, 1)
	}

	// measurement observes the first four state components
	updateMat := mat.NewDense(4, 8, nil)

	for i := 0; i < ndim; i++ {
		updateMat.Set(i, i, 1)
	}

	return &KalmanFilter{
		stdWeightPosition: stdWeightPosition,
		stdWeightVelocity: stdWeightVelocity,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

// Initiate creates a state from an unassociated measurement
func (kf *KalmanFilter) Initiate(measurement Xyah) *KalmanState {

	s := &KalmanState{Cov: mat.NewDense(8, 8, nil)}

	for i := 0; i < 4; i++ {
		s.Mean[i] = float64(measurement[i])
	}

	h := float64(measurement[3])

	std := [8]float64{
		2 * kf.stdWeightPosition * h,
		2 * kf.stdWeightPosition * h,
		1e-2,
		2 * kf.stdWeightPosition * h,
		10 * kf.stdWeightVelocity * h,
		10 * kf.stdWeightVelocity * h,
		1e-5,
		10 * kf.stdWeightVelocity * h,
	}

	for i, v := range std {
		s.Cov.Set(i, i, v*v)
	}

	return s
}

// Predict propagates the state one frame ahead. When freezeHeight is set the
// height velocity is zeroed first, as done for tracks that are not matched.
func (kf *KalmanFilter) Predict(s *KalmanState, freezeHeight bool) {

	if freezeHeight {
		s.Mean[7] = 0
	}

	h := s.Mean[3]

	std := [8]float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-2,
		kf.stdWeightPosition * h,
		kf.stdWeightVelocity * h,
		kf.stdWeightVelocity * h,
		1e-5,
		kf.stdWeightVelocity * h,
	}

	motionCov := mat.NewDense(8, 8, nil)

	for i, v := range std {
		motionCov.Set(i, i, v*v)
	}

	meanVec := mat.NewVecDense(8, nil)
	meanVec.MulVec(kf.motionMat, mat.NewVecDense(8, s.Mean[:]))

	for i := 0; i < 8; i++ {
		s.Mean[i] = meanVec.AtVec(i)
	}

	// P = F P F^T + Q
	var fp, cov mat.Dense
	fp.Mul(kf.motionMat, s.Cov)
	cov.Mul(&fp, kf.motionMat.T())
	cov.Add(&cov, motionCov)

	s.Cov = &cov
}

// Update corrects the state with an associated measurement
func (kf *KalmanFilter) Update(s *KalmanState, measurement Xyah) error {

	projectedMean, projectedCov := kf.project(s)

	var chol mat.Cholesky

	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("failed to factorize projected covariance")
	}

	// B = P H^T
	var b mat.Dense
	b.Mul(s.Cov, kf.updateMat.T())

	// solve S K = (P H^T)^T for the transposed gain
	var gain mat.Dense

	if err := chol.SolveTo(&gain, b.T()); err != nil {
		return fmt.Errorf("failed to compute kalman gain: %w", err)
	}

	innovation := mat.NewVecDense(4, nil)

	for i := 0; i < 4; i++ {
		innovation.SetVec(i, float64(measurement[i])-projectedMean[i])
	}

	var delta mat.VecDense
	delta.MulVec(gain.T(), innovation)

	for i := 0; i < 8; i++ {
		s.Mean[i] += delta.AtVec(i)
	}

	// P = P - K S K^T
	var ks, kSk mat.Dense
	ks.Mul(gain.T(), projectedCov)
	kSk.Mul(&ks, &gain)

	var cov mat.Dense
	cov.Sub(s.Cov, &kSk)

	s.Cov = &cov

	return nil
}

// project projects the state mean and covariance to measurement space
func (kf *KalmanFilter) project(s *KalmanState) ([4]float64, *mat.SymDense) {

	h := s.Mean[3]

	std := [4]float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-1,
		kf.stdWeightPosition * h,
	}

	var projectedMean [4]float64
	copy(projectedMean[:], s.Mean[:4])

	var hp, hph mat.Dense
	hp.Mul(kf.updateMat, s.Cov)
	hph.Mul(&hp, kf.updateMat.T())

	projectedCov := mat.NewSymDense(4, nil)

	for i := 0; i < 4; i++ {
		for j := i; j < 4; j++ {
			// symmetrize to guard against drift in the stored covariance
			projectedCov.SetSym(i, j, (hph.At(i, j)+hph.At(j, i))/2)
		}
		projectedCov.SetSym(i, i, projectedCov.At(i, i)+std[i]*std[i])
	}

	return projectedMean, projectedCov
}

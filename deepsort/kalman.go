package deepsort

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	stateDim       = 8
	measurementDim = 4
)

// chi2Inv95 holds the 0.95 quantile of the chi-square distribution for
// 1..9 degrees of freedom. Index with dof-1.
var chi2Inv95 = [9]float64{3.8415, 5.9915, 7.8147, 9.4877, 11.070, 12.592, 14.067, 15.507, 16.919}

const (
	// GatingThreshold is the chi-square gate for the full 4-dimensional
	// measurement space (0.95 quantile, 4 dof)
	GatingThreshold = 9.4877
	// GatingThresholdPosition is the gate when only the center position
	// is compared (0.95 quantile, 2 dof)
	GatingThresholdPosition = 5.9915
)

// KalmanFilter is a constant-velocity filter over the measurement space
// (cx, cy, aspect, height) with an 8-dimensional state that extends the
// measurement with per-component velocities. The filter itself is
// stateless: mean and covariance live on the track and are passed in.
type KalmanFilter struct {
	stdWeightPosition float64
	stdWeightVelocity float64
	motionMat         *mat.Dense
	updateMat         *mat.Dense
}

// NewKalmanFilter creates a filter with the standard noise weights
// (position 1/20, velocity 1/10) and a one-frame time step.
func NewKalmanFilter() *KalmanFilter {
	motionMat := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		motionMat.Set(i, i, 1.0)
	}
	for i := 0; i < measurementDim; i++ {
		motionMat.Set(i, measurementDim+i, 1.0)
	}

	updateMat := mat.NewDense(measurementDim, stateDim, nil)
	for i := 0; i < measurementDim; i++ {
		updateMat.Set(i, i, 1.0)
	}

	return &KalmanFilter{
		stdWeightPosition: 1.0 / 20.0,
		stdWeightVelocity: 1.0 / 10.0,
		motionMat:         motionMat,
		updateMat:         updateMat,
	}
}

func measurementVec(m MeasurementXYAH) *mat.VecDense {
	return mat.NewVecDense(measurementDim, []float64{m.CenterX, m.CenterY, m.AspectRatio, m.Height})
}

// Initiate creates the state mean and covariance for an unassociated
// measurement. Velocities start at zero with a wide variance.
func (kf *KalmanFilter) Initiate(m MeasurementXYAH) (*mat.VecDense, *mat.Dense) {
	mean := mat.NewVecDense(stateDim, []float64{
		m.CenterX, m.CenterY, m.AspectRatio, m.Height,
		0.0, 0.0, 0.0, 0.0,
	})

	std := [stateDim]float64{
		2.0 * kf.stdWeightPosition * m.Height,
		2.0 * kf.stdWeightPosition * m.Height,
		1e-1,
		2.0 * kf.stdWeightPosition * m.Height,
		2.0 * kf.stdWeightVelocity * m.Height,
		2.0 * kf.stdWeightVelocity * m.Height,
		5e-1,
		10.0 * kf.stdWeightVelocity * m.Height,
	}
	covariance := mat.NewDense(stateDim, stateDim, nil)
	for i, v := range std {
		covariance.Set(i, i, v*v)
	}
	return mean, covariance
}

// Predict advances mean and covariance by one time step in place.
// Process noise scales with the current estimated height.
func (kf *KalmanFilter) Predict(mean *mat.VecDense, covariance *mat.Dense) {
	h := mean.AtVec(3)
	std := [stateDim]float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		1e-1,
		kf.stdWeightPosition * h,
		kf.stdWeightVelocity * h,
		kf.stdWeightVelocity * h,
		5e-1,
		kf.stdWeightVelocity * h,
	}

	var nextMean mat.VecDense
	nextMean.MulVec(kf.motionMat, mean)
	mean.CopyVec(&nextMean)

	var fc, fcf mat.Dense
	fc.Mul(kf.motionMat, covariance)
	fcf.Mul(&fc, kf.motionMat.T())
	for i, v := range std {
		fcf.Set(i, i, fcf.At(i, i)+v*v)
	}
	covariance.Copy(&fcf)
}

// Project maps the state estimate into measurement space, adding the
// height-scaled measurement noise.
func (kf *KalmanFilter) Project(mean *mat.VecDense, covariance *mat.Dense) (*mat.VecDense, *mat.SymDense) {
	h := mean.AtVec(3)
	std := [measurementDim]float64{
		kf.stdWeightPosition * h,
		kf.stdWeightPosition * h,
		5e-1,
		kf.stdWeightPosition * h,
	}

	projectedMean := mat.NewVecDense(measurementDim, nil)
	projectedMean.MulVec(kf.updateMat, mean)

	var hc, hch mat.Dense
	hc.Mul(kf.updateMat, covariance)
	hch.Mul(&hc, kf.updateMat.T())

	projectedCov := mat.NewSymDense(measurementDim, nil)
	for i := 0; i < measurementDim; i++ {
		for j := i; j < measurementDim; j++ {
			// symmetrise against round-off before factorisation
			projectedCov.SetSym(i, j, (hch.At(i, j)+hch.At(j, i))/2.0)
		}
	}
	for i, v := range std {
		projectedCov.SetSym(i, i, projectedCov.At(i, i)+v*v)
	}
	return projectedMean, projectedCov
}

// Update corrects mean and covariance in place with a measurement.
// The Kalman gain is obtained by solving against the Cholesky factor of
// the projected covariance, which is positive definite by construction.
func (kf *KalmanFilter) Update(m MeasurementXYAH, mean *mat.VecDense, covariance *mat.Dense) error {
	projectedMean, projectedCov := kf.Project(mean, covariance)

	var chol mat.Cholesky
	if ok := chol.Factorize(projectedCov); !ok {
		return errors.New("projected covariance is not positive definite")
	}

	var covHT mat.Dense
	covHT.Mul(covariance, kf.updateMat.T())
	var gainT mat.Dense
	if err := chol.SolveTo(&gainT, covHT.T()); err != nil {
		return errors.Wrap(err, "can't solve for Kalman gain")
	}
	gain := gainT.T()

	var innovation mat.VecDense
	innovation.SubVec(measurementVec(m), projectedMean)

	var correction mat.VecDense
	correction.MulVec(gain, &innovation)
	mean.AddVec(mean, &correction)

	var hCov, gainHCov, nextCov mat.Dense
	hCov.Mul(kf.updateMat, covariance)
	gainHCov.Mul(gain, &hCov)
	nextCov.Sub(covariance, &gainHCov)
	covariance.Copy(&nextCov)
	return nil
}

// MahalanobisDistance returns the squared Mahalanobis distance between the
// state estimate and a measurement, computed once through a Cholesky solve
// of the projected covariance. With onlyPosition the comparison is
// restricted to the center coordinates (gate with GatingThresholdPosition
// in that case).
func (kf *KalmanFilter) MahalanobisDistance(mean *mat.VecDense, covariance *mat.Dense, m MeasurementXYAH, onlyPosition bool) (float64, error) {
	projectedMean, projectedCov := kf.Project(mean, covariance)
	measurement := measurementVec(m)

	dim := measurementDim
	if onlyPosition {
		dim = 2
		projectedMean = mat.NewVecDense(dim, []float64{projectedMean.AtVec(0), projectedMean.AtVec(1)})
		measurement = mat.NewVecDense(dim, []float64{measurement.AtVec(0), measurement.AtVec(1)})
		positionCov := mat.NewSymDense(dim, nil)
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				positionCov.SetSym(i, j, projectedCov.At(i, j))
			}
		}
		projectedCov = positionCov
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(projectedCov); !ok {
		return 0, errors.New("projected covariance is not positive definite")
	}

	d := mat.NewVecDense(dim, nil)
	d.SubVec(measurement, projectedMean)
	solved := mat.NewVecDense(dim, nil)
	if err := chol.SolveVecTo(solved, d); err != nil {
		return 0, errors.Wrap(err, "can't solve for Mahalanobis distance")
	}
	return mat.Dot(d, solved), nil
}

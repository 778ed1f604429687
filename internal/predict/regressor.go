package predict

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ridgeLambda stabilizes the normal equations against the collinearity a
// straight-line trajectory produces. Small enough not to bias predictions at
// yard coordinate scales.
const ridgeLambda = 1e-8

// regressor is a linear model over the feature vector. Coeffs holds the
// intercept followed by one weight per feature.
type regressor struct {
	Coeffs []float64 `json:"coeffs"`
}

// fitRegressor solves the ridge-stabilized least squares problem
// (XᵀX + λI)w = Xᵀy for the given feature rows and labels.
func fitRegressor(features [][]float64, labels []float64) (*regressor, error) {
	n := len(features)
	if n == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	if n != len(labels) {
		return nil, fmt.Errorf("feature/label length mismatch: %d vs %d", n, len(labels))
	}
	d := len(features[0]) + 1 // intercept column

	X := mat.NewDense(n, d, nil)
	for i, row := range features {
		if len(row) != d-1 {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), d-1)
		}
		X.Set(i, 0, 1)
		for j, v := range row {
			X.Set(i, j+1, v)
		}
	}
	y := mat.NewVecDense(n, labels)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	for i := 0; i < d; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridgeLambda)
	}

	var xty mat.VecDense
	xty.MulVec(X.T(), y)

	var w mat.VecDense
	if err := w.SolveVec(&xtx, &xty); err != nil {
		return nil, fmt.Errorf("failed to solve normal equations: %w", err)
	}

	coeffs := make([]float64, d)
	copy(coeffs, w.RawVector().Data)
	return &regressor{Coeffs: coeffs}, nil
}

// predict evaluates the model at one feature vector.
func (r *regressor) predict(features []float64) float64 {
	out := r.Coeffs[0]
	for i, v := range features {
		out += r.Coeffs[i+1] * v
	}
	return out
}

// valid reports whether the regressor has a usable coefficient vector.
func (r *regressor) valid() bool {
	return r != nil && len(r.Coeffs) > 0
}

// AxisMetrics is the hold-out evaluation of one axis regressor.
type AxisMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// evaluateRegressor computes MAE, RMSE and R² on the given hold-out rows.
func evaluateRegressor(r *regressor, features [][]float64, labels []float64) AxisMetrics {
	n := len(labels)
	if n == 0 {
		return AxisMetrics{}
	}

	var absSum, sqSum float64
	for i, row := range features {
		err := r.predict(row) - labels[i]
		absSum += math.Abs(err)
		sqSum += err * err
	}

	mean := stat.Mean(labels, nil)
	var totSS float64
	for _, label := range labels {
		d := label - mean
		totSS += d * d
	}

	m := AxisMetrics{
		MAE:  absSum / float64(n),
		RMSE: math.Sqrt(sqSum / float64(n)),
	}
	if totSS > 0 {
		m.R2 = 1 - sqSum/totSS
	}
	return m
}

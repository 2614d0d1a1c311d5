package model

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotTrained is returned by Predict before a successful Fit.
	ErrNotTrained = errors.New("model has not been trained; call Fit first")
	// ErrNonFiniteInput means Fit saw NaN or Inf and skipped training.
	ErrNonFiniteInput = errors.New("non-finite value in training data; training skipped")
	// ErrShapeMismatch reports inconsistent or empty input dimensions.
	ErrShapeMismatch = errors.New("input shape mismatch")
)

// Default hyperparameters for a TrendPredictor.
const (
	DefaultLearningRate = 0.01
	DefaultIterations   = 1000
)

// Params are the learned weights (one per feature column) and bias.
type Params struct {
	Weights []float64
	Bias    float64
}

// TrendPredictor is a linear regressor trained by full-batch gradient descent
// for a fixed number of iterations. It is not safe for concurrent use.
type TrendPredictor struct {
	LearningRate float64
	Iterations   int

	// nil until a Fit completes.
	params *Params
}

// NewTrendPredictor returns an untrained predictor. Non-positive arguments
// fall back to the defaults.
func NewTrendPredictor(learningRate float64, iterations int) *TrendPredictor {
	if learningRate <= 0 {
		learningRate = DefaultLearningRate
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &TrendPredictor{LearningRate: learningRate, Iterations: iterations}
}

// Trained reports whether parameters are present.
func (p *TrendPredictor) Trained() bool { return p.params != nil }

// Params returns a copy of the learned parameters.
func (p *TrendPredictor) Params() (Params, bool) {
	if p.params == nil {
		return Params{}, false
	}
	w := make([]float64, len(p.params.Weights))
	copy(w, p.params.Weights)
	return Params{Weights: w, Bias: p.params.Bias}, true
}

// Fit trains on x (rows of features) and y. On ErrNonFiniteInput or
// ErrShapeMismatch the existing parameters are untouched; otherwise they are
// replaced once all iterations have run.
func (p *TrendPredictor) Fit(x [][]float64, y []float64) error {
	nfeat, err := shape(x)
	if err != nil {
		return err
	}
	if len(y) != len(x) {
		return ErrShapeMismatch
	}
	if !finite(y) {
		return ErrNonFiniteInput
	}
	for _, row := range x {
		if !finite(row) {
			return ErrNonFiniteInput
		}
	}

	n := len(x)
	X := dense(x, nfeat)
	w := mat.NewVecDense(nfeat, nil)
	var b float64

	var pred, grad mat.VecDense
	resid := make([]float64, n)
	scale := 1 / float64(n)
	for it := 0; it < p.Iterations; it++ {
		pred.MulVec(X, w)
		for i := 0; i < n; i++ {
			resid[i] = pred.AtVec(i) + b - y[i]
		}
		r := mat.NewVecDense(n, resid)
		grad.MulVec(X.T(), r)
		w.AddScaledVec(w, -p.LearningRate*scale, &grad)
		b -= p.LearningRate * scale * floats.Sum(resid)
	}

	weights := make([]float64, nfeat)
	copy(weights, w.RawVector().Data)
	p.params = &Params{Weights: weights, Bias: b}
	return nil
}

// Predict returns x·w + b for every row of x.
func (p *TrendPredictor) Predict(x [][]float64) ([]float64, error) {
	if p.params == nil {
		return nil, ErrNotTrained
	}
	if len(x) == 0 {
		return []float64{}, nil
	}
	for _, row := range x {
		if len(row) != len(p.params.Weights) {
			return nil, ErrShapeMismatch
		}
	}
	var out mat.VecDense
	out.MulVec(dense(x, len(p.params.Weights)), mat.NewVecDense(len(p.params.Weights), p.params.Weights))
	pred := make([]float64, len(x))
	for i := range pred {
		pred[i] = out.AtVec(i) + p.params.Bias
	}
	return pred, nil
}

// shape validates that x is non-empty and rectangular, returning its width.
func shape(x [][]float64) (int, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return 0, ErrShapeMismatch
	}
	w := len(x[0])
	for _, row := range x {
		if len(row) != w {
			return 0, ErrShapeMismatch
		}
	}
	return w, nil
}

func dense(x [][]float64, ncol int) *mat.Dense {
	data := make([]float64, 0, len(x)*ncol)
	for _, row := range x {
		data = append(data, row...)
	}
	return mat.NewDense(len(x), ncol, data)
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Package classifier holds the estimators trained on every request.
//
// Every estimator follows the same Fit/Predict contract: labels are dense
// class indexes 0..k-1, features are row-major samples. Estimators are not
// safe for concurrent use, build one per training run.
package classifier

import (
	"errors"
	"fmt"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotFitted = errors.New("classifier is not fitted")
	ErrEmpty     = errors.New("empty input")
	ErrShape     = errors.New("dimension mismatch")
	ErrLabel     = errors.New("labels must be non-negative class indexes")
)

// Classifier is a trainable multi-class estimator
type Classifier interface {
	Fit(X [][]float64, y []int) error
	Predict(X [][]float64) ([]int, error)
	// Params returns the hyper-parameters recorded by autologging
	Params() map[string]string
}

// checkTrain validates a training set and returns the number of features and classes
func checkTrain(X [][]float64, y []int) (nFeatures, nClasses int, err error) {
	if len(X) == 0 || len(y) == 0 {
		return 0, 0, ErrEmpty
	}
	if len(X) != len(y) {
		return 0, 0, fmt.Errorf("%w: %d samples, %d labels", ErrShape, len(X), len(y))
	}
	nFeatures = len(X[0])
	if nFeatures == 0 {
		return 0, 0, ErrEmpty
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return 0, 0, fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), nFeatures)
		}
	}
	for _, label := range y {
		if label < 0 {
			return 0, 0, ErrLabel
		}
		if label+1 > nClasses {
			nClasses = label + 1
		}
	}
	return nFeatures, nClasses, nil
}

// checkPredict validates samples against the fitted feature count
func checkPredict(X [][]float64, nFeatures int) error {
	if nFeatures == 0 {
		return ErrNotFitted
	}
	for i, row := range X {
		if len(row) != nFeatures {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), nFeatures)
		}
	}
	return nil
}

// scaler standardizes features to zero mean and unit variance
type scaler struct {
	mean []float64
	std  []float64
}

func fitScaler(X [][]float64) *scaler {
	nf := len(X[0])
	s := &scaler{mean: make([]float64, nf), std: make([]float64, nf)}
	col := make([]float64, len(X))
	for j := 0; j < nf; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		s.mean[j], s.std[j] = stat.MeanStdDev(col, nil)
		if s.std[j] == 0 || s.std[j] != s.std[j] {
			s.std[j] = 1
		}
	}
	return s
}

func (s *scaler) transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.mean[j]) / s.std[j]
		}
		out[i] = r
	}
	return out
}

func itoa(v int) string {
	return strconv.Itoa(v)
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

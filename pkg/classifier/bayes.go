package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GaussianNB models every feature of every class as an independent normal distribution
type GaussianNB struct {
	VarSmoothing float64

	logPrior  []float64
	mean      [][]float64
	variance  [][]float64
	nFeatures int
}

func NewGaussianNB() *GaussianNB {
	return &GaussianNB{VarSmoothing: 1e-9}
}

func (g *GaussianNB) Params() map[string]string {
	return map[string]string{"var_smoothing": ftoa(g.VarSmoothing)}
}

// popVariance returns the mean and the biased variance of x
func popVariance(x []float64) (float64, float64) {
	mean, variance := stat.MeanVariance(x, nil)
	if len(x) < 2 {
		return mean, 0
	}
	n := float64(len(x))
	return mean, variance * (n - 1) / n
}

func (g *GaussianNB) Fit(X [][]float64, y []int) error {
	nFeatures, nClasses, err := checkTrain(X, y)
	if err != nil {
		return err
	}

	// smoothing is relative to the largest feature variance of the whole set
	col := make([]float64, len(X))
	maxVar := 0.0
	for j := 0; j < nFeatures; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		_, v := popVariance(col)
		maxVar = math.Max(maxVar, v)
	}
	epsilon := g.VarSmoothing * maxVar

	byClass := make([][][]float64, nClasses)
	for i, label := range y {
		byClass[label] = append(byClass[label], X[i])
	}
	g.logPrior = make([]float64, nClasses)
	g.mean = make([][]float64, nClasses)
	g.variance = make([][]float64, nClasses)
	for c, rows := range byClass {
		g.mean[c] = make([]float64, nFeatures)
		g.variance[c] = make([]float64, nFeatures)
		if len(rows) == 0 {
			g.logPrior[c] = math.Inf(-1)
			for j := range g.variance[c] {
				g.variance[c][j] = 1
			}
			continue
		}
		g.logPrior[c] = math.Log(float64(len(rows)) / float64(len(y)))
		values := make([]float64, len(rows))
		for j := 0; j < nFeatures; j++ {
			for i, row := range rows {
				values[i] = row[j]
			}
			m, v := popVariance(values)
			g.mean[c][j] = m
			g.variance[c][j] = v + epsilon
			if g.variance[c][j] == 0 {
				g.variance[c][j] = math.SmallestNonzeroFloat64
			}
		}
	}
	g.nFeatures = nFeatures
	return nil
}

func (g *GaussianNB) Predict(X [][]float64) ([]int, error) {
	if g.mean == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, g.nFeatures); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	joint := make([]float64, len(g.mean))
	for i, x := range X {
		for c := range g.mean {
			ll := g.logPrior[c]
			for j, v := range x {
				variance := g.variance[c][j]
				d := v - g.mean[c][j]
				ll -= 0.5*math.Log(2*math.Pi*variance) + d*d/(2*variance)
			}
			joint[c] = ll
		}
		out[i] = floats.MaxIdx(joint)
	}
	return out, nil
}

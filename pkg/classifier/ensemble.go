package classifier

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// RandomForest averages the class probabilities of bootstrapped CART trees
type RandomForest struct {
	NEstimators int
	MaxFeatures int // 0 uses sqrt(n_features)
	Seed        int64

	trees     []*DecisionTree
	nFeatures int
	nClasses  int
}

func NewRandomForest() *RandomForest {
	return &RandomForest{NEstimators: 100}
}

func (f *RandomForest) Params() map[string]string {
	return map[string]string{
		"n_estimators": itoa(f.NEstimators),
		"max_features": itoa(f.MaxFeatures),
		"bootstrap":    "true",
		"random_state": itoa(int(f.Seed)),
	}
}

func (f *RandomForest) Fit(X [][]float64, y []int) error {
	nFeatures, nClasses, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	maxFeatures := f.MaxFeatures
	if maxFeatures <= 0 {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(nFeatures)))))
	}
	rng := rand.New(rand.NewSource(f.Seed))
	f.trees = make([]*DecisionTree, 0, f.NEstimators)
	for m := 0; m < f.NEstimators; m++ {
		// bootstrap sample counts double as sample weights
		w := make([]float64, len(y))
		for range y {
			w[rng.Intn(len(y))]++
		}
		tree := &DecisionTree{MinSamplesSplit: 2, MaxFeatures: maxFeatures, Seed: rng.Int63()}
		if err := tree.fitWeighted(X, y, w); err != nil {
			return err
		}
		f.trees = append(f.trees, tree)
	}
	f.nFeatures, f.nClasses = nFeatures, nClasses
	return nil
}

func (f *RandomForest) Predict(X [][]float64) ([]int, error) {
	if len(f.trees) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, f.nFeatures); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	votes := make([]float64, f.nClasses)
	for i, x := range X {
		for k := range votes {
			votes[k] = 0
		}
		for _, tree := range f.trees {
			p := tree.proba(x)
			floats.Add(votes[:len(p)], p)
		}
		out[i] = floats.MaxIdx(votes)
	}
	return out, nil
}

// AdaBoost is SAMME multi-class boosting over decision stumps
type AdaBoost struct {
	NEstimators  int
	LearningRate float64

	stumps    []*DecisionTree
	alphas    []float64
	nFeatures int
	nClasses  int
}

func NewAdaBoost() *AdaBoost {
	return &AdaBoost{NEstimators: 50, LearningRate: 1}
}

func (a *AdaBoost) Params() map[string]string {
	return map[string]string{
		"algorithm":     "SAMME",
		"n_estimators":  itoa(a.NEstimators),
		"learning_rate": ftoa(a.LearningRate),
	}
}

func (a *AdaBoost) Fit(X [][]float64, y []int) error {
	nFeatures, nClasses, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	a.nFeatures, a.nClasses = nFeatures, nClasses
	a.stumps, a.alphas = nil, nil

	n := len(y)
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	for m := 0; m < a.NEstimators; m++ {
		stump := &DecisionTree{MaxDepth: 1, MinSamplesSplit: 2}
		if err := stump.fitWeighted(X, y, w); err != nil {
			return err
		}
		pred, err := stump.Predict(X)
		if err != nil {
			return err
		}
		var miss float64
		for i := range y {
			if pred[i] != y[i] {
				miss += w[i]
			}
		}
		errRate := miss / floats.Sum(w)
		if errRate <= 0 {
			// perfect fit, nothing left to boost
			a.stumps = append(a.stumps, stump)
			a.alphas = append(a.alphas, 1)
			break
		}
		if errRate >= 1-1/float64(nClasses) {
			if len(a.stumps) == 0 {
				a.stumps = append(a.stumps, stump)
				a.alphas = append(a.alphas, 1)
			}
			break
		}
		alpha := a.LearningRate * (math.Log((1-errRate)/errRate) + math.Log(float64(nClasses)-1))
		a.stumps = append(a.stumps, stump)
		a.alphas = append(a.alphas, alpha)
		for i := range y {
			if pred[i] != y[i] {
				w[i] *= math.Exp(alpha)
			}
		}
		floats.Scale(1/floats.Sum(w), w)
	}
	return nil
}

func (a *AdaBoost) Predict(X [][]float64) ([]int, error) {
	if len(a.stumps) == 0 {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, a.nFeatures); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	votes := make([]float64, a.nClasses)
	for i, x := range X {
		for k := range votes {
			votes[k] = 0
		}
		for m, stump := range a.stumps {
			votes[floats.MaxIdx(stump.root.leaf(x).value)] += a.alphas[m]
		}
		out[i] = floats.MaxIdx(votes)
	}
	return out, nil
}

// GradientBoosting fits one regression tree per class and stage on the softmax gradient
type GradientBoosting struct {
	NEstimators  int
	LearningRate float64
	MaxDepth     int

	init      []float64
	stages    [][]*regressionTree
	nFeatures int
	nClasses  int
}

func NewGradientBoosting() *GradientBoosting {
	return &GradientBoosting{NEstimators: 100, LearningRate: 0.1, MaxDepth: 3}
}

func (g *GradientBoosting) Params() map[string]string {
	return map[string]string{
		"loss":          "log_loss",
		"n_estimators":  itoa(g.NEstimators),
		"learning_rate": ftoa(g.LearningRate),
		"max_depth":     itoa(g.MaxDepth),
	}
}

func (g *GradientBoosting) Fit(X [][]float64, y []int) error {
	nFeatures, nClasses, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	g.nFeatures, g.nClasses = nFeatures, nClasses
	n := len(y)
	k := nClasses

	// start from the log class priors
	g.init = make([]float64, k)
	for _, label := range y {
		g.init[label]++
	}
	for c := range g.init {
		g.init[c] = math.Log(math.Max(g.init[c], 1) / float64(n))
	}
	raw := make([][]float64, n)
	for i := range raw {
		raw[i] = append([]float64{}, g.init...)
	}

	g.stages = make([][]*regressionTree, 0, g.NEstimators)
	residual := make([]float64, n)
	for m := 0; m < g.NEstimators; m++ {
		probs := make([][]float64, n)
		for i := range raw {
			probs[i] = softmax(raw[i])
		}
		stage := make([]*regressionTree, k)
		for c := 0; c < k; c++ {
			for i := range y {
				target := 0.0
				if y[i] == c {
					target = 1
				}
				residual[i] = target - probs[i][c]
			}
			tree := &regressionTree{maxDepth: g.MaxDepth, minSplit: 2}
			tree.fit(X, residual, func(idx []int) float64 {
				var num, den float64
				for _, i := range idx {
					r := residual[i]
					num += r
					den += math.Abs(r) * (1 - math.Abs(r))
				}
				if den < 1e-150 {
					return 0
				}
				return float64(k-1) / float64(k) * num / den
			})
			stage[c] = tree
		}
		for i, x := range X {
			for c, tree := range stage {
				raw[i][c] += g.LearningRate * tree.predict(x)
			}
		}
		g.stages = append(g.stages, stage)
	}
	return nil
}

func softmax(raw []float64) []float64 {
	lse := floats.LogSumExp(raw)
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = math.Exp(v - lse)
	}
	return out
}

func (g *GradientBoosting) Predict(X [][]float64) ([]int, error) {
	if g.stages == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, g.nFeatures); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, x := range X {
		raw := append([]float64{}, g.init...)
		for _, stage := range g.stages {
			for c, tree := range stage {
				raw[c] += g.LearningRate * tree.predict(x)
			}
		}
		out[i] = floats.MaxIdx(raw)
	}
	return out, nil
}

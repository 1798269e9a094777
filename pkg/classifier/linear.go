package classifier

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// linearModel is a weight vector per class over standardized features plus an intercept
type linearModel struct {
	scaler    *scaler
	weights   [][]float64
	bias      []float64
	nFeatures int
}

func (m *linearModel) scores(x []float64) []float64 {
	out := make([]float64, len(m.weights))
	for c, w := range m.weights {
		out[c] = floats.Dot(w, x) + m.bias[c]
	}
	return out
}

func (m *linearModel) predict(X [][]float64) ([]int, error) {
	if m.weights == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, m.nFeatures); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, x := range m.scaler.transform(X) {
		out[i] = floats.MaxIdx(m.scores(x))
	}
	return out, nil
}

// stableStep shrinks the learning rate so strong penalties do not make descent diverge
func stableStep(lr, penalty float64) float64 {
	return 1 / (1/lr + penalty)
}

// fitSoftmax runs full batch gradient descent on the L2 penalized multinomial log loss,
// X must already be standardized
func fitSoftmax(X [][]float64, y []int, nClasses int, C, lr float64, iters int) ([][]float64, []float64) {
	n, nf := len(X), len(X[0])
	W := make([][]float64, nClasses)
	gradW := make([][]float64, nClasses)
	for c := range W {
		W[c] = make([]float64, nf)
		gradW[c] = make([]float64, nf)
	}
	b := make([]float64, nClasses)
	gradB := make([]float64, nClasses)
	raw := make([]float64, nClasses)
	penalty := 1 / (C * float64(n))
	step := stableStep(lr, penalty)

	for it := 0; it < iters; it++ {
		for c := range gradW {
			for j := range gradW[c] {
				gradW[c][j] = 0
			}
			gradB[c] = 0
		}
		for i, x := range X {
			for c := range W {
				raw[c] = floats.Dot(W[c], x) + b[c]
			}
			p := softmax(raw)
			for c := range W {
				diff := p[c]
				if y[i] == c {
					diff -= 1
				}
				floats.AddScaled(gradW[c], diff/float64(n), x)
				gradB[c] += diff / float64(n)
			}
		}
		for c := range W {
			floats.AddScaled(gradW[c], penalty, W[c])
			floats.AddScaled(W[c], -step, gradW[c])
			b[c] -= step * gradB[c]
		}
	}
	return W, b
}

// LogisticRegressionCV is multinomial logistic regression whose inverse regularization
// strength is picked from Cs by stratified k-fold cross-validation
type LogisticRegressionCV struct {
	Cs           []float64
	Folds        int
	MaxIter      int
	LearningRate float64

	// C is the strength selected by the last Fit
	C float64
	linearModel
}

func NewLogisticRegressionCV() *LogisticRegressionCV {
	cs := make([]float64, 10)
	for i := range cs {
		// logspace(-4, 4, 10)
		cs[i] = math.Pow(10, -4+8*float64(i)/9)
	}
	return &LogisticRegressionCV{Cs: cs, Folds: 5, MaxIter: 300, LearningRate: 0.5}
}

func (l *LogisticRegressionCV) Params() map[string]string {
	return map[string]string{
		"Cs":       itoa(len(l.Cs)),
		"cv":       itoa(l.Folds),
		"max_iter": itoa(l.MaxIter),
		"penalty":  "l2",
	}
}

// stratifiedFolds assigns every sample to a fold, round robin inside each class
func stratifiedFolds(y []int, k int) []int {
	fold := make([]int, len(y))
	seen := map[int]int{}
	for i, label := range y {
		fold[i] = seen[label] % k
		seen[label]++
	}
	return fold
}

func (l *LogisticRegressionCV) Fit(X [][]float64, y []int) error {
	nFeatures, nClasses, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	if len(l.Cs) == 0 {
		return ErrEmpty
	}
	sc := fitScaler(X)
	Xs := sc.transform(X)

	best := l.Cs[0]
	if len(l.Cs) > 1 && l.Folds > 1 && len(y) >= l.Folds {
		fold := stratifiedFolds(y, l.Folds)
		bestScore := -1.0
		for _, C := range l.Cs {
			var score float64
			for f := 0; f < l.Folds; f++ {
				var trX, teX [][]float64
				var trY, teY []int
				for i := range Xs {
					if fold[i] == f {
						teX, teY = append(teX, Xs[i]), append(teY, y[i])
					} else {
						trX, trY = append(trX, Xs[i]), append(trY, y[i])
					}
				}
				if len(trX) == 0 || len(teX) == 0 {
					continue
				}
				W, b := fitSoftmax(trX, trY, nClasses, C, l.LearningRate, l.MaxIter)
				m := linearModel{weights: W, bias: b}
				hit := 0
				for i, x := range teX {
					if floats.MaxIdx(m.scores(x)) == teY[i] {
						hit++
					}
				}
				score += float64(hit) / float64(len(teX))
			}
			if score > bestScore {
				bestScore, best = score, C
			}
		}
	}

	l.C = best
	W, b := fitSoftmax(Xs, y, nClasses, best, l.LearningRate, l.MaxIter)
	l.linearModel = linearModel{scaler: sc, weights: W, bias: b, nFeatures: nFeatures}
	return nil
}

func (l *LogisticRegressionCV) Predict(X [][]float64) ([]int, error) {
	return l.predict(X)
}

// LinearSVC is a one-vs-rest linear support vector classifier on the squared hinge loss
type LinearSVC struct {
	C            float64
	MaxIter      int
	LearningRate float64
	linearModel
}

func NewLinearSVC() *LinearSVC {
	return &LinearSVC{C: 1, MaxIter: 1000, LearningRate: 0.1}
}

func (s *LinearSVC) Params() map[string]string {
	return map[string]string{
		"C":        ftoa(s.C),
		"loss":     "squared_hinge",
		"max_iter": itoa(s.MaxIter),
		"penalty":  "l2",
	}
}

func (s *LinearSVC) Fit(X [][]float64, y []int) error {
	nFeatures, nClasses, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	sc := fitScaler(X)
	Xs := sc.transform(X)
	n := float64(len(Xs))
	penalty := 1 / (s.C * n)
	step := stableStep(s.LearningRate, penalty)

	W := make([][]float64, nClasses)
	b := make([]float64, nClasses)
	grad := make([]float64, nFeatures)
	for c := 0; c < nClasses; c++ {
		w := make([]float64, nFeatures)
		for it := 0; it < s.MaxIter; it++ {
			for j := range grad {
				grad[j] = 0
			}
			var gradB float64
			for i, x := range Xs {
				t := -1.0
				if y[i] == c {
					t = 1
				}
				margin := t * (floats.Dot(w, x) + b[c])
				if margin < 1 {
					coef := -2 * (1 - margin) * t / n
					floats.AddScaled(grad, coef, x)
					gradB += coef
				}
			}
			floats.AddScaled(grad, penalty, w)
			floats.AddScaled(w, -step, grad)
			b[c] -= step * gradB
		}
		W[c] = w
	}
	s.linearModel = linearModel{scaler: sc, weights: W, bias: b, nFeatures: nFeatures}
	return nil
}

func (s *LinearSVC) Predict(X [][]float64) ([]int, error) {
	return s.predict(X)
}

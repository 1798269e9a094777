package classifier

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// minGain is the smallest impurity decrease accepted for a split
const minGain = 1e-12

// node is a binary tree node, leaves hold either a class distribution or a single regression value
type node struct {
	feature   int
	threshold float64
	left      *node
	right     *node
	value     []float64
}

func (n *node) leaf(x []float64) *node {
	for n.left != nil {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n
}

// candidateFeatures returns the features inspected at one node
func candidateFeatures(nFeatures, maxFeatures int, rng *rand.Rand) []int {
	if maxFeatures <= 0 || maxFeatures >= nFeatures || rng == nil {
		all := make([]int, nFeatures)
		for i := range all {
			all[i] = i
		}
		return all
	}
	return rng.Perm(nFeatures)[:maxFeatures]
}

func sortByFeature(X [][]float64, idx []int, feature int) []int {
	sorted := append([]int{}, idx...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return X[sorted[a]][feature] < X[sorted[b]][feature]
	})
	return sorted
}

func partition(X [][]float64, idx []int, feature int, threshold float64) (left, right []int) {
	for _, i := range idx {
		if X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return
}

// DecisionTree is a CART classifier splitting on Gini impurity
type DecisionTree struct {
	MaxDepth        int // 0 grows until leaves are pure
	MinSamplesSplit int
	MaxFeatures     int // 0 inspects every feature
	Seed            int64

	root      *node
	nFeatures int
	nClasses  int
	rng       *rand.Rand
}

// NewDecisionTree returns a fully grown tree
func NewDecisionTree() *DecisionTree {
	return &DecisionTree{MinSamplesSplit: 2}
}

func (t *DecisionTree) Params() map[string]string {
	return map[string]string{
		"criterion":         "gini",
		"max_depth":         itoa(t.MaxDepth),
		"min_samples_split": itoa(t.MinSamplesSplit),
		"max_features":      itoa(t.MaxFeatures),
		"random_state":      itoa(int(t.Seed)),
	}
}

func (t *DecisionTree) Fit(X [][]float64, y []int) error {
	return t.fitWeighted(X, y, nil)
}

// fitWeighted grows the tree over the samples with a positive weight,
// nil weights count every sample once
func (t *DecisionTree) fitWeighted(X [][]float64, y []int, w []float64) error {
	nFeatures, nClasses, err := checkTrain(X, y)
	if err != nil {
		return err
	}
	if w == nil {
		w = make([]float64, len(y))
		for i := range w {
			w[i] = 1
		}
	}
	if len(w) != len(y) {
		return ErrShape
	}
	idx := make([]int, 0, len(y))
	for i, wi := range w {
		if wi > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return ErrEmpty
	}
	t.nFeatures, t.nClasses = nFeatures, nClasses
	if t.MinSamplesSplit < 2 {
		t.MinSamplesSplit = 2
	}
	t.rng = rand.New(rand.NewSource(t.Seed))
	t.root = t.grow(X, y, w, idx, 0)
	return nil
}

func (t *DecisionTree) distribution(y []int, w []float64, idx []int) []float64 {
	dist := make([]float64, t.nClasses)
	for _, i := range idx {
		dist[y[i]] += w[i]
	}
	return dist
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, c := range dist {
		p := c / total
		g -= p * p
	}
	return g
}

func (t *DecisionTree) grow(X [][]float64, y []int, w []float64, idx []int, depth int) *node {
	dist := t.distribution(y, w, idx)
	total := floats.Sum(dist)
	if len(idx) < t.MinSamplesSplit || (t.MaxDepth > 0 && depth >= t.MaxDepth) || gini(dist, total) == 0 {
		return &node{value: dist}
	}

	parent := gini(dist, total) * total
	best := minGain
	bestFeature, bestThreshold := -1, 0.0
	for _, f := range candidateFeatures(t.nFeatures, t.MaxFeatures, t.rng) {
		sorted := sortByFeature(X, idx, f)
		left := make([]float64, t.nClasses)
		right := append([]float64{}, dist...)
		wl, wr := 0.0, total
		for p := 0; p < len(sorted)-1; p++ {
			i := sorted[p]
			left[y[i]] += w[i]
			right[y[i]] -= w[i]
			wl += w[i]
			wr -= w[i]
			a, b := X[i][f], X[sorted[p+1]][f]
			if a == b {
				continue
			}
			gain := parent - gini(left, wl)*wl - gini(right, wr)*wr
			if gain > best {
				best, bestFeature, bestThreshold = gain, f, (a+b)/2
			}
		}
	}
	if bestFeature < 0 {
		return &node{value: dist}
	}
	l, r := partition(X, idx, bestFeature, bestThreshold)
	return &node{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      t.grow(X, y, w, l, depth+1),
		right:     t.grow(X, y, w, r, depth+1),
	}
}

// proba returns the normalized class distribution of the leaf x falls in
func (t *DecisionTree) proba(x []float64) []float64 {
	dist := append([]float64{}, t.root.leaf(x).value...)
	if total := floats.Sum(dist); total > 0 {
		floats.Scale(1/total, dist)
	}
	return dist
}

func (t *DecisionTree) Predict(X [][]float64) ([]int, error) {
	if t.root == nil {
		return nil, ErrNotFitted
	}
	if err := checkPredict(X, t.nFeatures); err != nil {
		return nil, err
	}
	out := make([]int, len(X))
	for i, x := range X {
		out[i] = floats.MaxIdx(t.root.leaf(x).value)
	}
	return out, nil
}

// regressionTree fits residuals by squared error, leaf values come from the caller
type regressionTree struct {
	maxDepth  int
	minSplit  int
	nFeatures int
	root      *node
}

func (t *regressionTree) fit(X [][]float64, target []float64, leafValue func(idx []int) float64) {
	t.nFeatures = len(X[0])
	if t.minSplit < 2 {
		t.minSplit = 2
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	t.root = t.grow(X, target, idx, 0, leafValue)
}

func sse(sum, sumSq float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sumSq - sum*sum/float64(n)
}

func (t *regressionTree) grow(X [][]float64, target []float64, idx []int, depth int, leafValue func([]int) float64) *node {
	if len(idx) < t.minSplit || (t.maxDepth > 0 && depth >= t.maxDepth) {
		return &node{value: []float64{leafValue(idx)}}
	}
	var sum, sumSq float64
	for _, i := range idx {
		sum += target[i]
		sumSq += target[i] * target[i]
	}
	parent := sse(sum, sumSq, len(idx))

	best := minGain
	bestFeature, bestThreshold := -1, 0.0
	for f := 0; f < t.nFeatures; f++ {
		sorted := sortByFeature(X, idx, f)
		var ls, lsq float64
		for p := 0; p < len(sorted)-1; p++ {
			i := sorted[p]
			ls += target[i]
			lsq += target[i] * target[i]
			a, b := X[i][f], X[sorted[p+1]][f]
			if a == b {
				continue
			}
			nl := p + 1
			gain := parent - sse(ls, lsq, nl) - sse(sum-ls, sumSq-lsq, len(sorted)-nl)
			if gain > best {
				best, bestFeature, bestThreshold = gain, f, (a+b)/2
			}
		}
	}
	if bestFeature < 0 {
		return &node{value: []float64{leafValue(idx)}}
	}
	l, r := partition(X, idx, bestFeature, bestThreshold)
	return &node{
		feature:   bestFeature,
		threshold: bestThreshold,
		left:      t.grow(X, target, l, depth+1, leafValue),
		right:     t.grow(X, target, r, depth+1, leafValue),
	}
}

func (t *regressionTree) predict(x []float64) float64 {
	return t.root.leaf(x).value[0]
}

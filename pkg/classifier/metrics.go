package classifier

import "fmt"

// Accuracy returns the fraction of exact label matches
func Accuracy(yTrue, yPred []int) (float64, error) {
	if len(yTrue) == 0 {
		return 0, ErrEmpty
	}
	if len(yTrue) != len(yPred) {
		return 0, fmt.Errorf("%w: %d labels, %d predictions", ErrShape, len(yTrue), len(yPred))
	}
	hit := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			hit++
		}
	}
	return float64(hit) / float64(len(yTrue)), nil
}

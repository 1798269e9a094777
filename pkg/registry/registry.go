package registry

import (
	"errors"
	"fmt"

	"github.com/tass-io/trainer/pkg/classifier"
)

var ErrEmptyName = errors.New("model entry name is empty")

// Entry names a classifier; New builds a fresh, unfitted estimator for each training run
type Entry struct {
	Name string
	New  func() classifier.Classifier
}

// Models is the ordered, read-only list of entries trained on every request
type Models struct {
	entries []Entry
}

// New validates entries, names must be unique and non-empty. The slice is copied.
func New(entries ...Entry) (*Models, error) {
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, ErrEmptyName
		}
		if e.New == nil {
			return nil, fmt.Errorf("model entry %s has no constructor", e.Name)
		}
		if _, ok := seen[e.Name]; ok {
			return nil, fmt.Errorf("duplicated model entry %s", e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return &Models{entries: append([]Entry{}, entries...)}, nil
}

// Default returns the seven classifiers of the training endpoint
func Default() *Models {
	m, err := New(
		Entry{Name: "LR", New: func() classifier.Classifier { return classifier.NewLogisticRegressionCV() }},
		Entry{Name: "LSVC", New: func() classifier.Classifier { return classifier.NewLinearSVC() }},
		Entry{Name: "RFC", New: func() classifier.Classifier { return classifier.NewRandomForest() }},
		Entry{Name: "ABC", New: func() classifier.Classifier { return classifier.NewAdaBoost() }},
		Entry{Name: "GBC", New: func() classifier.Classifier { return classifier.NewGradientBoosting() }},
		Entry{Name: "DTC", New: func() classifier.Classifier { return classifier.NewDecisionTree() }},
		Entry{Name: "GNB", New: func() classifier.Classifier { return classifier.NewGaussianNB() }},
	)
	if err != nil {
		panic(err)
	}
	return m
}

// Entries returns a copy of the entries in training order
func (m *Models) Entries() []Entry {
	return append([]Entry{}, m.entries...)
}

// Names returns the entry names in training order
func (m *Models) Names() []string {
	names := make([]string, len(m.entries))
	for i, e := range m.entries {
		names[i] = e.Name
	}
	return names
}

func (m *Models) Len() int {
	return len(m.entries)
}

package dataset

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strconv"
)

//go:embed iris.csv
var irisCSV []byte

var (
	ErrTestSize = errors.New("test size must be in (0, 1)")
	ErrTooSmall = errors.New("dataset too small to split")
)

// Dataset is a feature matrix with its label vector
type Dataset struct {
	Features     [][]float64
	Labels       []int
	FeatureNames []string
	ClassNames   []string
}

// Len returns the number of samples
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Split is a train/test partition of a Dataset
type Split struct {
	XTrain [][]float64
	XTest  [][]float64
	YTrain []int
	YTest  []int
}

// Load parses the bundled Iris dataset, 150 samples of 4 features in 3 balanced classes.
// Every call returns a fresh copy.
func Load() (*Dataset, error) {
	return parse(irisCSV)
}

func parse(data []byte) (*Dataset, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, ErrTooSmall
	}
	header := records[0]
	nFeatures := len(header) - 1
	ds := &Dataset{
		FeatureNames: append([]string{}, header[:nFeatures]...),
	}
	classes := map[string]int{}
	for i, rec := range records[1:] {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", i+2, len(header), len(rec))
		}
		row := make([]float64, nFeatures)
		for j := 0; j < nFeatures; j++ {
			row[j], err = strconv.ParseFloat(rec[j], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i+2, err)
			}
		}
		name := rec[nFeatures]
		label, ok := classes[name]
		if !ok {
			label = len(ds.ClassNames)
			classes[name] = label
			ds.ClassNames = append(ds.ClassNames, name)
		}
		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, label)
	}
	return ds, nil
}

// TrainTestSplit shuffles the dataset with the given seed and holds out
// ceil(n*testSize) samples for evaluation. The same seed always gives the same partition.
func TrainTestSplit(ds *Dataset, testSize float64, seed int64) (*Split, error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, ErrTestSize
	}
	n := ds.Len()
	nTest := int(math.Ceil(float64(n) * testSize))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, ErrTooSmall
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	s := &Split{
		XTest:  make([][]float64, 0, nTest),
		YTest:  make([]int, 0, nTest),
		XTrain: make([][]float64, 0, nTrain),
		YTrain: make([]int, 0, nTrain),
	}
	for i, idx := range perm {
		row := append([]float64{}, ds.Features[idx]...)
		if i < nTest {
			s.XTest = append(s.XTest, row)
			s.YTest = append(s.YTest, ds.Labels[idx])
			continue
		}
		s.XTrain = append(s.XTrain, row)
		s.YTrain = append(s.YTrain, ds.Labels[idx])
	}
	return s, nil
}

package classifier

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tass-io/trainer/pkg/dataset"
)

func irisSplit() *dataset.Split {
	ds, err := dataset.Load()
	if err != nil {
		panic(err)
	}
	split, err := dataset.TrainTestSplit(ds, 0.3, 42)
	if err != nil {
		panic(err)
	}
	return split
}

func TestClassifiers(t *testing.T) {
	Convey("every classifier learns iris", t, func() {
		testcases := []struct {
			caseName    string
			skipped     bool
			newModel    func() Classifier
			minAccuracy float64
		}{
			{caseName: "logistic regression cv", newModel: func() Classifier { return NewLogisticRegressionCV() }, minAccuracy: 0.85},
			{caseName: "linear svc", newModel: func() Classifier { return NewLinearSVC() }, minAccuracy: 0.75},
			{caseName: "random forest", newModel: func() Classifier { return NewRandomForest() }, minAccuracy: 0.85},
			{caseName: "adaboost", newModel: func() Classifier { return NewAdaBoost() }, minAccuracy: 0.8},
			{caseName: "gradient boosting", newModel: func() Classifier { return NewGradientBoosting() }, minAccuracy: 0.85},
			{caseName: "decision tree", newModel: func() Classifier { return NewDecisionTree() }, minAccuracy: 0.85},
			{caseName: "gaussian nb", newModel: func() Classifier { return NewGaussianNB() }, minAccuracy: 0.85},
		}
		split := irisSplit()
		for _, testcase := range testcases {
			if testcase.skipped {
				continue
			}
			t.Log(testcase.caseName)
			model := testcase.newModel()
			So(model.Params(), ShouldNotBeEmpty)

			_, err := model.Predict(split.XTest)
			So(errors.Is(err, ErrNotFitted), ShouldBeTrue)

			So(model.Fit(split.XTrain, split.YTrain), ShouldBeNil)
			pred, err := model.Predict(split.XTest)
			So(err, ShouldBeNil)
			So(pred, ShouldHaveLength, len(split.YTest))
			acc, err := Accuracy(split.YTest, pred)
			So(err, ShouldBeNil)
			So(acc, ShouldBeGreaterThanOrEqualTo, testcase.minAccuracy)
			So(acc, ShouldBeLessThanOrEqualTo, 1)

			_, err = model.Predict([][]float64{{1, 2}})
			So(errors.Is(err, ErrShape), ShouldBeTrue)
		}
	})
}

func TestFitValidation(t *testing.T) {
	Convey("fit rejects malformed training sets", t, func() {
		testcases := []struct {
			caseName string
			X        [][]float64
			y        []int
			expect   error
		}{
			{caseName: "empty", X: nil, y: nil, expect: ErrEmpty},
			{caseName: "label count", X: [][]float64{{1}, {2}}, y: []int{0}, expect: ErrShape},
			{caseName: "ragged rows", X: [][]float64{{1, 2}, {2}}, y: []int{0, 1}, expect: ErrShape},
			{caseName: "negative label", X: [][]float64{{1}, {2}}, y: []int{0, -1}, expect: ErrLabel},
		}
		for _, testcase := range testcases {
			t.Log(testcase.caseName)
			err := NewGaussianNB().Fit(testcase.X, testcase.y)
			So(errors.Is(err, testcase.expect), ShouldBeTrue)
		}
	})
}

func TestDeterminism(t *testing.T) {
	Convey("seeded ensembles repeat their predictions", t, func() {
		split := irisSplit()
		first, second := NewRandomForest(), NewRandomForest()
		So(first.Fit(split.XTrain, split.YTrain), ShouldBeNil)
		So(second.Fit(split.XTrain, split.YTrain), ShouldBeNil)
		a, err := first.Predict(split.XTest)
		So(err, ShouldBeNil)
		b, err := second.Predict(split.XTest)
		So(err, ShouldBeNil)
		So(a, ShouldResemble, b)
	})
}

func TestAccuracy(t *testing.T) {
	Convey("accuracy is the fraction of exact matches", t, func() {
		acc, err := Accuracy([]int{0, 1, 2, 2}, []int{0, 1, 1, 2})
		So(err, ShouldBeNil)
		So(acc, ShouldEqual, 0.75)

		acc, err = Accuracy([]int{1, 1}, []int{1, 1})
		So(err, ShouldBeNil)
		So(acc, ShouldEqual, 1)

		_, err = Accuracy(nil, nil)
		So(err, ShouldEqual, ErrEmpty)

		_, err = Accuracy([]int{1}, []int{1, 2})
		So(errors.Is(err, ErrShape), ShouldBeTrue)
	})
}

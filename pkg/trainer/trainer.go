// Package trainer runs one training cycle: every registered model is fitted on
// the same split of the bundled dataset and scored on the holdout partition,
// each model inside its own tracked run.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"github.com/tass-io/trainer/pkg/classifier"
	"github.com/tass-io/trainer/pkg/dataset"
	"github.com/tass-io/trainer/pkg/env"
	"github.com/tass-io/trainer/pkg/prom"
	"github.com/tass-io/trainer/pkg/registry"
	"github.com/tass-io/trainer/pkg/span"
	"github.com/tass-io/trainer/pkg/tools/errorutils"
	"github.com/tass-io/trainer/pkg/tracking"
	"go.uber.org/zap"
)

// CompletionMessage is the body of a successful training request
const CompletionMessage = "Training completed, check the MLflow UI for details."

// MetricAccuracy is the metric key logged for every model
const MetricAccuracy = "accuracy"

type Config struct {
	TrackingURI      string
	PrintCredentials bool
	Autolog          bool
	TestSize         float64
	Seed             int64
}

// ConfigFromViper reads the trainer keys
func ConfigFromViper() Config {
	return Config{
		TrackingURI:      viper.GetString(env.TrackingURI),
		PrintCredentials: viper.GetBool(env.TrackingPrintCredentials),
		Autolog:          viper.GetBool(env.TrackingAutolog),
		TestSize:         viper.GetFloat64(env.TestSize),
		Seed:             viper.GetInt64(env.Seed),
	}
}

// ModelResult is the outcome of one model run
type ModelResult struct {
	Name     string        `json:"name" yaml:"name"`
	RunID    string        `json:"runId" yaml:"runId"`
	Accuracy float64       `json:"accuracy" yaml:"accuracy"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Report summarizes a training cycle, on failure it holds the models finished before it
type Report struct {
	TrainSize int           `json:"trainSize" yaml:"trainSize"`
	TestSize  int           `json:"testSize" yaml:"testSize"`
	Models    []ModelResult `json:"models" yaml:"models"`
	Elapsed   time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Trainer is safe for concurrent use, every Run builds its own estimators and split
type Trainer struct {
	models  *registry.Models
	client  tracking.Client
	autolog *tracking.Autolog
	session *tracking.Session
	cfg     Config
}

func New(models *registry.Models, client tracking.Client, autolog *tracking.Autolog, cfg Config) *Trainer {
	return &Trainer{
		models:  models,
		client:  client,
		autolog: autolog,
		session: tracking.NewSession(client, autolog),
		cfg:     cfg,
	}
}

// Run trains every model in registry order. The first failing model stops the
// cycle: models before it are already logged, its own run is closed as FAILED
// and later models are never attempted.
// A cycle is never cancelled once started: only the values of ctx, such as
// the caller's span, are carried into the tracking calls.
func (t *Trainer) Run(ctx context.Context) (report *Report, err error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	cycle := span.NewSpan("train", span.ParentFromContext(ctx))
	cycle.Start()
	defer func() {
		r := recover()
		result := "success"
		if r != nil {
			result = "failure"
			cycle.Fail(fmt.Errorf("panic: %v", r))
		} else if err != nil {
			result = "failure"
			cycle.Fail(err)
		}
		prom.TrainingRequests.WithLabelValues(result).Inc()
		cycle.Finish()
		if r != nil {
			panic(r)
		}
	}()

	if t.cfg.Autolog && t.autolog.Enable() {
		zap.S().Infow("autolog enabled")
	}

	target := tracking.Resolve(t.cfg.TrackingURI)
	if t.cfg.PrintCredentials {
		zap.S().Infow("tracking target", "uri", target.URI, "username", target.Username, "password", target.Password)
	} else {
		zap.S().Infow("tracking target", "target", target.String())
	}
	t.client.Configure(target)

	ds, err := dataset.Load()
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	split, err := dataset.TrainTestSplit(ds, t.cfg.TestSize, t.cfg.Seed)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	report = &Report{
		TrainSize: len(split.YTrain),
		TestSize:  len(split.YTest),
	}
	cycle.SetTag("train_size", report.TrainSize)
	cycle.SetTag("test_size", report.TestSize)

	for _, entry := range t.models.Entries() {
		result, err := t.runModel(ctx, cycle, entry, split)
		if err != nil {
			zap.S().Errorw("model training error, abort", "model", entry.Name, "err", err)
			report.Elapsed = time.Since(start)
			return report, err
		}
		zap.S().Infow("model trained", "model", result.Name, "run", result.RunID, "accuracy", result.Accuracy, "duration", result.Duration)
		report.Models = append(report.Models, *result)
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

func (t *Trainer) runModel(ctx context.Context, cycle *span.Span, entry registry.Entry, split *dataset.Split) (*ModelResult, error) {
	sp := cycle.Child(entry.Name)
	sp.Start()
	defer sp.Finish()
	sp.SetTag("model", entry.Name)
	ctx = span.ContextWithSpan(ctx, sp)

	result := &ModelResult{Name: entry.Name}
	start := time.Now()
	err := t.session.WithRun(ctx, entry.Name, func(run *tracking.ActiveRun) error {
		result.RunID = run.ID
		estimator := entry.New()
		if err := run.Autolog(ctx, estimator.Params()); err != nil {
			return errorutils.NewTrainingError(entry.Name, errorutils.StageLog, err)
		}
		if err := estimator.Fit(split.XTrain, split.YTrain); err != nil {
			return errorutils.NewTrainingError(entry.Name, errorutils.StageFit, err)
		}
		predicted, err := estimator.Predict(split.XTest)
		if err != nil {
			return errorutils.NewTrainingError(entry.Name, errorutils.StagePredict, err)
		}
		accuracy, err := classifier.Accuracy(split.YTest, predicted)
		if err != nil {
			return errorutils.NewTrainingError(entry.Name, errorutils.StageScore, err)
		}
		result.Accuracy = accuracy
		if err := run.LogMetric(ctx, MetricAccuracy, accuracy); err != nil {
			return errorutils.NewTrainingError(entry.Name, errorutils.StageLog, err)
		}
		return nil
	})
	result.Duration = time.Since(start)
	prom.ModelDuration.WithLabelValues(entry.Name).Observe(result.Duration.Seconds())

	if err != nil {
		var trainingErr *errorutils.TrainingError
		if !errors.As(err, &trainingErr) {
			stage := errorutils.StageLog
			if result.RunID == "" {
				stage = errorutils.StageOpen
			}
			err = errorutils.NewTrainingError(entry.Name, stage, err)
		}
		prom.ModelRuns.WithLabelValues(entry.Name, string(tracking.RunStatusFailed)).Inc()
		sp.Fail(err)
		return nil, err
	}
	prom.ModelRuns.WithLabelValues(entry.Name, string(tracking.RunStatusFinished)).Inc()
	prom.ModelAccuracy.WithLabelValues(entry.Name).Set(result.Accuracy)
	sp.SetTag(MetricAccuracy, result.Accuracy)
	sp.SetTag("run_id", result.RunID)
	return result, nil
}

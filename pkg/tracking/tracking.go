// Package tracking records training runs into an experiment-tracking backend.
//
// A Client talks to one backend (MLflow, a local YAML directory, Redis or
// memory). A Session scopes runs on top of a Client: every run opened through
// Session.WithRun is closed again, whatever the callback returns.
package tracking

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tass-io/trainer/pkg/env"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
	RunStatusKilled   RunStatus = "KILLED"
)

// Metric is a single scalar logged against a run
type Metric struct {
	Key       string    `json:"key" yaml:"key"`
	Value     float64   `json:"value" yaml:"value"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Step      int64     `json:"step" yaml:"step"`
}

// Run is a named tracking record for one training attempt
type Run struct {
	ID           string            `json:"run_id" yaml:"run_id"`
	Name         string            `json:"run_name" yaml:"run_name"`
	ExperimentID string            `json:"experiment_id" yaml:"experiment_id"`
	Status       RunStatus         `json:"status" yaml:"status"`
	StartTime    time.Time         `json:"start_time" yaml:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Params       map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
	Metrics      []Metric          `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Target is where a Client sends its records
type Target struct {
	URI      string
	Username string
	Password string
}

// String hides the password
func (t Target) String() string {
	return fmt.Sprintf("%s (user %s, password %s)", t.URI, t.Username, Mask(t.Password))
}

// Mask replaces a non-empty secret with a fixed placeholder
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "******"
}

// Resolve builds the target for uri. Credentials come from the
// MLFLOW_TRACKING_USERNAME / MLFLOW_TRACKING_PASSWORD variables and fall back
// to fixed placeholders, which are not secrets.
func Resolve(uri string) Target {
	return Target{
		URI:      uri,
		Username: lookupEnv(env.EnvTrackingUsername, env.DefaultUsername),
		Password: lookupEnv(env.EnvTrackingPassword, env.DefaultPassword),
	}
}

func lookupEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

// Client is a tracking backend.
//
// Configure points the client at a target. It may be called on every request;
// clients shared by concurrent requests keep whichever target was configured last.
type Client interface {
	Configure(target Target)
	CreateRun(ctx context.Context, name string) (*Run, error)
	LogMetric(ctx context.Context, runID string, metric Metric) error
	LogParams(ctx context.Context, runID string, params map[string]string) error
	UpdateRun(ctx context.Context, runID string, status RunStatus, end time.Time) error
}

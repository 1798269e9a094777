// Package memory is an in-process tracking backend, used by tests and dry runs
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/tass-io/trainer/pkg/tracking"
)

var ErrRunNotFound = errors.New("run not found")

// Store keeps runs in creation order
type Store struct {
	mu         sync.Mutex
	target     tracking.Target
	configured int
	runs       []*tracking.Run
	byID       map[string]*tracking.Run
}

var _ tracking.Client = &Store{}

func New() *Store {
	return &Store{byID: make(map[string]*tracking.Run)}
}

func (s *Store) Configure(target tracking.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = target
	s.configured++
}

func (s *Store) CreateRun(ctx context.Context, name string) (*tracking.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := &tracking.Run{
		ID:           xid.New().String(),
		Name:         name,
		ExperimentID: "0",
		Status:       tracking.RunStatusRunning,
		StartTime:    time.Now(),
		Params:       map[string]string{},
	}
	s.runs = append(s.runs, run)
	s.byID[run.ID] = run
	return copyRun(run), nil
}

func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.byID[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Metrics = append(run.Metrics, metric)
	return nil
}

func (s *Store) LogParams(ctx context.Context, runID string, params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.byID[runID]
	if !ok {
		return ErrRunNotFound
	}
	for k, v := range params {
		if old, existed := run.Params[k]; existed && old != v {
			return errors.New("param " + k + " already logged with a different value")
		}
		run.Params[k] = v
	}
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, runID string, status tracking.RunStatus, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.byID[runID]
	if !ok {
		return ErrRunNotFound
	}
	run.Status = status
	run.EndTime = &end
	return nil
}

// Runs returns copies of every run in creation order
func (s *Store) Runs() []tracking.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]tracking.Run, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, *copyRun(r))
	}
	return out
}

// Target returns the last configured target and how many times Configure was called
func (s *Store) Target() (tracking.Target, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target, s.configured
}

// Reset drops all runs
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = nil
	s.byID = make(map[string]*tracking.Run)
}

func copyRun(r *tracking.Run) *tracking.Run {
	c := *r
	c.Params = make(map[string]string, len(r.Params))
	for k, v := range r.Params {
		c.Params[k] = v
	}
	c.Metrics = append([]tracking.Metric{}, r.Metrics...)
	if r.EndTime != nil {
		end := *r.EndTime
		c.EndTime = &end
	}
	return &c
}

// Package localstore persists runs as YAML files, one file per run, under
// <dir>/<experiment>/<run id>.yaml
package localstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/tass-io/trainer/pkg/tracking"
	"github.com/tass-io/trainer/pkg/utils/locker"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const fileScheme = "file://"

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	mu         sync.RWMutex
	dir        string
	experiment string
	locks      *locker.MapLocker
}

var _ tracking.Client = &Store{}

// New stores runs of experiment below dir
func New(dir, experiment string) *Store {
	return &Store{
		dir:        dir,
		experiment: experiment,
		locks:      locker.NewMapLocker(),
	}
}

// Configure switches the root directory when the target is a file:// uri,
// other targets keep the current directory
func (s *Store) Configure(target tracking.Target) {
	if !strings.HasPrefix(target.URI, fileScheme) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = strings.TrimPrefix(target.URI, fileScheme)
}

func (s *Store) experimentDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filepath.Join(s.dir, s.experiment)
}

func (s *Store) path(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\.`) {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(s.experimentDir(), runID+".yaml"), nil
}

func (s *Store) CreateRun(ctx context.Context, name string) (*tracking.Run, error) {
	dir := s.experimentDir()
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, err
	}
	run := &tracking.Run{
		ID:           xid.New().String(),
		Name:         name,
		ExperimentID: s.experiment,
		Status:       tracking.RunStatusRunning,
		StartTime:    time.Now(),
	}
	p, err := s.path(run.ID)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(run.ID)
	defer s.locks.Unlock(run.ID)
	if err := write(p, run); err != nil {
		return nil, err
	}
	zap.S().Debugw("local run created", "run", run.ID, "path", p)
	return run, nil
}

// update loads a run, applies fn and writes it back while holding the run lock
func (s *Store) update(runID string, fn func(run *tracking.Run) error) error {
	p, err := s.path(runID)
	if err != nil {
		return err
	}
	s.locks.Lock(runID)
	defer s.locks.Unlock(runID)
	run, err := read(p)
	if err != nil {
		return err
	}
	if err := fn(run); err != nil {
		return err
	}
	return write(p, run)
}

func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	return s.update(runID, func(run *tracking.Run) error {
		run.Metrics = append(run.Metrics, metric)
		return nil
	})
}

func (s *Store) LogParams(ctx context.Context, runID string, params map[string]string) error {
	return s.update(runID, func(run *tracking.Run) error {
		if run.Params == nil {
			run.Params = make(map[string]string, len(params))
		}
		for k, v := range params {
			if old, ok := run.Params[k]; ok && old != v {
				return fmt.Errorf("param %s already logged with value %s", k, old)
			}
			run.Params[k] = v
		}
		return nil
	})
}

func (s *Store) UpdateRun(ctx context.Context, runID string, status tracking.RunStatus, end time.Time) error {
	return s.update(runID, func(run *tracking.Run) error {
		run.Status = status
		run.EndTime = &end
		return nil
	})
}

// GetRun reads one run back
func (s *Store) GetRun(runID string) (*tracking.Run, error) {
	p, err := s.path(runID)
	if err != nil {
		return nil, err
	}
	s.locks.Lock(runID)
	defer s.locks.Unlock(runID)
	return read(p)
}

// ListRuns returns every run of the experiment ordered by start time
func (s *Store) ListRuns() ([]*tracking.Run, error) {
	files, err := filepath.Glob(filepath.Join(s.experimentDir(), "*.yaml"))
	if err != nil {
		return nil, err
	}
	runs := make([]*tracking.Run, 0, len(files))
	for _, f := range files {
		run, err := s.GetRun(strings.TrimSuffix(filepath.Base(f), ".yaml"))
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.Before(runs[j].StartTime)
	})
	return runs, nil
}

func read(p string) (*tracking.Run, error) {
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	run := &tracking.Run{}
	if err := yaml.Unmarshal(data, run); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return run, nil
}

// write replaces the file atomically
func write(p string, run *tracking.Run) error {
	data, err := yaml.Marshal(run)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0664); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

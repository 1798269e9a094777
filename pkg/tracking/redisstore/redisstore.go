// Package redisstore persists runs in Redis.
//
// Layout, with prefix "trainer":
//
//	trainer:run:<id>              hash   name, experiment_id, status, start_time, end_time
//	trainer:run:<id>:params       hash   param -> value
//	trainer:run:<id>:metrics      list   json encoded metrics in logging order
//	trainer:experiment:<name>     list   run ids in creation order
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/xid"
	"github.com/tass-io/trainer/pkg/tracking"
	"go.uber.org/zap"
)

const (
	prefix = "trainer"

	fieldName       = "name"
	fieldExperiment = "experiment_id"
	fieldStatus     = "status"
	fieldStart      = "start_time"
	fieldEnd        = "end_time"
)

var ErrRunNotFound = errors.New("run not found")

type Store struct {
	mu         sync.RWMutex
	rdb        *redis.Client
	uri        string
	retired    []*redis.Client
	experiment string
}

var _ tracking.Client = &Store{}

// New wraps an existing redis client
func New(rdb *redis.Client, experiment string) *Store {
	return &Store{rdb: rdb, experiment: experiment}
}

// Dial connects to addr
func Dial(addr, password string, db int, experiment string) *Store {
	return New(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), experiment)
}

// Configure reconnects when the target is a redis:// or rediss:// uri that
// differs from the current one, other targets keep the current connection.
// Credentials come from the uri. The replaced client stays open for calls
// still holding it and is released by Close.
func (s *Store) Configure(target tracking.Target) {
	if !strings.HasPrefix(target.URI, "redis://") && !strings.HasPrefix(target.URI, "rediss://") {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if target.URI == s.uri {
		return
	}
	opts, err := redis.ParseURL(target.URI)
	if err != nil {
		zap.S().Errorw("redis tracking uri parse error", "err", err)
		return
	}
	if s.rdb != nil {
		s.retired = append(s.retired, s.rdb)
	}
	s.rdb = redis.NewClient(opts)
	s.uri = target.URI
	zap.S().Debugw("redis tracking store reconnected", "addr", opts.Addr, "db", opts.DB)
}

func (s *Store) client() *redis.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rdb
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.client().Ping(ctx).Err()
}

// Close releases the current connection and every replaced one
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, rdb := range append(s.retired, s.rdb) {
		if rdb == nil {
			continue
		}
		if err := rdb.Close(); err != nil && first == nil {
			first = err
		}
	}
	s.retired = nil
	return first
}

func runKey(id string) string {
	return prefix + ":run:" + id
}

func experimentKey(name string) string {
	return prefix + ":experiment:" + name
}

func (s *Store) CreateRun(ctx context.Context, name string) (*tracking.Run, error) {
	run := &tracking.Run{
		ID:           xid.New().String(),
		Name:         name,
		ExperimentID: s.experiment,
		Status:       tracking.RunStatusRunning,
		StartTime:    time.Now(),
	}
	_, err := s.client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, runKey(run.ID),
			fieldName, run.Name,
			fieldExperiment, run.ExperimentID,
			fieldStatus, string(run.Status),
			fieldStart, run.StartTime.Format(time.RFC3339Nano),
		)
		pipe.RPush(ctx, experimentKey(s.experiment), run.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) exists(ctx context.Context, rdb *redis.Client, runID string) error {
	n, err := rdb.Exists(ctx, runKey(runID)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (s *Store) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	rdb := s.client()
	if err := s.exists(ctx, rdb, runID); err != nil {
		return err
	}
	data, err := json.Marshal(metric)
	if err != nil {
		return err
	}
	return rdb.RPush(ctx, runKey(runID)+":metrics", data).Err()
}

func (s *Store) LogParams(ctx context.Context, runID string, params map[string]string) error {
	rdb := s.client()
	if err := s.exists(ctx, rdb, runID); err != nil {
		return err
	}
	key := runKey(runID) + ":params"
	for k, v := range params {
		set, err := rdb.HSetNX(ctx, key, k, v).Result()
		if err != nil {
			return err
		}
		if set {
			continue
		}
		old, err := rdb.HGet(ctx, key, k).Result()
		if err != nil {
			return err
		}
		if old != v {
			return fmt.Errorf("param %s already logged with value %s", k, old)
		}
	}
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, runID string, status tracking.RunStatus, end time.Time) error {
	rdb := s.client()
	if err := s.exists(ctx, rdb, runID); err != nil {
		return err
	}
	return rdb.HSet(ctx, runKey(runID),
		fieldStatus, string(status),
		fieldEnd, end.Format(time.RFC3339Nano),
	).Err()
}

// GetRun reads a run with its params and metrics
func (s *Store) GetRun(ctx context.Context, runID string) (*tracking.Run, error) {
	rdb := s.client()
	fields, err := rdb.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrRunNotFound
	}
	run := &tracking.Run{
		ID:           runID,
		Name:         fields[fieldName],
		ExperimentID: fields[fieldExperiment],
		Status:       tracking.RunStatus(fields[fieldStatus]),
	}
	if run.StartTime, err = time.Parse(time.RFC3339Nano, fields[fieldStart]); err != nil {
		return nil, fmt.Errorf("run %s start time: %w", runID, err)
	}
	if v, ok := fields[fieldEnd]; ok {
		end, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("run %s end time: %w", runID, err)
		}
		run.EndTime = &end
	}

	if run.Params, err = rdb.HGetAll(ctx, runKey(runID)+":params").Result(); err != nil {
		return nil, err
	}
	raw, err := rdb.LRange(ctx, runKey(runID)+":metrics", 0, -1).Result()
	if err != nil {
		return nil, err
	}
	for _, r := range raw {
		var m tracking.Metric
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("run %s metric: %w", runID, err)
		}
		run.Metrics = append(run.Metrics, m)
	}
	return run, nil
}

// RunIDs lists the run ids of the experiment in creation order
func (s *Store) RunIDs(ctx context.Context) ([]string, error) {
	return s.client().LRange(ctx, experimentKey(s.experiment), 0, -1).Result()
}

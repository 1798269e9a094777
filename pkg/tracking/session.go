package tracking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Autolog is the process-wide switch for automatic parameter logging.
// Enabling it any number of times is harmless.
type Autolog struct {
	enabled atomic.Bool
}

// Enable turns autologging on and reports whether this call changed the state
func (a *Autolog) Enable() bool {
	return a.enabled.CompareAndSwap(false, true)
}

// Disable turns autologging off
func (a *Autolog) Disable() {
	a.enabled.Store(false)
}

func (a *Autolog) Enabled() bool {
	return a != nil && a.enabled.Load()
}

// Session scopes runs on a Client
type Session struct {
	client  Client
	autolog *Autolog
}

func NewSession(client Client, autolog *Autolog) *Session {
	return &Session{client: client, autolog: autolog}
}

// ActiveRun is a run opened by Session.WithRun, valid only inside the callback
type ActiveRun struct {
	*Run
	session      *Session
	paramsLogged sync.Once
}

// LogMetric records one scalar against the run
func (a *ActiveRun) LogMetric(ctx context.Context, key string, value float64) error {
	return a.session.client.LogMetric(ctx, a.ID, Metric{
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
	})
}

// Autolog records the estimator parameters when autologging is enabled.
// Parameters are logged at most once per run.
func (a *ActiveRun) Autolog(ctx context.Context, params map[string]string) error {
	if !a.session.autolog.Enabled() || len(params) == 0 {
		return nil
	}
	var err error
	a.paramsLogged.Do(func() {
		err = a.session.client.LogParams(ctx, a.ID, params)
	})
	return err
}

// WithRun opens a run called name, calls fn and closes the run on every path:
// FINISHED when fn returns nil, FAILED when it returns an error or panics.
// The error (or panic) of fn is passed through after the run is closed.
func (s *Session) WithRun(ctx context.Context, name string, fn func(run *ActiveRun) error) (err error) {
	run, err := s.client.CreateRun(ctx, name)
	if err != nil {
		return fmt.Errorf("open run %s: %w", name, err)
	}
	zap.S().Debugw("run opened", "run", run.ID, "name", name)

	defer func() {
		r := recover()
		status := RunStatusFinished
		if r != nil || err != nil {
			status = RunStatusFailed
		}
		// the run is closed even when the request context is gone
		cerr := s.client.UpdateRun(context.WithoutCancel(ctx), run.ID, status, time.Now())
		if cerr != nil {
			zap.S().Errorw("close run error", "run", run.ID, "name", name, "err", cerr)
			if err == nil && r == nil {
				err = fmt.Errorf("close run %s: %w", name, cerr)
			}
		} else {
			zap.S().Debugw("run closed", "run", run.ID, "name", name, "status", status)
		}
		if r != nil {
			panic(r)
		}
	}()

	return fn(&ActiveRun{Run: run, session: s})
}

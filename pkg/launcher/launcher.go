// Package launcher starts the tracking UI as a supervised background process.
//
// Every Launch starts a new process, nothing is deduplicated: two overlapping
// launches of a UI bound to a fixed port contend for that port and the loser
// exits with an error, which is recorded on its Task and never reaches the caller.
package launcher

import (
	"context"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/rs/xid"
	"github.com/tass-io/trainer/pkg/prom"
	"github.com/tass-io/trainer/pkg/tools/errorutils"
	"go.uber.org/zap"
)

type Status int32

const (
	Starting  Status = 0
	Running   Status = 1
	Exited    Status = 2
	Failed    Status = 3
	Cancelled Status = 4
)

func (s Status) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exited:
		return "exited"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Task is one launched process
type Task struct {
	ID        string
	Command   string
	StartedAt time.Time

	status int32
	pid    int32
	cancel context.CancelFunc
	done   chan struct{}
	lock   sync.Mutex
	err    error
}

// Cancel kills the process, it is safe to call at any time
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the process is gone
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err is the start or exit error, valid after Done is closed
func (t *Task) Err() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.err
}

func (t *Task) Status() Status {
	return Status(atomic.LoadInt32(&t.status))
}

func (t *Task) setStatus(s Status) {
	atomic.StoreInt32(&t.status, int32(s))
}

// TaskInfo is a snapshot of a task
type TaskInfo struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	Pid       int       `json:"pid"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
}

func (t *Task) Info() TaskInfo {
	return TaskInfo{
		ID:        t.ID,
		Command:   t.Command,
		Pid:       int(atomic.LoadInt32(&t.pid)),
		Status:    t.Status().String(),
		StartedAt: t.StartedAt,
	}
}

// Launcher supervises the processes it started, live tasks are kept in a
// concurrent map keyed by task id and removed when their process exits
type Launcher struct {
	command string
	args    []string
	tasks   cmap.ConcurrentMap
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(command string, args []string) *Launcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Launcher{
		command: command,
		args:    append([]string{}, args...),
		tasks:   cmap.New(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Launch starts the command in its own goroutine and returns at once
func (l *Launcher) Launch() *Task {
	ctx, cancel := context.WithCancel(l.ctx)
	task := &Task{
		ID:        xid.New().String(),
		Command:   strings.Join(append([]string{l.command}, l.args...), " "),
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	l.tasks.Set(task.ID, task)
	prom.UILaunched.Inc()
	go l.supervise(ctx, task)
	return task
}

func (l *Launcher) supervise(ctx context.Context, task *Task) {
	defer func() {
		task.cancel()
		l.tasks.Remove(task.ID)
		close(task.done)
	}()

	cmd := exec.CommandContext(ctx, l.command, l.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		if ctx.Err() != nil {
			l.cancelled(task, ctx.Err())
			return
		}
		l.fail(task, err)
		return
	}
	atomic.StoreInt32(&task.pid, int32(cmd.Process.Pid))
	task.setStatus(Running)
	prom.UIRunning.Inc()
	zap.S().Infow("ui process started", "task", task.ID, "pid", cmd.Process.Pid, "command", task.Command)

	err := cmd.Wait()
	prom.UIRunning.Dec()
	switch {
	case ctx.Err() != nil:
		l.cancelled(task, ctx.Err())
	case err != nil:
		l.fail(task, err)
	default:
		task.setStatus(Exited)
		zap.S().Infow("ui process exited", "task", task.ID)
	}
}

func (l *Launcher) cancelled(task *Task, err error) {
	task.lock.Lock()
	task.err = err
	task.lock.Unlock()
	task.setStatus(Cancelled)
	zap.S().Infow("ui process cancelled", "task", task.ID)
}

func (l *Launcher) fail(task *Task, err error) {
	launchErr := errorutils.NewLaunchError(task.ID, task.Command, err)
	task.lock.Lock()
	task.err = launchErr
	task.lock.Unlock()
	task.setStatus(Failed)
	prom.UIFailures.Inc()
	zap.S().Errorw("ui process error", "task", task.ID, "err", launchErr)
}

// Tasks returns the live tasks, oldest first
func (l *Launcher) Tasks() []TaskInfo {
	infos := make([]TaskInfo, 0, l.tasks.Count())
	for item := range l.tasks.IterBuffered() {
		infos = append(infos, item.Val.(*Task).Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Running is the number of live processes
func (l *Launcher) Running() int {
	n := 0
	for item := range l.tasks.IterBuffered() {
		if item.Val.(*Task).Status() == Running {
			n++
		}
	}
	return n
}

// Shutdown cancels every task and waits for their processes until ctx expires.
// Launches after Shutdown are cancelled immediately.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.cancel()
	for _, v := range l.tasks.Items() {
		task := v.(*Task)
		select {
		case <-task.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

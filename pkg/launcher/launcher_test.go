package launcher

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tass-io/trainer/pkg/tools/errorutils"
)

func waitDone(task *Task) bool {
	select {
	case <-task.Done():
		return true
	case <-time.After(10 * time.Second):
		return false
	}
}

func waitRunning(l *Launcher, n int) bool {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if l.Running() == n {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestLaunchExit(t *testing.T) {
	testcases := []struct {
		caseName   string
		skipped    bool
		command    string
		args       []string
		wantStatus Status
		launchErr  bool
	}{
		{
			caseName:   "clean exit",
			command:    "true",
			wantStatus: Exited,
		},
		{
			caseName:   "non zero exit is recorded",
			command:    "false",
			wantStatus: Failed,
			launchErr:  true,
		},
		{
			caseName:   "missing binary is recorded",
			command:    "/nonexistent/mlflow",
			args:       []string{"ui"},
			wantStatus: Failed,
			launchErr:  true,
		},
	}
	for _, testcase := range testcases {
		if testcase.skipped {
			continue
		}
		Convey(testcase.caseName, t, func() {
			l := New(testcase.command, testcase.args)
			task := l.Launch()
			So(task.ID, ShouldNotBeEmpty)
			So(waitDone(task), ShouldBeTrue)
			So(task.Status(), ShouldEqual, testcase.wantStatus)
			if testcase.launchErr {
				var launchErr *errorutils.LaunchError
				So(errors.As(task.Err(), &launchErr), ShouldBeTrue)
				So(launchErr.TaskID, ShouldEqual, task.ID)
			} else {
				So(task.Err(), ShouldBeNil)
			}
			So(l.Tasks(), ShouldBeEmpty)
		})
	}
}

func TestLaunchCancel(t *testing.T) {
	Convey("a running task is killed by Cancel", t, func() {
		l := New("sleep", []string{"30"})
		task := l.Launch()
		So(waitRunning(l, 1), ShouldBeTrue)

		infos := l.Tasks()
		So(infos, ShouldHaveLength, 1)
		So(infos[0].ID, ShouldEqual, task.ID)
		So(infos[0].Status, ShouldEqual, "running")
		So(infos[0].Pid, ShouldBeGreaterThan, 0)
		So(infos[0].Command, ShouldEqual, "sleep 30")

		task.Cancel()
		So(waitDone(task), ShouldBeTrue)
		So(task.Status(), ShouldEqual, Cancelled)
		So(errors.Is(task.Err(), context.Canceled), ShouldBeTrue)
		So(l.Running(), ShouldEqual, 0)
	})
}

func TestLaunchConcurrent(t *testing.T) {
	Convey("every launch starts its own process and Shutdown stops them all", t, func() {
		l := New("sleep", []string{"30"})
		tasks := make([]*Task, 5)
		for i := range tasks {
			tasks[i] = l.Launch()
		}
		So(waitRunning(l, 5), ShouldBeTrue)
		ids := map[string]bool{}
		for _, task := range tasks {
			ids[task.ID] = true
		}
		So(ids, ShouldHaveLength, 5)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(l.Shutdown(ctx), ShouldBeNil)
		for _, task := range tasks {
			So(waitDone(task), ShouldBeTrue)
			So(task.Status(), ShouldEqual, Cancelled)
		}
		So(l.Tasks(), ShouldBeEmpty)

		Convey("launches after shutdown never run", func() {
			late := l.Launch()
			So(waitDone(late), ShouldBeTrue)
			So(late.Status(), ShouldEqual, Cancelled)
		})
	})
}

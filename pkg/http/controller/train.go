package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/tass-io/trainer/pkg/dto"
	"github.com/tass-io/trainer/pkg/launcher"
	"github.com/tass-io/trainer/pkg/span"
	"github.com/tass-io/trainer/pkg/trace"
	"github.com/tass-io/trainer/pkg/trainer"
	"go.uber.org/zap"
)

// Trainer runs one training cycle
type Trainer interface {
	Run(ctx context.Context) (*trainer.Report, error)
}

// UILauncher starts the tracking UI in the background
type UILauncher interface {
	Launch() *launcher.Task
	Tasks() []launcher.TaskInfo
	Running() int
}

type Controller struct {
	trainer  Trainer
	launcher UILauncher
	launchUI bool
}

// New returns the controller, launcher may be nil when launchUI is false
func New(t Trainer, l UILauncher, launchUI bool) *Controller {
	return &Controller{trainer: t, launcher: l, launchUI: launchUI}
}

// Train is called on GET /, it trains every model before answering
func (ctl *Controller) Train(c *gin.Context) {
	// 1. start the UI, its outcome never affects this request
	if ctl.launchUI && ctl.launcher != nil {
		task := ctl.launcher.Launch()
		zap.S().Debugw("ui launched", "task", task.ID)
	}

	// 2. detach from the connection and continue the caller's trace if it sent one
	ctx := context.WithoutCancel(c.Request.Context())
	spanContext, err := trace.SpanContextFromHeaders(c.Request.Header)
	switch err {
	case nil:
		ctx = span.WithParent(ctx, spanContext)
	case opentracing.ErrSpanContextNotFound:
	default:
		zap.S().Warnw("trace get spanContext error", "err", err)
	}

	// 3. train
	report, err := ctl.trainer.Run(ctx)
	if err != nil {
		zap.S().Errorw("training error", "err", err)
		c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	zap.S().Infow("training completed", "models", len(report.Models), "elapsed", report.Elapsed)
	c.String(http.StatusOK, trainer.CompletionMessage)
}

// UITasks lists the live UI processes
func (ctl *Controller) UITasks(c *gin.Context) {
	resp := dto.UITasksResponse{Tasks: []launcher.TaskInfo{}}
	if ctl.launcher != nil {
		resp.Tasks = ctl.launcher.Tasks()
		resp.Running = ctl.launcher.Running()
	}
	c.JSON(http.StatusOK, resp)
}

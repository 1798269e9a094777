package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tass-io/trainer/pkg/http/controller"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

type Options struct {
	// Rate is a limiter formatted rate for the training route, like "100-S"
	Rate  string
	Debug bool
}

// RegisterRoute registers http routes
func RegisterRoute(r *gin.Engine, ctl *controller.Controller, opts Options) error {
	r.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		MaxAge: 12 * time.Hour,
	}))

	limit, err := limitMiddleware(opts.Rate)
	if err != nil {
		return err
	}
	r.GET("/", limit, ctl.Train)
	r.GET("/docs", controller.Docs)
	uiRoute := r.Group("/ui")
	{
		uiRoute.GET("/tasks", ctl.UITasks)
	}
	r.GET("/metrics", prometheusHandler())

	if opts.Debug {
		pprof.Register(r)
	}
	return nil
}

func limitMiddleware(rate string) (gin.HandlerFunc, error) {
	zap.S().Infow("limiter rate", "rate", rate)
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, err
	}
	return mgin.NewMiddleware(limiter.New(memory.NewStore(), r)), nil
}

func prometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()

	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

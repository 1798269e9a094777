package trace

import (
	"io"
	"net/http"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/spf13/viper"
	"github.com/tass-io/trainer/pkg/env"
	"github.com/uber/jaeger-client-go"
	tracer_config "github.com/uber/jaeger-client-go/config"
	"go.uber.org/zap"
)

const serviceName = "trainer"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// TraceInit installs a jaeger tracer as the global tracer when an agent is configured.
// Without an agent the opentracing noop tracer stays in place.
func TraceInit() (io.Closer, error) {
	agent := viper.GetString(env.TraceAgentHostPort)
	if agent == "" {
		zap.S().Debugw("no jaeger agent configured, tracing disabled")
		return nopCloser{}, nil
	}
	cfg := &tracer_config.Configuration{ServiceName: serviceName}
	cfg.Sampler = &tracer_config.SamplerConfig{
		Type:  jaeger.SamplerTypeConst,
		Param: 1.0,
	}
	zap.S().Infow("use jaeger agent host and port", "HostAndPort", agent)
	cfg.Reporter = &tracer_config.ReporterConfig{
		QueueSize:           100,
		BufferFlushInterval: 1 * time.Second,
		LogSpans:            false,
		LocalAgentHostPort:  agent,
	}
	return cfg.InitGlobalTracer(serviceName)
}

// SpanContextFromHeaders extracts the caller's span, if the request carries one
func SpanContextFromHeaders(header http.Header) (opentracing.SpanContext, error) {
	carrier := opentracing.HTTPHeadersCarrier(header)
	return opentracing.GlobalTracer().Extract(opentracing.HTTPHeaders, carrier)
}

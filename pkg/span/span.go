package span

import (
	"context"
	"net/http"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"go.uber.org/zap"
)

// Span is the tracing context of one training cycle or one model run.
// A cycle span is the root (or a child of the caller's span when the request
// carried one), every model run is a child of the cycle span.
type Span struct {
	name       string
	parent     opentracing.SpanContext
	sp         opentracing.Span
	startOnce  *sync.Once
	finishOnce *sync.Once
}

type parentKey struct{}

type spanKey struct{}

// WithParent stores the caller's span context, used as parent of the cycle span
func WithParent(ctx context.Context, parent opentracing.SpanContext) context.Context {
	if parent == nil {
		return ctx
	}
	return context.WithValue(ctx, parentKey{}, parent)
}

func ParentFromContext(ctx context.Context) opentracing.SpanContext {
	parent, _ := ctx.Value(parentKey{}).(opentracing.SpanContext)
	return parent
}

// ContextWithSpan stores the active span, outgoing tracking calls inject it
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	if span == nil {
		return ctx
	}
	return context.WithValue(ctx, spanKey{}, span)
}

// FromContext returns the active span or nil
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// NewSpan returns an unstarted span, parent may be nil
func NewSpan(name string, parent opentracing.SpanContext) *Span {
	return &Span{
		name:       name,
		parent:     parent,
		startOnce:  &sync.Once{},
		finishOnce: &sync.Once{},
	}
}

// Child returns an unstarted span whose parent is span
func (span *Span) Child(name string) *Span {
	var parent opentracing.SpanContext
	if span.sp != nil {
		parent = span.sp.Context()
	}
	return NewSpan(name, parent)
}

func (span *Span) GetParent() opentracing.SpanContext {
	return span.parent
}

// Start starts the span once with the global tracer
func (span *Span) Start() {
	span.startOnce.Do(func() {
		var opts []opentracing.StartSpanOption
		if span.parent != nil {
			opts = append(opts, opentracing.ChildOf(span.parent))
		}
		span.sp = opentracing.StartSpan(span.name, opts...)
	})
}

func (span *Span) SetTag(key string, value interface{}) {
	if span.sp == nil {
		return
	}
	span.sp.SetTag(key, value)
}

// Fail marks the span as errored
func (span *Span) Fail(err error) {
	if span.sp == nil || err == nil {
		return
	}
	ext.Error.Set(span.sp, true)
	span.sp.LogFields(log.Error(err))
}

func (span *Span) Finish() {
	if span.sp == nil {
		return
	}
	span.finishOnce.Do(func() {
		span.sp.Finish()
	})
}

// Inject writes the span context into outgoing headers, a nil span writes nothing
func (span *Span) Inject(header http.Header) {
	if span == nil || span.sp == nil {
		return
	}
	carrier := opentracing.HTTPHeadersCarrier(header)
	err := opentracing.GlobalTracer().Inject(span.sp.Context(), opentracing.HTTPHeaders, carrier)
	if err != nil {
		zap.S().Errorw("err at inject jaeger header", "err", err)
	}
}

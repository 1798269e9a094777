package mlflow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/tass-io/trainer/pkg/span"
	"github.com/tass-io/trainer/pkg/tracking"
	"github.com/tidwall/gjson"
)

// fakeServer answers the subset of the MLflow API the client uses
type fakeServer struct {
	mu         sync.Mutex
	experiment bool
	requests   []string
	bodies     map[string][]byte
	user, pass string
	traceIDs   []string
	failures   int32
}

func (f *fakeServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.Path)
		f.bodies[r.URL.Path] = body
		f.user, f.pass, _ = r.BasicAuth()
		if id := r.Header.Get("Mockpfx-Ids-Traceid"); id != "" {
			f.traceIDs = append(f.traceIDs, id)
		}
		hasExperiment := f.experiment
		f.mu.Unlock()

		if atomic.AddInt32(&f.failures, -1) >= 0 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		switch r.URL.Path {
		case apiPrefix + "experiments/get-by-name":
			if !hasExperiment {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"error_code":"RESOURCE_DOES_NOT_EXIST","message":"no experiment"}`)
				return
			}
			io.WriteString(w, `{"experiment":{"experiment_id":"7","name":"Default"}}`)
		case apiPrefix + "experiments/create":
			f.mu.Lock()
			f.experiment = true
			f.mu.Unlock()
			io.WriteString(w, `{"experiment_id":"7"}`)
		case apiPrefix + "runs/create":
			io.WriteString(w, `{"run":{"info":{"run_id":"abc","status":"RUNNING"}}}`)
		case apiPrefix + "runs/log-metric", apiPrefix + "runs/log-batch", apiPrefix + "runs/update":
			io.WriteString(w, `{}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error_code":"INVALID_PARAMETER_VALUE","message":"unknown endpoint"}`)
		}
	})
}

func (f *fakeServer) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.requests...)
}

func (f *fakeServer) credentials() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user, f.pass
}

func (f *fakeServer) traces() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.traceIDs...)
}

func (f *fakeServer) body(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[apiPrefix+path]
}

func newFake(failures int32) (*fakeServer, *httptest.Server) {
	f := &fakeServer{bodies: map[string][]byte{}, failures: failures}
	return f, httptest.NewServer(f.handler())
}

func TestClientRunLifecycle(t *testing.T) {
	Convey("a run is created, logged and closed", t, func() {
		fake, srv := newFake(0)
		defer srv.Close()
		c := New("Default", WithRetry(3, time.Millisecond))
		c.Configure(tracking.Target{URI: srv.URL, Username: "alice", Password: "pw"})
		ctx := context.Background()

		run, err := c.CreateRun(ctx, "LR")
		So(err, ShouldBeNil)
		So(run.ID, ShouldEqual, "abc")
		So(run.ExperimentID, ShouldEqual, "7")
		So(run.Status, ShouldEqual, tracking.RunStatusRunning)
		So(gjson.GetBytes(fake.body("runs/create"), "run_name").String(), ShouldEqual, "LR")

		So(c.LogMetric(ctx, run.ID, tracking.Metric{Key: "accuracy", Value: 0.93}), ShouldBeNil)
		metric := fake.body("runs/log-metric")
		So(gjson.GetBytes(metric, "key").String(), ShouldEqual, "accuracy")
		So(gjson.GetBytes(metric, "value").Float(), ShouldEqual, 0.93)
		So(gjson.GetBytes(metric, "timestamp").Int(), ShouldBeGreaterThan, 0)

		So(c.LogParams(ctx, run.ID, map[string]string{"b": "2", "a": "1"}), ShouldBeNil)
		So(gjson.GetBytes(fake.body("runs/log-batch"), "params.#.key").String(), ShouldEqual, `["a","b"]`)

		So(c.UpdateRun(ctx, run.ID, tracking.RunStatusFinished, time.Now()), ShouldBeNil)
		So(gjson.GetBytes(fake.body("runs/update"), "status").String(), ShouldEqual, "FINISHED")

		user, pass := fake.credentials()
		So(user, ShouldEqual, "alice")
		So(pass, ShouldEqual, "pw")
		So(fake.paths()[:2], ShouldResemble, []string{
			apiPrefix + "experiments/get-by-name",
			apiPrefix + "experiments/create",
		})

		Convey("the experiment id is cached", func() {
			_, err := c.CreateRun(ctx, "DTC")
			So(err, ShouldBeNil)
			last := fake.paths()[len(fake.paths())-1]
			So(last, ShouldEqual, apiPrefix+"runs/create")
			n := 0
			for _, p := range fake.paths() {
				if p == apiPrefix+"experiments/get-by-name" {
					n++
				}
			}
			So(n, ShouldEqual, 1)
		})
	})
}

func TestClientErrors(t *testing.T) {
	testcases := []struct {
		caseName string
		skipped  bool
		failures int32
		attempts uint
		wantErr  bool
		status   int
	}{
		{
			caseName: "transient 5xx is retried",
			failures: 2,
			attempts: 3,
		},
		{
			caseName: "persistent 5xx gives up",
			failures: 10,
			attempts: 3,
			wantErr:  true,
			status:   http.StatusBadGateway,
		},
	}
	for _, testcase := range testcases {
		if testcase.skipped {
			continue
		}
		Convey(testcase.caseName, t, func() {
			_, srv := newFake(testcase.failures)
			defer srv.Close()
			c := New("Default", WithRetry(testcase.attempts, time.Millisecond))
			c.Configure(tracking.Target{URI: srv.URL})
			err := c.LogMetric(context.Background(), "abc", tracking.Metric{Key: "accuracy", Value: 1})
			if !testcase.wantErr {
				So(err, ShouldBeNil)
				return
			}
			var apiErr *APIError
			So(errors.As(err, &apiErr), ShouldBeTrue)
			So(apiErr.StatusCode, ShouldEqual, testcase.status)
		})
	}

	Convey("4xx is not retried", t, func() {
		fake, srv := newFake(0)
		defer srv.Close()
		c := New("Default", WithRetry(3, time.Millisecond))
		c.Configure(tracking.Target{URI: srv.URL})
		_, err := c.call(context.Background(), http.MethodPost, "runs/unknown", nil, map[string]string{})
		var apiErr *APIError
		So(errors.As(err, &apiErr), ShouldBeTrue)
		So(apiErr.Code, ShouldEqual, "INVALID_PARAMETER_VALUE")
		So(fake.paths(), ShouldHaveLength, 1)
	})

	Convey("a cancelled context stops waiting between attempts", t, func() {
		fake, srv := newFake(100)
		defer srv.Close()
		c := New("Default", WithRetry(5, time.Hour))
		c.Configure(tracking.Target{URI: srv.URL})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := c.call(ctx, http.MethodGet, "experiments/get-by-name", nil, nil)
		So(err, ShouldNotBeNil)
		So(time.Since(start), ShouldBeLessThan, 5*time.Second)
		So(fake.paths(), ShouldHaveLength, 1)

		_, err = c.call(ctx, http.MethodGet, "experiments/get-by-name", nil, nil)
		So(err, ShouldEqual, context.DeadlineExceeded)
		So(fake.paths(), ShouldHaveLength, 1)
	})

	Convey("an unconfigured client refuses to send", t, func() {
		_, err := New("Default").CreateRun(context.Background(), "LR")
		So(err, ShouldEqual, ErrNotConfigured)
	})

	Convey("reconfiguring to another server drops the cached experiment", t, func() {
		c := New("Default")
		c.Configure(tracking.Target{URI: "http://a"})
		c.experimentID = "1"
		c.Configure(tracking.Target{URI: "http://a", Username: "u"})
		So(c.experimentID, ShouldEqual, "1")
		c.Configure(tracking.Target{URI: "http://b"})
		So(c.experimentID, ShouldBeEmpty)
	})
}

func TestClientPropagatesSpan(t *testing.T) {
	Convey("requests carry the span of the model being tracked", t, func() {
		tracer := mocktracer.New()
		prev := opentracing.GlobalTracer()
		opentracing.SetGlobalTracer(tracer)
		defer opentracing.SetGlobalTracer(prev)

		fake, srv := newFake(0)
		defer srv.Close()
		c := New("Default", WithRetry(1, time.Millisecond))
		c.Configure(tracking.Target{URI: srv.URL})

		sp := span.NewSpan("LR", nil)
		sp.Start()
		defer sp.Finish()
		ctx := span.ContextWithSpan(context.Background(), sp)

		run, err := c.CreateRun(ctx, "LR")
		So(err, ShouldBeNil)
		So(c.LogMetric(ctx, run.ID, tracking.Metric{Key: "accuracy", Value: 1}), ShouldBeNil)

		header := http.Header{}
		sp.Inject(header)
		want := header.Get("Mockpfx-Ids-Traceid")
		So(want, ShouldNotBeEmpty)
		traces := fake.traces()
		So(traces, ShouldNotBeEmpty)
		for _, id := range traces {
			So(id, ShouldEqual, want)
		}
		So(len(traces), ShouldEqual, len(fake.paths()))
	})
}

// Package mlflow is a tracking client for the MLflow REST API 2.0
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/tass-io/trainer/pkg/span"
	"github.com/tass-io/trainer/pkg/tracking"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	apiPrefix = "/api/2.0/mlflow/"

	errResourceDoesNotExist = "RESOURCE_DOES_NOT_EXIST"
)

var ErrNotConfigured = errors.New("mlflow client has no tracking uri")

// APIError is a non 2xx answer of the tracking server
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow api error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// retryable reports whether a failed call may succeed when sent again
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Client sends runs to an MLflow tracking server.
// The target is shared by every caller and replaced by Configure, last call wins.
type Client struct {
	mu           sync.RWMutex
	target       tracking.Target
	experiment   string
	experimentID string

	http     *http.Client
	attempts uint
	delay    time.Duration
}

var _ tracking.Client = &Client{}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default 10s timeout http client
func WithHTTPClient(c *http.Client) Option {
	return func(m *Client) {
		m.http = c
	}
}

// WithRetry sets the number of attempts and the delay between them
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(m *Client) {
		m.attempts = attempts
		m.delay = delay
	}
}

// New returns a client logging runs into the named experiment, created on first use when missing
func New(experiment string, opts ...Option) *Client {
	c := &Client{
		experiment: experiment,
		http:       &http.Client{Timeout: 10 * time.Second},
		attempts:   3,
		delay:      200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configure(target tracking.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target.URI != target.URI {
		// experiment ids are only valid on the server they came from
		c.experimentID = ""
	}
	c.target = target
}

func (c *Client) currentTarget() tracking.Target {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// call sends a request to the api endpoint and returns the response body,
// transport errors and 5xx answers are retried
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, payload interface{}) ([]byte, error) {
	target := c.currentTarget()
	if target.URI == "" {
		return nil, ErrNotConfigured
	}
	uri := strings.TrimSuffix(target.URI, "/") + apiPrefix + endpoint
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}

	var data []byte
	var lastErr error
	err := retry.Do(
		func() error {
			data, lastErr = c.send(ctx, method, uri, target, body)
			if lastErr != nil {
				zap.S().Debugw("mlflow call failed", "endpoint", endpoint, "err", lastErr)
			}
			return lastErr
		},
		retry.RetryIf(retryable),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.Context(ctx),
	)
	if err != nil {
		// a context done before the first attempt leaves no call error
		if lastErr == nil {
			return nil, err
		}
		return nil, lastErr
	}
	return data, nil
}

func (c *Client) send(ctx context.Context, method, uri string, target tracking.Target, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, uri, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if target.Username != "" || target.Password != "" {
		req.SetBasicAuth(target.Username, target.Password)
	}
	span.FromContext(ctx).Inject(req.Header)
	rsp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()
	data, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, err
	}
	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: rsp.StatusCode,
			Code:       gjson.GetBytes(data, "error_code").String(),
			Message:    gjson.GetBytes(data, "message").String(),
		}
	}
	return data, nil
}

// experimentByName returns the experiment id, creating the experiment when it does not exist
func (c *Client) experimentByName(ctx context.Context) (string, error) {
	c.mu.RLock()
	id := c.experimentID
	c.mu.RUnlock()
	if id != "" {
		return id, nil
	}

	data, err := c.call(ctx, http.MethodGet, "experiments/get-by-name", url.Values{"experiment_name": {c.experiment}}, nil)
	var apiErr *APIError
	switch {
	case err == nil:
		id = gjson.GetBytes(data, "experiment.experiment_id").String()
	case errors.As(err, &apiErr) && apiErr.Code == errResourceDoesNotExist:
		zap.S().Infow("create mlflow experiment", "experiment", c.experiment)
		data, err = c.call(ctx, http.MethodPost, "experiments/create", nil, map[string]interface{}{"name": c.experiment})
		if err != nil {
			return "", err
		}
		id = gjson.GetBytes(data, "experiment_id").String()
	default:
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("no experiment id for %s", c.experiment)
	}

	c.mu.Lock()
	c.experimentID = id
	c.mu.Unlock()
	return id, nil
}

func millis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func (c *Client) CreateRun(ctx context.Context, name string) (*tracking.Run, error) {
	experimentID, err := c.experimentByName(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	data, err := c.call(ctx, http.MethodPost, "runs/create", nil, map[string]interface{}{
		"experiment_id": experimentID,
		"run_name":      name,
		"start_time":    millis(start),
		"tags": []map[string]string{
			{"key": "mlflow.runName", "value": name},
		},
	})
	if err != nil {
		return nil, err
	}
	info := gjson.GetBytes(data, "run.info")
	id := info.Get("run_id").String()
	if id == "" {
		id = info.Get("run_uuid").String()
	}
	if id == "" {
		return nil, fmt.Errorf("mlflow runs/create returned no run id: %s", string(data))
	}
	return &tracking.Run{
		ID:           id,
		Name:         name,
		ExperimentID: experimentID,
		Status:       tracking.RunStatus(info.Get("status").String()),
		StartTime:    start,
	}, nil
}

func (c *Client) LogMetric(ctx context.Context, runID string, metric tracking.Metric) error {
	ts := metric.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := c.call(ctx, http.MethodPost, "runs/log-metric", nil, map[string]interface{}{
		"run_id":    runID,
		"key":       metric.Key,
		"value":     metric.Value,
		"timestamp": millis(ts),
		"step":      metric.Step,
	})
	return err
}

func (c *Client) LogParams(ctx context.Context, runID string, params map[string]string) error {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		batch = append(batch, map[string]string{"key": k, "value": params[k]})
	}
	_, err := c.call(ctx, http.MethodPost, "runs/log-batch", nil, map[string]interface{}{
		"run_id": runID,
		"params": batch,
	})
	return err
}

func (c *Client) UpdateRun(ctx context.Context, runID string, status tracking.RunStatus, end time.Time) error {
	_, err := c.call(ctx, http.MethodPost, "runs/update", nil, map[string]interface{}{
		"run_id":   runID,
		"status":   string(status),
		"end_time": millis(end),
	})
	return err
}

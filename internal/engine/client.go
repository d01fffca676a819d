package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// Client is the interface for talking to the external analysis engine.
type Client interface {
	StartAnalysis(ctx context.Context, req StartRequest) (*models.StartAccepted, error)
	CheckStatus(ctx context.Context, taskID string) (*models.TaskStatus, error)
}

// StartRequest describes one analysis to dispatch.
type StartRequest struct {
	ProductID string
	URL       string
	Keywords  []string
}

// HTTPClient implements Client against the engine's HTTP API, shielding the
// rest of the system from failure storms: every logical call runs under one
// overall deadline, transient failures are retried with exponential backoff,
// and the whole thing sits behind a shared circuit breaker.
type HTTPClient struct {
	baseURL     string
	callbackURL string
	client      *http.Client
	breaker     *Breaker

	timeout    time.Duration
	maxRetries int
	retryBase  time.Duration
}

// NewHTTPClient creates a new engine client. The breaker is shared across all
// concurrent calls made through this client.
func NewHTTPClient(baseURL, callbackURL string, timeout time.Duration, maxRetries int, retryBase time.Duration, breaker *Breaker) *HTTPClient {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if retryBase <= 0 {
		retryBase = time.Second
	}
	return &HTTPClient{
		baseURL:     baseURL,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
		breaker:     breaker,
		timeout:     timeout,
		maxRetries:  maxRetries,
		retryBase:   retryBase,
	}
}

func (c *HTTPClient) StartAnalysis(ctx context.Context, req StartRequest) (*models.StartAccepted, error) {
	body := map[string]any{
		"product_id":   req.ProductID,
		"callback_url": c.callbackURL,
	}
	if req.URL != "" {
		body["url"] = req.URL
	}
	if len(req.Keywords) > 0 {
		body["keywords"] = req.Keywords
	}

	var accepted models.StartAccepted
	err := c.do(ctx, "start_analysis", func(ctx context.Context) error {
		return c.postJSON(ctx, c.baseURL+"/analyze", body, &accepted)
	})
	if err != nil {
		return nil, err
	}
	return &accepted, nil
}

func (c *HTTPClient) CheckStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	u := fmt.Sprintf("%s/status/%s", c.baseURL, url.PathEscape(taskID))

	var status models.TaskStatus
	err := c.do(ctx, "check_status", func(ctx context.Context) error {
		return c.getJSON(ctx, u, &status)
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// do runs one logical call: breaker gate, overall deadline, retry loop.
// Rejections (4xx) count as a healthy engine for breaker purposes; only
// transport failures, 5xx storms and timeouts feed the error rate.
func (c *HTTPClient) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := c.breaker.Allow(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.EngineRetries.Inc()
			delay := c.retryBase * (1 << attempt)
			slog.Warn("engine call retrying",
				"operation", op, "attempt", attempt+1, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(delay):
			}
			if ctx.Err() != nil {
				break
			}
		}

		err = fn(ctx)
		if err == nil {
			c.breaker.Record(true)
			metrics.EngineRequestDuration.WithLabelValues(op, "ok").Observe(time.Since(start).Seconds())
			return nil
		}
		if errors.Is(err, ErrRejected) || ctx.Err() != nil {
			break
		}
	}

	err = classifyError(err)
	// The engine answered; a rejection is not a dependency failure.
	c.breaker.Record(errors.Is(err, ErrRejected))
	metrics.EngineRequestDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
	return fmt.Errorf("%s: %w", op, err)
}

func (c *HTTPClient) postJSON(ctx context.Context, u string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.roundTrip(httpReq, out)
}

func (c *HTTPClient) getJSON(ctx context.Context, u string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	return c.roundTrip(httpReq, out)
}

func (c *HTTPClient) roundTrip(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding engine response: %w", err)
		}
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	default:
		return fmt.Errorf("engine server error: status %d", resp.StatusCode)
	}
}

// classifyError maps a final attempt error onto the client's taxonomy.
func classifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRejected), errors.Is(err, ErrTimeout), errors.Is(err, ErrConnection):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

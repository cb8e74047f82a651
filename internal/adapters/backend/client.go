package backend

import (
	"bytes"
	"context"
	"dispatch-route-service/internal/domain"
	"dispatch-route-service/internal/platform/obs"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client talks to the dispatch backend REST API. It implements
// ports.GeocodeClient, ports.SequenceBackend and ports.OrderSource.
//
// Reads are retried on transient failures; geocode batches and sequence
// writes are sent exactly once. The client is safe for concurrent use.
type Client struct {
	session      *http.Client
	baseURL      string
	token        string
	limiter      *rate.Limiter
	readAttempts int
	backoff      time.Duration
}

type Options struct {
	Timeout      time.Duration
	RateLimit    float64 // requests per second; 0 disables limiting
	Burst        int
	ReadAttempts int
}

func NewClient(baseURL, token string, opts Options) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend client: base url is empty")
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ReadAttempts < 1 {
		opts.ReadAttempts = 1
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Client{
		session:      &http.Client{Timeout: opts.Timeout},
		baseURL:      baseURL,
		token:        token,
		limiter:      limiter,
		readAttempts: opts.ReadAttempts,
		backoff:      200 * time.Millisecond,
	}, nil
}

// envelope is the common response shape of the backend.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

func (c *Client) newRequest(
	ctx context.Context,
	method string,
	path string,
	body any,
) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if id := obs.RequestID(ctx); id != "-" {
		req.Header.Set("X-Request-Id", id)
	}

	return req, nil
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := c.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// doWithRetry retries transient failures (network errors, 429 and 5xx
// responses) using exponential backoff while respecting context cancellation.
// Only idempotent reads go through here.
func (c *Client) doWithRetry(
	ctx context.Context,
	makeReq func() (*http.Request, error),
) (*http.Response, error) {
	backoff := c.backoff

	var lastErr error

	for attempt := 1; attempt <= c.readAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}

		resp, err := c.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) || attempt == c.readAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		backoff *= 2
	}

	return nil, lastErr
}

func retryable(err error) bool {
	var he *httpStatusError
	if errors.As(err, &he) {
		switch he.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// decode reads the envelope and unmarshals Data into out (when non-nil).
// success=false is reported as a BackendError of kind rejected.
func decode(resp *http.Response, op string, out any, rejected error) error {
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &domain.BackendError{Op: op, Status: resp.StatusCode, Message: "decode response: " + err.Error(), Err: domain.ErrNetwork}
	}
	if !env.Success {
		return &domain.BackendError{Op: op, Status: resp.StatusCode, Message: env.Message, Err: rejected}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &domain.BackendError{Op: op, Status: resp.StatusCode, Message: "decode data: " + err.Error(), Err: domain.ErrNetwork}
	}
	return nil
}

// classify turns a transport or status error into a BackendError. A
// rejection (4xx other than 408 and 429) is reported as the caller's
// rejected kind, except that authentication failures never count as a
// sequence conflict. Everything else, including timeouts, is a network
// failure.
func classify(op string, err error, rejected error) error {
	var be *domain.BackendError
	if errors.As(err, &be) {
		return be
	}

	var he *httpStatusError
	if errors.As(err, &he) {
		kind := domain.ErrNetwork
		if rejection(he.Code) {
			kind = rejected
		}
		if kind == domain.ErrSequenceConflict && (he.Code == http.StatusUnauthorized || he.Code == http.StatusForbidden) {
			kind = domain.ErrNetwork
		}
		return &domain.BackendError{Op: op, Status: he.Code, Message: he.Body, Err: kind}
	}

	return &domain.BackendError{Op: op, Message: err.Error(), Err: domain.ErrNetwork}
}

func rejection(code int) bool {
	return code >= 400 && code < 500 && code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// observe records metrics for one endpoint call.
func observe(endpoint string, start time.Time, err error) {
	obs.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	obs.BackendRequests.WithLabelValues(endpoint, obs.Outcome(err)).Inc()
}

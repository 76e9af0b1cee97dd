package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultMaxRetries bounds how many times a failed attempt is retried.
	DefaultMaxRetries = 3
	// DefaultInitialDelay is the first backoff interval; it doubles per retry.
	DefaultInitialDelay = 500 * time.Millisecond
	// DefaultRequestRate caps outbound requests per second.
	DefaultRequestRate = 10
)

// Request describes one outbound API call. Body is held as bytes so the
// request can be replayed across retries.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Dispatcher issues rate-limited HTTP requests with bounded exponential
// backoff. Transport failures retry and then surface the last error.
// Responses with status 429 or in [500,600) retry the same way but the
// last response is returned for the caller to inspect. Any other status
// returns immediately on the first attempt.
type Dispatcher struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger

	maxRetries   int
	initialDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClient sets the underlying HTTP client.
func WithClient(client *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = client }
}

// WithRetryPolicy overrides the retry bound and first backoff interval.
func WithRetryPolicy(maxRetries int, initialDelay time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.maxRetries = maxRetries
		d.initialDelay = initialDelay
	}
}

// WithRequestRate sets the outbound requests-per-second cap.
func WithRequestRate(perSecond float64) DispatcherOption {
	return func(d *Dispatcher) { d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// WithSleeper overrides the backoff sleep. Used in tests.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = sleep }
}

func NewDispatcher(logger *log.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		client:       &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(rate.Limit(DefaultRequestRate), 1),
		logger:       logger,
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		sleep:        sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code < 600)
}

// Do issues the request, retrying per the dispatcher's policy. The caller
// owns the returned response body.
func (d *Dispatcher) Do(ctx context.Context, r *Request) (*http.Response, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	delay := d.initialDelay
	var lastErr error

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, bytes.NewReader(r.Body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for key, values := range r.Header {
			req.Header[key] = values
		}

		resp, err := d.client.Do(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}

		if attempt >= d.maxRetries {
			if err != nil {
				return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			// Exhausted retries on a retryable status; the caller
			// inspects the final response.
			return resp, nil
		}

		if err != nil {
			lastErr = err
			d.logger.Debugf("request error, retrying in %s: %v", delay, err)
		} else {
			resp.Body.Close()
			d.logger.Debugf("status %d, retrying in %s", resp.StatusCode, delay)
		}

		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last error: %v)", sleepErr, lastErr)
			}
			return nil, sleepErr
		}
		delay *= 2
	}
}

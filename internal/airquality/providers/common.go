package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
	// Timeout bounds each attempt, not the whole retry loop.
	Timeout time.Duration
	Limiter *rate.Limiter
}

// Options tunes a provider's outbound calls. Zero values fall back to defaults.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	RPS        float64
	Burst      int
}

func (o Options) httpConfig(client *http.Client) HTTPClientConfig {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Burst <= 0 {
		o.Burst = 5
	}
	cfg := HTTPClientConfig{
		Client:  client,
		Timeout: o.Timeout,
		Backoff: BackoffConfig{
			MaxRetries:      o.MaxRetries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
	}
	if o.RPS > 0 {
		cfg.Limiter = rate.NewLimiter(rate.Limit(o.RPS), o.Burst)
	}
	return cfg
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})
}

var (
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
	errMissingAPIKey = errors.New("api key is not configured")
)

// rejection is a 4xx answer. It is returned as a successful breaker result so
// that unknown locations never trip the circuit.
type rejection struct {
	status int
	body   []byte
}

// doRequestWithResilience executes the HTTP request with rate limiting, a per-attempt
// timeout, retries with exponential backoff and a circuit breaker. It returns the
// response body of a 2xx answer. A 4xx answer (other than 429) is wrapped in
// airquality.ErrUpstreamRejected and never retried.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int
	var lastErr error

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			return doAttempt(ctx, cfg, req)
		})

		if err == nil {
			switch v := result.(type) {
			case []byte:
				return v, nil
			case rejection:
				return nil, fmt.Errorf("%w: status %d: %s", airquality.ErrUpstreamRejected, v.status, truncate(v.body, 200))
			default:
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.Backoff.MaxRetries {
			return nil, lastErr
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

func doAttempt(ctx context.Context, cfg HTTPClientConfig, req *http.Request) (interface{}, error) {
	attemptCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	resp, err := cfg.Client.Do(req.WithContext(attemptCtx))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
	case resp.StatusCode >= 400:
		return rejection{status: resp.StatusCode, body: body}, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return body, nil
}

// statusFor maps a fetch error to the tagged result status.
func statusFor(err error) airquality.ResultStatus {
	if errors.Is(err, airquality.ErrUpstreamRejected) {
		return airquality.ResultNotFound
	}
	return airquality.ResultTransient
}

func pollutantFailure(provider string, err error) airquality.PollutantResult {
	return airquality.PollutantResult{
		Status: statusFor(err),
		Err:    fmt.Errorf("%s: %w", provider, err),
	}
}

func weatherFailure(provider string, err error) airquality.WeatherResult {
	return airquality.WeatherResult{
		Status: statusFor(err),
		Err:    fmt.Errorf("%s: %w", provider, err),
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n])
	}
	return string(b)
}

// hasCoordinates reports whether the location carries usable coordinates.
func hasCoordinates(loc airquality.Location) bool {
	return loc.Lat != 0 || loc.Lon != 0
}

package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	maxRetries      = 3
	retryBaseDelay  = 500 * time.Millisecond
	retryMaxDelay   = 5 * time.Second
	retryJitterRate = 0.1
)

// shouldRetry reports whether a response warrants another attempt: network
// errors, rate limits (429), and server errors (5xx).
func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

var httpRetryPolicy = retrypolicy.NewBuilder[*http.Response]().
	WithBackoff(retryBaseDelay, retryMaxDelay).
	WithMaxRetries(maxRetries).
	WithJitterFactor(retryJitterRate).
	HandleIf(shouldRetry).
	Build()

// doWithRetry executes an HTTP request through the retry policy. The request
// is rebuilt for every attempt so body readers are fresh.
func doWithRetry(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	return failsafe.With(httpRetryPolicy).WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		if shouldRetry(resp, nil) {
			// Drain and close retryable responses so the connection is reused.
			_ = resp.Body.Close()
		}
		return resp, nil
	})
}

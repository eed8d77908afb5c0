package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrHTMLResponse is returned when an endpoint that should speak JSON serves an HTML page
	// (ESPN does this for blocked or retired routes).
	ErrHTMLResponse = errors.New("fetch: html page returned where json expected")
	// ErrNotFound matches any 404 StatusError via errors.Is.
	ErrNotFound = errors.New("fetch: not found")
)

// StatusError is a non-2xx upstream response.
type StatusError struct {
	Provider string
	URL      string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: GET %s: status %d: %s", e.Provider, e.URL, e.Code, e.Body)
	}
	return fmt.Sprintf("%s: GET %s: status %d", e.Provider, e.URL, e.Code)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == 404
}

func (e *StatusError) MetricOutcome() string {
	if e.Code >= 500 {
		return "http_5xx"
	}
	return "http_4xx"
}

// RateLimitError captures a 429 response and the advertised Retry-After.
type RateLimitError struct {
	Provider   string
	URL        string
	RetryAfter time.Duration
	Remaining  string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited (retry after %s)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Provider)
}

func (e *RateLimitError) MetricOutcome() string { return "rate_limited" }

// AsRateLimitError attempts to unwrap an error into a RateLimitError.
func AsRateLimitError(err error) (*RateLimitError, bool) {
	var rlErr *RateLimitError
	if errors.As(err, &rlErr) {
		return rlErr, true
	}
	return nil, false
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if _, ok := AsRateLimitError(err); ok {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	if errors.Is(err, ErrHTMLResponse) {
		return false
	}
	// transport failures: connection reset, EOF, timeouts
	return true
}

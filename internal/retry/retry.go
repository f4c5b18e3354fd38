// Package retry runs network operations with bounded exponential backoff.
//
// Errors are transient unless marked with Permanent or carried by a
// StatusError whose code is a client error other than 408 and 429.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Policy bounds the number of attempts and the delay between them.
type Policy struct {
	Attempts int           // total attempts, at least 1
	Initial  time.Duration // delay before the second attempt
	Max      time.Duration // cap for the doubling delay
}

// DefaultPolicy is used when configuration leaves the network section empty.
var DefaultPolicy = Policy{Attempts: 4, Initial: 2 * time.Second, Max: 30 * time.Second}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %s", e.URL, e.Status)
}

// Retryable reports whether the response code is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch {
	case e.Code == http.StatusRequestTimeout, e.Code == http.StatusTooManyRequests:
		return true
	case e.Code >= 500:
		return true
	default:
		return false
	}
}

// CheckStatus returns a *StatusError when resp is not 2xx.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{URL: resp.Request.URL.String(), Code: resp.StatusCode, Status: resp.Status}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err should stop a retry loop.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Retryable()
	}
	return false
}

// Do calls fn until it succeeds, returns a permanent error, or the policy's
// attempts are exhausted. The last error is returned.
func Do(ctx context.Context, policy Policy, logger *slog.Logger, op string, fn func(attempt int) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.Initial

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || IsPermanent(err) || attempt == attempts {
			break
		}
		if logger != nil {
			logger.Warn("retrying after transient failure",
				"op", op,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if policy.Max > 0 && delay > policy.Max {
			delay = policy.Max
		}
	}

	var pe *permanentError
	if errors.As(err, &pe) {
		return pe.err
	}
	return err
}

// Package retry wraps calls to external services (TTS, STT, LLM, backend)
// with a bounded attempt budget and a fixed delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// Policy bounds one retried call.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Delay is the fixed pause between attempts.
	Delay time.Duration
	// AttemptTimeout bounds each individual try when > 0.
	AttemptTimeout time.Duration
	// Retryable decides whether a failed try may be repeated. Defaults to Transient.
	Retryable func(error) bool
}

// Default is 1 try + 2 retries, 500ms apart.
func Default() Policy {
	return Policy{Attempts: 3, Delay: 500 * time.Millisecond}
}

// Do runs fn until it succeeds, fails permanently, or the budget is spent.
// The error of the last attempt is returned unchanged (wrapped errors stay inspectable).
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = Transient
	}

	var zero T
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}
		v, err := attempt(ctx, p.AttemptTimeout, fn)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if i == attempts-1 || !retryable(err) {
			break
		}
		if p.Delay > 0 {
			t := time.NewTimer(p.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, lastErr
			case <-t.C:
			}
		}
	}
	return zero, unwrapPermanent(lastErr)
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) && err == error(p) {
		return p.err
	}
	return err
}

// StatusError is a non-2xx answer from an HTTP service.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status=%d body=%s", e.Service, e.StatusCode, e.Body)
}

// Transient is the default retryability predicate: timeouts, connection
// resets, 429 and 5xx are retried; 4xx, cancellation and anything marked
// Permanent are not.
func Transient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == 429
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

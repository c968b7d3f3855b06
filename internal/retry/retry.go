// Package retry implements bounded exponential backoff for transient faults.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goretry "github.com/sethvargo/go-retry"
)

// transientMarkers 命中任一子串即视为瞬时错误。
var transientMarkers = []string{
	"server disconnected",
	"connection",
	"timeout",
	"reset",
	"network",
}

// IsTransient reports whether err's message contains a transient marker.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Policy bounds the number of retries; delay before retry n (0-based) is BaseDelay·2^n.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

var (
	// Store wraps every document store operation.
	Store = Policy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond}
	// Download wraps icon downloads during render materialization.
	Download = Policy{MaxRetries: 2, BaseDelay: 500 * time.Millisecond}
	// Auth retries token verification once.
	Auth = Policy{MaxRetries: 1, BaseDelay: 500 * time.Millisecond}
)

// Delay returns the backoff before the given retry attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<attempt)
}

// ExhaustedError is returned when a transient error persists after all retries.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// backoff 返回 go-retry 的指数退避，第 n 次重试前等待 BaseDelay·2^n。
func (p Policy) backoff() goretry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Millisecond
	}
	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return goretry.WithMaxRetries(uint64(retries), goretry.NewExponential(base))
}

// Do runs fn, retrying while it fails with a transient error.
// Non-transient errors are returned unchanged on first occurrence.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	var (
		attempts int
		last     error
	)
	err := goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		last = fn(ctx)
		if last != nil && IsTransient(last) {
			return goretry.RetryableError(last)
		}
		return last
	})
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		if last == nil {
			return fmt.Errorf("retry interrupted: %w", ctxErr)
		}
		return fmt.Errorf("retry interrupted: %w", errors.Join(ctxErr, last))
	}
	if IsTransient(last) {
		return &ExhaustedError{Attempts: attempts, Err: last}
	}
	return err
}

// Value is Do for functions that also return a value.
func Value[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

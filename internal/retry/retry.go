// Package retry holds the jittered exponential backoff used for transient
// failures of the Bot API and Google APIs.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MaxRetries is the default attempt budget for Do.
const MaxRetries = 3

// Error marks a failure as transient. After, when set, is the wait the
// remote side asked for and takes precedence over Backoff.
type Error struct {
	Err   error
	After time.Duration
}

func (e *Error) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("retryable (after %s): %v", e.After, e.Err)
	}
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err}
}

// TransientAfter wraps err as retryable after the given wait.
func TransientAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &Error{Err: err, After: after}
}

// MaxAfter caps a server-requested wait.
const MaxAfter = 2 * time.Minute

// ParseAfter reads a Retry-After header value, either delay seconds or an
// HTTP date. It returns 0 when the value is missing, malformed or already
// in the past.
func ParseAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(v); err == nil {
		d = at.Sub(now)
	}
	if d <= 0 {
		return 0
	}
	return min(d, MaxAfter)
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var re *Error
	return errors.As(err, &re)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(min(attempt, 5))) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 2))
	return base + jitter
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned.
func Do(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = MaxRetries
	}
	var err error
	for attempt := range attempts {
		if err = fn(ctx); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		wait := Backoff(attempt)
		var re *Error
		if errors.As(err, &re) && re.After > 0 {
			wait = re.After
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError is a Bot API response with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %s)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// RateLimited reports a flood-wait response.
func (e *APIError) RateLimited() bool {
	return e.Code == 429 || e.RetryAfter > 0
}

var invalidMessage = []string{
	"message to forward not found",
	"message to copy not found",
	"message_id_invalid",
	"message ids invalid",
	"message not found",
}

// InvalidMessage reports that the referenced message ids do not exist.
func (e *APIError) InvalidMessage() bool {
	if e.Code != 400 {
		return false
	}
	d := strings.ToLower(e.Description)
	for _, s := range invalidMessage {
		if strings.Contains(d, s) {
			return true
		}
	}
	return false
}

// ResultKind classifies the outcome of one delivery attempt.
type ResultKind int

const (
	OK ResultKind = iota
	RetryAfter
	Invalid
	Failed
)

func (k ResultKind) String() string {
	switch k {
	case OK:
		return "ok"
	case RetryAfter:
		return "retry_after"
	case Invalid:
		return "invalid"
	default:
		return "failed"
	}
}

// Result is the explicit outcome of a transport call.
type Result struct {
	Kind ResultKind
	Wait time.Duration
	Err  error
}

// Classify maps a transport error onto a Result.
func Classify(err error) Result {
	if err == nil {
		return Result{Kind: OK}
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.RateLimited():
			wait := apiErr.RetryAfter
			if wait <= 0 {
				wait = time.Second
			}
			return Result{Kind: RetryAfter, Wait: wait, Err: err}
		case apiErr.InvalidMessage():
			return Result{Kind: Invalid, Err: err}
		}
	}
	return Result{Kind: Failed, Err: err}
}

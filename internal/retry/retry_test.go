package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffBounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := time.Duration(1<<uint(min(attempt, 5))) * time.Second
		base = min(base, 30*time.Second)
		if d < base || d >= base+base/2 {
			t.Errorf("Backoff(%d) = %s, want in [%s, %s)", attempt, d, base, base+base/2)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	base := errors.New("503")
	if !IsRetryable(Transient(base)) {
		t.Error("Transient error should be retryable")
	}
	if !IsRetryable(errors.Join(errors.New("ctx"), &Error{Err: base})) {
		t.Error("wrapped Error should be retryable")
	}
	if IsRetryable(base) {
		t.Error("plain error should not be retryable")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) should be nil")
	}
	if !errors.Is(Transient(base), base) {
		t.Error("Error should unwrap")
	}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 3, func(context.Context) error {
		calls++
		if calls < 3 {
			return &Error{Err: errors.New("busy"), After: time.Millisecond}
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third call, got err=%v calls=%d", err, calls)
	}
}

func TestDoStopsOnPermanent(t *testing.T) {
	calls := 0
	perm := errors.New("bad request")
	err := Do(context.Background(), 3, func(context.Context) error {
		calls++
		return perm
	})
	if !errors.Is(err, perm) || calls != 1 {
		t.Fatalf("expected one call and the permanent error, got %v after %d", err, calls)
	}
}

func TestDoGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), 2, func(context.Context) error {
		calls++
		return &Error{Err: errors.New("busy"), After: time.Millisecond}
	})
	if !IsRetryable(err) || calls != 2 {
		t.Fatalf("expected 2 calls and a retryable error, got %v after %d", err, calls)
	}
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Do(ctx, 3, func(context.Context) error {
		cancel()
		return &Error{Err: errors.New("busy"), After: time.Hour}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"7", 7 * time.Second},
		{" 2 ", 2 * time.Second},
		{"0", 0},
		{"-3", 0},
		{"soon", 0},
		{"3600", MaxAfter},
		{"Wed, 01 May 2024 12:00:30 GMT", 30 * time.Second},
		{"Wed, 01 May 2024 11:59:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := ParseAfter(tt.in, now); got != tt.want {
			t.Errorf("ParseAfter(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestTransientAfter(t *testing.T) {
	if TransientAfter(nil, time.Second) != nil {
		t.Error("nil error should stay nil")
	}
	err := TransientAfter(errors.New("429"), 5*time.Second)
	var re *Error
	if !errors.As(err, &re) || re.After != 5*time.Second {
		t.Fatalf("TransientAfter = %#v, want After 5s", err)
	}
	if re := TransientAfter(errors.New("503"), 0).(*Error); re.After != 0 {
		t.Errorf("After = %s, want 0 so Do falls back to Backoff", re.After)
	}
}

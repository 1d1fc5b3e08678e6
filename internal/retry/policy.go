// Package retry decides whether a failed delivery is worth another attempt
// and how long to wait before it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Class is the outcome of classifying a failure.
type Class int

const (
	Permanent Class = iota
	Transient
)

func (c Class) String() string {
	if c == Transient {
		return "transient"
	}
	return "permanent"
}

// DefaultMarkers are lower-case phrases that mark a provider response as
// temporary even when it carries no 4xx code.
var DefaultMarkers = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"too many",
	"throttl",
	"quota",
	"greylist",
	"graylist",
	"timeout",
	"timed out",
	"temporarily unavailable",
	"temporary failure",
	"try again later",
	"try later",
}

// ResponseCoder is implemented by errors that carry an SMTP-style reply code.
type ResponseCoder interface {
	ResponseCode() int
}

// ExhaustedError is returned once a transient failure has used up every
// attempt. It always classifies as Permanent.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("exceeded retry attempts (%d): %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Policy holds the backoff schedule and the attempt ceiling.
type Policy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
	Markers     []string
}

// Default returns 3 attempts with 1s, 2s backoff capped at 30s.
func Default() Policy {
	return Policy{
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 3,
		Markers:     DefaultMarkers,
	}
}

// Classify reports whether err is worth retrying. A 4xx reply code or a known
// transient phrase makes it Transient; everything else is Permanent.
func (p Policy) Classify(err error) Class {
	if err == nil {
		return Permanent
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) || errors.Is(err, context.Canceled) {
		return Permanent
	}

	var rc ResponseCoder
	if errors.As(err, &rc) {
		if code := rc.ResponseCode(); code >= 400 && code < 500 {
			return Transient
		}
	}

	markers := p.Markers
	if markers == nil {
		markers = DefaultMarkers
	}
	msg := strings.ToLower(err.Error())
	for _, m := range markers {
		if m != "" && strings.Contains(msg, strings.ToLower(m)) {
			return Transient
		}
	}
	return Permanent
}

// Backoff returns the wait before retry number retryIndex (0-based):
// BaseDelay * 2^retryIndex, capped at MaxDelay when set.
func (p Policy) Backoff(retryIndex int) time.Duration {
	if retryIndex < 0 {
		retryIndex = 0
	}
	d := p.BaseDelay
	for i := 0; i < retryIndex; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run calls fn until it succeeds, fails permanently, or runs out of attempts.
// fn receives the 1-based attempt number. The returned count is the number of
// times fn was called.
func (p Policy) Run(ctx context.Context, sleep Sleeper, fn func(attempt int) error) (int, error) {
	if sleep == nil {
		sleep = Sleep
	}
	limit := p.maxAttempts()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		if p.Classify(err) == Permanent {
			return attempt, err
		}
		if attempt >= limit {
			return attempt, &ExhaustedError{Attempts: attempt, Last: err}
		}
		if serr := sleep(ctx, p.Backoff(attempt-1)); serr != nil {
			return attempt, fmt.Errorf("retry aborted after attempt %d: %w", attempt, errors.Join(serr, err))
		}
	}
}

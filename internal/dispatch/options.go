package dispatch

import (
	"time"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/retry"
)

// FromNamePolicy picks the display name of the From header.
type FromNamePolicy string

const (
	// FromNameSender uses the name the operator typed.
	FromNameSender FromNamePolicy = "sender"
	// FromNameAccount uses the transport account name when it has one.
	FromNameAccount FromNamePolicy = "account"
)

// MismatchPolicy decides what happens when the operator's address is not
// the authenticated sending identity.
type MismatchPolicy string

const (
	// MismatchWarn sends from the authenticated address, sets Reply-To to
	// the operator and adds a summary warning.
	MismatchWarn   MismatchPolicy = "warn"
	// MismatchReject fails validation before pre-flight.
	MismatchReject MismatchPolicy = "reject"
)

// Options are the batch and policy knobs of a Coordinator.
type Options struct {
	BatchSize   int
	Concurrency int
	BatchDelay  time.Duration
	// BulkThreshold adds a warning when a request has more recipients.
	// Zero disables it.
	BulkThreshold    int
	FromName         FromNamePolicy
	IdentityMismatch MismatchPolicy
	// ListUnsubscribe is a mailto: or https target; "{{email}}" is
	// replaced per recipient.
	ListUnsubscribe string
	Retry           retry.Policy
}

// DefaultOptions returns batches of 50, 5 workers and a 1s pause.
func DefaultOptions() Options {
	return Options{
		BatchSize:        50,
		Concurrency:      5,
		BatchDelay:       time.Second,
		FromName:         FromNameSender,
		IdentityMismatch: MismatchWarn,
		Retry:            retry.Default(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.FromName == "" {
		o.FromName = d.FromName
	}
	if o.IdentityMismatch == "" {
		o.IdentityMismatch = d.IdentityMismatch
	}
	if o.Retry.MaxAttempts == 0 && o.Retry.BaseDelay == 0 {
		o.Retry = d.Retry
	}
	return o
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithSleeper replaces the sleeper used for backoff and batch pauses.
func WithSleeper(s retry.Sleeper) Option {
	return func(c *Coordinator) { c.sleep = s }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

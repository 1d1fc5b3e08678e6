package dispatch

import (
	"sync"
	"time"
)

// Status of one recipient's delivery.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Outcome is the final result for one recipient. Retries happen before it
// is produced.
type Outcome struct {
	Recipient string
	Status    Status
	MessageID string
	Error     string
	Attempts  int
	Duration  time.Duration
}

// Summary is the folded result of a dispatch. Outcomes are in completion
// order.
type Summary struct {
	DispatchID string
	Provider   string
	Total      int
	Succeeded  int
	Failed     int
	Outcomes   []Outcome
	Warnings   []string
	StartedAt  time.Time
	Duration   time.Duration
}

// Aggregator collects outcomes from concurrent workers.
type Aggregator struct {
	mu       sync.Mutex
	outcomes []Outcome
	warnings []string
	seen     map[string]struct{}
}

func NewAggregator() *Aggregator {
	return &Aggregator{seen: make(map[string]struct{})}
}

// Add appends one outcome.
func (a *Aggregator) Add(o Outcome) {
	a.mu.Lock()
	a.outcomes = append(a.outcomes, o)
	a.mu.Unlock()
}

// Warn records advisory messages once each, in first-seen order.
func (a *Aggregator) Warn(msgs ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range msgs {
		if m == "" {
			continue
		}
		if _, ok := a.seen[m]; ok {
			continue
		}
		a.seen[m] = struct{}{}
		a.warnings = append(a.warnings, m)
	}
}

// Summary folds the collected outcomes. Counts do not depend on the order
// outcomes arrived in.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{
		Total:    len(a.outcomes),
		Outcomes: append([]Outcome(nil), a.outcomes...),
		Warnings: append([]string{}, a.warnings...),
	}
	for _, o := range a.outcomes {
		if o.Status == StatusSuccess {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}

package transport

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// GovernorConfig bounds how hard a gate is driven.
type GovernorConfig struct {
	// MaxInFlight caps concurrent Send calls. Zero means unbounded.
	MaxInFlight int
	// Limiter, when set, is waited on before every send.
	Limiter Limiter
}

type governedGate struct {
	Gate
	sem     *semaphore.Weighted
	limiter Limiter
}

// Govern wraps g so that sends respect the in-flight cap and the window
// limiter. Callers still see the plain Gate contract.
func Govern(g Gate, cfg GovernorConfig) Gate {
	if cfg.MaxInFlight <= 0 && cfg.Limiter == nil {
		return g
	}
	gg := &governedGate{Gate: g, limiter: cfg.Limiter}
	if cfg.MaxInFlight > 0 {
		gg.sem = semaphore.NewWeighted(int64(cfg.MaxInFlight))
	}
	return gg
}

func (g *governedGate) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if g.sem != nil {
		if err := g.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer g.sem.Release(1)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: waiting for send window: %w", g.Name(), err)
		}
	}
	return g.Gate.Send(ctx, msg)
}

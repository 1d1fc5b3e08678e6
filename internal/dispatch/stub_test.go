package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-dispatch/internal/content"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// stubGate records calls and delegates sends to sendFn.
type stubGate struct {
	mu          sync.Mutex
	identity    transport.Identity
	verifyErr   error
	verifyCalls int
	closeCalls  int
	events      []string
	sent        []*transport.Message
	calls       map[string]int
	sendFn      func(msg *transport.Message, call int) error
	delay       time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func newStubGate() *stubGate {
	return &stubGate{
		identity: transport.Identity{Address: "s@x.com"},
		calls:    make(map[string]int),
	}
}

func (g *stubGate) Name() string { return "stub" }

func (g *stubGate) Identity() transport.Identity { return g.identity }

func (g *stubGate) Verify(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	g.events = append(g.events, "verify")
	return g.verifyErr
}

func (g *stubGate) Send(ctx context.Context, msg *transport.Message) (*transport.Receipt, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}

	g.mu.Lock()
	g.events = append(g.events, "send")
	g.sent = append(g.sent, msg)
	g.calls[msg.To]++
	call := g.calls[msg.To]
	g.mu.Unlock()

	if g.sendFn != nil {
		if err := g.sendFn(msg, call); err != nil {
			return nil, err
		}
	}
	return &transport.Receipt{Provider: "stub", MessageID: msg.ID, ProviderID: "id-" + msg.To}, nil
}

func (g *stubGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeCalls++
	g.events = append(g.events, "close")
	return nil
}

func (g *stubGate) sentTo() map[string][]*transport.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string][]*transport.Message)
	for _, m := range g.sent {
		out[m.To] = append(out[m.To], m)
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

func fixedClock() time.Time { return time.Date(2031, 5, 1, 12, 0, 0, 0, time.UTC) }

func newTestCoordinator(g *stubGate, opts Options, rec *sleepRecorder) *Coordinator {
	return New(g, content.New(content.WithClock(fixedClock)), opts, WithSleeper(rec.sleep))
}

func byRecipient(s *Summary) map[string]Outcome {
	out := make(map[string]Outcome, len(s.Outcomes))
	for _, o := range s.Outcomes {
		out[o.Recipient] = o
	}
	return out
}

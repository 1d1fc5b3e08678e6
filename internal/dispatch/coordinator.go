// Package dispatch runs a campaign: it validates the request, verifies the
// transport, then sends batch by batch through a bounded worker pool.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/campaign-dispatch/internal/content"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/retry"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// Renderer turns a template into one recipient's message.
type Renderer interface {
	Render(in content.Input) content.Rendered
}

// Coordinator owns one gate for the duration of a dispatch and closes it
// when the dispatch ends.
type Coordinator struct {
	gate     transport.Gate
	renderer Renderer
	opts     Options
	sleep    retry.Sleeper
	metrics  *Metrics
	log      *logger.Logger
	now      func() time.Time
}

// New builds a Coordinator. Zero option values take their defaults.
func New(gate transport.Gate, renderer Renderer, opts Options, options ...Option) *Coordinator {
	c := &Coordinator{
		gate:     gate,
		renderer: renderer,
		opts:     opts.withDefaults(),
		sleep:    retry.Sleep,
		log:      logger.New("dispatch"),
		now:      time.Now,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Dispatch sends req to every recipient. It returns an error only when the
// request is invalid (*ValidationError) or the transport fails pre-flight
// (*transport.ConnectError); otherwise every recipient has an outcome in
// the summary, even if all of them failed.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) (*Summary, error) {
	if err := req.Validate(); err != nil {
		c.metrics.dispatch("invalid")
		return nil, err
	}

	identity := c.gate.Identity()
	mismatch := identity.Address != "" && !strings.EqualFold(req.Sender.Email, identity.Address)
	if mismatch && c.opts.IdentityMismatch == MismatchReject {
		c.metrics.dispatch("invalid")
		return nil, &ValidationError{
			Field:   "sender.email",
			Message: fmt.Sprintf("%s is not the authenticated sending address %s", req.Sender.Email, identity.Address),
		}
	}

	defer func() {
		if err := c.gate.Close(); err != nil {
			c.log.Warn("closing transport failed", "provider", c.gate.Name(), "error", err)
		}
	}()

	dispatchID := uuid.NewString()
	log := c.log.With("dispatch_id", dispatchID, "provider", c.gate.Name())

	if err := c.gate.Verify(ctx); err != nil {
		c.metrics.dispatch("verify_failed")
		log.Error("pre-flight verification failed", "error", err)
		return nil, err
	}

	started := c.now()
	agg := NewAggregator()
	if mismatch {
		agg.Warn(fmt.Sprintf("sender %s differs from the authenticated address %s; messages are sent from %s with Reply-To %s",
			req.Sender.Email, identity.Address, identity.Address, req.Sender.Email))
	}
	if c.opts.BulkThreshold > 0 && len(req.Recipients) > c.opts.BulkThreshold {
		agg.Warn(fmt.Sprintf("%d recipients exceeds the bulk threshold of %d for the %s transport; consider a dedicated bulk provider",
			len(req.Recipients), c.opts.BulkThreshold, c.gate.Name()))
	}

	batches := Partition(req.Recipients, c.opts.BatchSize)
	log.Info("dispatch started", "recipients", len(req.Recipients), "batches", len(batches))

	for i, batch := range batches {
		if i > 0 && c.opts.BatchDelay > 0 && ctx.Err() == nil {
			// A cancelled pause falls through; the remaining recipients then
			// fail fast inside the retry loop and are still counted.
			_ = c.sleep(ctx, c.opts.BatchDelay)
		}
		c.runBatch(ctx, dispatchID, req, batch, agg)
		c.metrics.batch()
		log.Debug("batch finished", "batch", i+1, "size", len(batch))
	}

	summary := agg.Summary()
	summary.DispatchID = dispatchID
	summary.Provider = c.gate.Name()
	summary.StartedAt = started
	summary.Duration = c.now().Sub(started)

	c.metrics.dispatch("completed")
	log.Info("dispatch finished", "total", summary.Total, "succeeded", summary.Succeeded, "failed", summary.Failed)
	return &summary, nil
}

// runBatch drains one batch with at most Concurrency workers pulling from a
// shared queue, and returns once every recipient has an outcome.
func (c *Coordinator) runBatch(ctx context.Context, dispatchID string, req Request, batch []string, agg *Aggregator) {
	queue := make(chan string, len(batch))
	for _, rcpt := range batch {
		queue <- rcpt
	}
	close(queue)

	workers := c.opts.Concurrency
	if workers > len(batch) {
		workers = len(batch)
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for rcpt := range queue {
				agg.Add(c.deliver(ctx, dispatchID, req, rcpt, agg))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// deliver renders and sends to one recipient, retrying transient failures.
func (c *Coordinator) deliver(ctx context.Context, dispatchID string, req Request, rcpt string, agg *Aggregator) Outcome {
	start := c.now()
	provider := c.gate.Name()
	var receipt *transport.Receipt

	attempts, err := c.opts.Retry.Run(ctx, c.sleep, func(attempt int) error {
		if attempt > 1 {
			c.metrics.retry(provider)
		}
		msg, warnings := c.compose(dispatchID, req, rcpt)
		agg.Warn(warnings...)

		c.metrics.sendStarted()
		sendStart := time.Now()
		r, err := c.gate.Send(ctx, msg)
		c.metrics.sendFinished(provider, time.Since(sendStart).Seconds())
		if err != nil {
			c.log.Debug("send attempt failed", "recipient", rcpt, "attempt", attempt, "error", err)
			return err
		}
		receipt = r
		return nil
	})

	out := Outcome{Recipient: rcpt, Attempts: attempts, Duration: c.now().Sub(start)}
	if err != nil {
		out.Status = StatusFailed
		out.Error = err.Error()
		c.log.Warn("delivery failed", "recipient", rcpt, "attempts", attempts, "error", err)
	} else {
		out.Status = StatusSuccess
		out.MessageID = receipt.ID()
	}
	c.metrics.delivery(provider, out.Status)
	return out
}

// compose renders a fresh message for one attempt. The visible From address
// is always the authenticated identity; the operator's own address becomes
// Reply-To when it differs.
func (c *Coordinator) compose(dispatchID string, req Request, rcpt string) (*transport.Message, []string) {
	identity := c.gate.Identity()
	fromAddr := identity.Address
	if fromAddr == "" {
		fromAddr = req.Sender.Email
	}
	fromName := req.Sender.Name
	if c.opts.FromName == FromNameAccount && identity.AccountName != "" {
		fromName = identity.AccountName
	}

	rendered := c.renderer.Render(content.Input{
		Template:    req.Template,
		Recipient:   rcpt,
		Subject:     req.Subject,
		Sender:      content.Sender{Name: fromName, Email: fromAddr},
		PreviewText: req.PreviewText,
	})

	headers := map[string]string{transport.HeaderDispatchID: dispatchID}
	for k, v := range transport.ListUnsubscribeHeaders(c.opts.ListUnsubscribe, rcpt) {
		headers[k] = v
	}

	msg := &transport.Message{
		ID:            transport.NewMessageID(transport.Identity{Address: fromAddr}.Domain()),
		To:            rcpt,
		FromName:      fromName,
		FromAddress:   fromAddr,
		EnvelopeFrom:  fromAddr,
		Subject:       rendered.Subject,
		Text:          rendered.Text,
		HTML:          rendered.HTML,
		Headers:       headers,
		TrackingToken: rendered.TrackingToken,
	}
	if !strings.EqualFold(req.Sender.Email, fromAddr) {
		msg.ReplyTo = req.Sender.Email
	}
	return msg, rendered.Warnings
}

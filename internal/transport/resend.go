package transport

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/resend/resend-go/v3"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// ResendConfig configures the Resend API gate.
type ResendConfig struct {
	APIKey      string
	FromAddress string
	AccountName string
	// BaseURL overrides the API endpoint; tests point it at httptest.
	BaseURL    string
	HTTPClient *http.Client
}

// ResendGate sends through the Resend SDK.
type ResendGate struct {
	cfg    ResendConfig
	client *resend.Client
	now    func() time.Time
}

func NewResendGate(cfg ResendConfig) (*ResendGate, error) {
	hc := defaultHTTPClient()
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		hc = &c
	}
	hc.Transport = statusCapture{base: hc.Transport}

	client := resend.NewCustomClient(hc, cfg.APIKey)
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("resend: invalid base URL: %w", err)
		}
		client.BaseURL = u
	}
	return &ResendGate{cfg: cfg, client: client, now: time.Now}, nil
}

type statusKey struct{}

// statusCapture stores the response status in the *int carried by the
// request context, since SDK errors do not expose it.
type statusCapture struct {
	base http.RoundTripper
}

func (t statusCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if resp != nil {
		if p, ok := req.Context().Value(statusKey{}).(*int); ok {
			*p = resp.StatusCode
		}
	}
	return resp, err
}

func (g *ResendGate) Name() string { return "resend" }

func (g *ResendGate) Identity() Identity {
	return Identity{Address: g.cfg.FromAddress, AccountName: g.cfg.AccountName}
}

// Verify lists domains, which fails on a bad key.
func (g *ResendGate) Verify(ctx context.Context) error {
	if g.cfg.APIKey == "" {
		return g.connectError(fmt.Errorf("API key not configured"))
	}
	if _, err := g.client.Domains.ListWithContext(ctx); err != nil {
		return g.connectError(err)
	}
	return nil
}

func (g *ResendGate) connectError(err error) *ConnectError {
	host, port := "api.resend.com", 443
	if g.client.BaseURL != nil && g.client.BaseURL.Host != "" {
		host, port = endpointOf(g.client.BaseURL.String())
	}
	return &ConnectError{Provider: "resend", Host: host, Port: port, Identity: g.cfg.FromAddress, Err: err}
}

func (g *ResendGate) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	req := &resend.SendEmailRequest{
		From:    msg.FromHeader(),
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
		Headers: withMessageID(msg),
	}

	var status int
	sent, err := g.client.Emails.SendWithContext(context.WithValue(ctx, statusKey{}, &status), req)
	if err != nil {
		log.Printf("[Resend] Send to %s failed (status %d): %v", logger.RedactEmail(msg.To), status, err)
		if status >= 400 {
			se := httpSendError("resend", status, err.Error())
			se.Err = err
			return nil, se
		}
		return nil, &SendError{Provider: "resend", Response: err.Error(), Err: err}
	}

	log.Printf("[Resend] Sent to %s (id: %s)", logger.RedactEmail(msg.To), sent.Id)
	return &Receipt{Provider: "resend", MessageID: msg.ID, ProviderID: sent.Id, AcceptedAt: g.now()}, nil
}

func (g *ResendGate) Close() error { return nil }

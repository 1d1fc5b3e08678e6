package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// MailgunConfig configures the Mailgun Messages API gate.
type MailgunConfig struct {
	APIKey      string
	Domain      string
	BaseURL     string
	FromAddress string
	AccountName string
	HTTPClient  *http.Client
}

// MailgunGate posts one form-encoded message per recipient.
type MailgunGate struct {
	cfg    MailgunConfig
	client *http.Client
	now    func() time.Time
}

func NewMailgunGate(cfg MailgunConfig) *MailgunGate {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mailgun.net/v3"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}
	return &MailgunGate{cfg: cfg, client: client, now: time.Now}
}

func (g *MailgunGate) Name() string { return "mailgun" }

func (g *MailgunGate) Identity() Identity {
	return Identity{Address: g.cfg.FromAddress, AccountName: g.cfg.AccountName}
}

func (g *MailgunGate) connectError(err error) *ConnectError {
	host, port := endpointOf(g.cfg.BaseURL)
	return &ConnectError{Provider: "mailgun", Host: host, Port: port, Identity: "api@" + g.cfg.Domain, Err: err}
}

// Verify fetches the sending domain, which needs a valid key.
func (g *MailgunGate) Verify(ctx context.Context) error {
	if g.cfg.APIKey == "" || g.cfg.Domain == "" {
		return g.connectError(fmt.Errorf("API key and domain are required"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/domains/"+url.PathEscape(g.cfg.Domain), nil)
	if err != nil {
		return g.connectError(err)
	}
	req.SetBasicAuth("api", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return g.connectError(err)
	}
	defer resp.Body.Close()
	body := readBody(resp)
	if resp.StatusCode >= 300 {
		return g.connectError(statusError(resp.StatusCode, body))
	}
	return nil
}

func (g *MailgunGate) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	form := url.Values{}
	form.Add("from", msg.FromHeader())
	form.Add("to", msg.To)
	form.Add("subject", msg.Subject)
	if msg.HTML != "" {
		form.Add("html", msg.HTML)
	}
	if msg.Text != "" {
		form.Add("text", msg.Text)
	}
	if msg.ReplyTo != "" {
		form.Add("h:Reply-To", msg.ReplyTo)
	}
	headers := withMessageID(msg)
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Add("h:"+k, headers[k])
	}
	if id := msg.Headers[HeaderDispatchID]; id != "" {
		form.Add("v:dispatch_id", id)
	}

	endpoint := fmt.Sprintf("%s/%s/messages", g.cfg.BaseURL, url.PathEscape(g.cfg.Domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, httpTransportError("mailgun", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, httpTransportError("mailgun", err)
	}
	defer resp.Body.Close()
	body := readBody(resp)

	if resp.StatusCode >= 400 {
		log.Printf("[Mailgun] Send to %s failed with %d", logger.RedactEmail(msg.To), resp.StatusCode)
		return nil, httpSendError("mailgun", resp.StatusCode, body)
	}

	var result struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal([]byte(body), &result)

	log.Printf("[Mailgun] Sent to %s (id: %s)", logger.RedactEmail(msg.To), result.ID)
	return &Receipt{Provider: "mailgun", MessageID: msg.ID, ProviderID: result.ID, AcceptedAt: g.now()}, nil
}

func (g *MailgunGate) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

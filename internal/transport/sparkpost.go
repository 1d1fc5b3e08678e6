package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// SparkPostConfig configures the SparkPost Transmissions API gate.
type SparkPostConfig struct {
	APIKey      string
	BaseURL     string
	FromAddress string
	AccountName string
	HTTPClient  *http.Client
}

// SparkPostGate sends one transmission per recipient.
type SparkPostGate struct {
	cfg    SparkPostConfig
	client *http.Client
	now    func() time.Time
}

func NewSparkPostGate(cfg SparkPostConfig) *SparkPostGate {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = defaultHTTPClient()
	}
	return &SparkPostGate{cfg: cfg, client: client, now: time.Now}
}

func (g *SparkPostGate) Name() string { return "sparkpost" }

func (g *SparkPostGate) Identity() Identity {
	return Identity{Address: g.cfg.FromAddress, AccountName: g.cfg.AccountName}
}

func (g *SparkPostGate) connectError(err error) *ConnectError {
	host, port := endpointOf(g.cfg.BaseURL)
	return &ConnectError{Provider: "sparkpost", Host: host, Port: port, Identity: g.cfg.FromAddress, Err: err}
}

// Verify checks the API key against the sending-domains listing.
func (g *SparkPostGate) Verify(ctx context.Context) error {
	if g.cfg.APIKey == "" {
		return g.connectError(fmt.Errorf("API key not configured"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.cfg.BaseURL+"/sending-domains", nil)
	if err != nil {
		return g.connectError(err)
	}
	req.Header.Set("Authorization", g.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

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

type sparkPostAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sparkPostTransmission struct {
	Options struct {
		ClickTracking bool `json:"click_tracking"`
		OpenTracking  bool `json:"open_tracking"`
	} `json:"options"`
	Recipients []struct {
		Address sparkPostAddress `json:"address"`
	} `json:"recipients"`
	Content struct {
		From    sparkPostAddress  `json:"from"`
		Subject string            `json:"subject"`
		HTML    string            `json:"html,omitempty"`
		Text    string            `json:"text,omitempty"`
		ReplyTo string            `json:"reply_to,omitempty"`
		Headers map[string]string `json:"headers,omitempty"`
	} `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (g *SparkPostGate) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	var t sparkPostTransmission
	t.Recipients = append(t.Recipients, struct {
		Address sparkPostAddress `json:"address"`
	}{Address: sparkPostAddress{Email: msg.To}})
	t.Content.From = sparkPostAddress{Email: msg.FromAddress, Name: msg.FromName}
	t.Content.Subject = msg.Subject
	t.Content.HTML = msg.HTML
	t.Content.Text = msg.Text
	t.Content.ReplyTo = msg.ReplyTo
	t.Content.Headers = copyHeaders(msg.Headers)
	if id := msg.Headers[HeaderDispatchID]; id != "" {
		t.Metadata = map[string]string{"dispatch_id": id}
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return nil, httpTransportError("sparkpost", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/transmissions", bytes.NewReader(payload))
	if err != nil {
		return nil, httpTransportError("sparkpost", err)
	}
	req.Header.Set("Authorization", g.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, httpTransportError("sparkpost", err)
	}
	defer resp.Body.Close()
	body := readBody(resp)

	if resp.StatusCode >= 400 {
		log.Printf("[SparkPost] Send to %s failed with %d", logger.RedactEmail(msg.To), resp.StatusCode)
		return nil, httpSendError("sparkpost", resp.StatusCode, body)
	}

	var result struct {
		Results struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	_ = json.Unmarshal([]byte(body), &result)

	log.Printf("[SparkPost] Sent to %s (id: %s)", logger.RedactEmail(msg.To), result.Results.ID)
	return &Receipt{Provider: "sparkpost", MessageID: msg.ID, ProviderID: result.Results.ID, AcceptedAt: g.now()}, nil
}

func (g *SparkPostGate) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// Package transport delivers rendered messages through one outbound channel:
// a pooled SMTP connection or an HTTP email API.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-mail/mail"
	"github.com/google/uuid"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("transport: gate closed")

// Gate is a single outbound delivery channel.
type Gate interface {
	// Name is the provider name used in logs and metrics.
	Name() string
	// Identity is the authenticated sending identity.
	Identity() Identity
	// Verify probes connectivity and credentials once, before any send.
	Verify(ctx context.Context) error
	Send(ctx context.Context, msg *Message) (*Receipt, error)
	// Close releases pooled connections. Safe to call more than once.
	Close() error
}

// Identity is who the gate is authenticated as.
type Identity struct {
	Address     string
	AccountName string
}

// Domain returns the domain part of the identity address.
func (i Identity) Domain() string { return domainOf(i.Address) }

// Message is one fully rendered e-mail for one recipient.
type Message struct {
	ID            string
	To            string
	FromName      string
	FromAddress   string
	EnvelopeFrom  string
	ReplyTo       string
	Subject       string
	Text          string
	HTML          string
	Headers       map[string]string
	TrackingToken string
}

// FromHeader renders the RFC 5322 From value, encoding the display name
// when needed.
func (m *Message) FromHeader() string {
	if m.FromName == "" {
		return m.FromAddress
	}
	// FormatAddress writes through the message's scratch buffer, so each call
	// gets its own.
	return mail.NewMessage().FormatAddress(m.FromAddress, m.FromName)
}

// Receipt is returned for an accepted message.
type Receipt struct {
	Provider   string
	MessageID  string
	ProviderID string
	AcceptedAt time.Time
}

// ID is the provider's delivery identifier when it returned one, else our
// Message-ID.
func (r *Receipt) ID() string {
	if r.ProviderID != "" {
		return r.ProviderID
	}
	return r.MessageID
}

// NewMessageID returns a unique RFC 5322 Message-ID for the given domain.
func NewMessageID(domain string) string {
	if domain == "" {
		domain = "localhost"
	}
	return "<" + uuid.NewString() + "@" + domain + ">"
}

func domainOf(addr string) string {
	_, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(domain))
}

// ConnectError reports a failed pre-flight probe. It never carries secrets.
type ConnectError struct {
	Provider string
	Host     string
	Port     int
	Identity string
	Err      error
}

func (e *ConnectError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": cannot connect")
	if e.Host != "" {
		b.WriteString(" to ")
		b.WriteString(e.Host)
		if e.Port > 0 {
			fmt.Fprintf(&b, ":%d", e.Port)
		}
	}
	if e.Identity != "" {
		b.WriteString(" as ")
		b.WriteString(e.Identity)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ConnectError) Unwrap() error { return e.Err }

// SendError is a rejected or failed delivery. Code is an SMTP-style reply
// code; HTTP providers map their status onto it (see replyCodeForStatus).
type SendError struct {
	Provider   string
	Code       int
	HTTPStatus int
	Response   string
	Err        error
}

func (e *SendError) Error() string {
	msg := e.Response
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Code > 0 && e.HTTPStatus > 0:
		return fmt.Sprintf("%s: %d (http %d): %s", e.Provider, e.Code, e.HTTPStatus, msg)
	case e.Code > 0:
		return fmt.Sprintf("%s: %d: %s", e.Provider, e.Code, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, msg)
	}
}

func (e *SendError) Unwrap() error { return e.Err }

// ResponseCode returns the reply code, 0 when unknown.
func (e *SendError) ResponseCode() int { return e.Code }

// replyCodeForStatus maps an HTTP status onto the SMTP reply space so one
// retry policy covers every provider: throttling and gateway errors become
// 4xx, other client and server errors become 550.
func replyCodeForStatus(status int) int {
	switch {
	case status < 400:
		return 0
	case status == 408, status == 429:
		return 421
	case status == 500, status == 502, status == 503, status == 504:
		return 451
	default:
		return 550
	}
}

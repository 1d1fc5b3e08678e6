package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/textproto"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-mail/mail"

	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// SMTPConfig configures a pooled SMTP relay gate.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	AccountName string
	// SSL forces implicit TLS. Port 465 implies it; otherwise STARTTLS is
	// used when offered.
	SSL                bool
	InsecureSkipVerify bool
	LocalName          string
	Timeout            time.Duration
	// MaxConnections caps simultaneous SMTP sessions.
	MaxConnections int
	// MessagesPerConnection recycles a session after that many messages.
	MessagesPerConnection int
	DKIM                  *DKIMSigner
}

type dialFunc func() (mail.SendCloser, error)

type smtpConn struct {
	sc   mail.SendCloser
	sent int
}

// SMTPGate sends through a bounded pool of authenticated SMTP sessions.
type SMTPGate struct {
	cfg  SMTPConfig
	dial dialFunc
	now  func() time.Time

	// slots holds one token per open session; idle holds reusable sessions.
	slots chan struct{}
	idle  chan *smtpConn

	mu     sync.Mutex
	closed bool
}

// NewSMTPGate builds a gate from cfg. No connection is opened until Verify
// or the first Send.
func NewSMTPGate(cfg SMTPConfig) *SMTPGate {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SSL {
		d.SSL = true
	}
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.LocalName != "" {
		d.LocalName = cfg.LocalName
	}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}
	return newSMTPGate(cfg, d.Dial)
}

func newSMTPGate(cfg SMTPConfig, dial dialFunc) *SMTPGate {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 5
	}
	if cfg.MessagesPerConnection <= 0 {
		cfg.MessagesPerConnection = 100
	}
	return &SMTPGate{
		cfg:   cfg,
		dial:  dial,
		now:   time.Now,
		slots: make(chan struct{}, cfg.MaxConnections),
		idle:  make(chan *smtpConn, cfg.MaxConnections),
	}
}

func (g *SMTPGate) Name() string { return "smtp" }

func (g *SMTPGate) Identity() Identity {
	addr := g.cfg.FromAddress
	if addr == "" {
		addr = g.cfg.Username
	}
	return Identity{Address: addr, AccountName: g.cfg.AccountName}
}

// Verify dials and authenticates once. The session is kept as the first
// pooled connection.
func (g *SMTPGate) Verify(ctx context.Context) error {
	conn, err := g.acquire(ctx)
	if err != nil {
		return &ConnectError{
			Provider: "smtp",
			Host:     g.cfg.Host,
			Port:     g.cfg.Port,
			Identity: g.cfg.Username,
			Err:      err,
		}
	}
	g.release(conn, true, false)
	log.Printf("[SMTP] Verified %s:%d as %s", g.cfg.Host, g.cfg.Port, logger.RedactEmail(g.cfg.Username))
	return nil
}

// Send delivers one message on a pooled session. Envelope-from defaults to
// the authenticated identity.
func (g *SMTPGate) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if g.isClosed() {
		return nil, ErrClosed
	}

	raw, err := encodeMIME(msg, g.cfg.DKIM, g.now())
	if err != nil {
		return nil, &SendError{Provider: "smtp", Response: err.Error(), Err: err}
	}

	envelopeFrom := msg.EnvelopeFrom
	if envelopeFrom == "" {
		envelopeFrom = g.Identity().Address
	}

	conn, err := g.acquire(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, smtpSendError(err)
	}

	err = conn.sc.Send(envelopeFrom, []string{msg.To}, bytes.NewReader(raw))
	g.release(conn, err == nil, true)
	if err != nil {
		log.Printf("[SMTP] Send to %s failed: %v", logger.RedactEmail(msg.To), err)
		return nil, smtpSendError(err)
	}

	return &Receipt{
		Provider:   "smtp",
		MessageID:  msg.ID,
		AcceptedAt: g.now(),
	}, nil
}

func (g *SMTPGate) acquire(ctx context.Context) (*smtpConn, error) {
	select {
	case c := <-g.idle:
		return c, nil
	default:
	}

	select {
	case c := <-g.idle:
		return c, nil
	case g.slots <- struct{}{}:
		sc, err := g.dial()
		if err != nil {
			<-g.slots
			return nil, err
		}
		return &smtpConn{sc: sc}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a session to the pool, or closes it when it failed, has
// reached its message quota, or the gate is closed.
func (g *SMTPGate) release(c *smtpConn, healthy, counted bool) {
	if counted {
		c.sent++
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !healthy || g.closed || c.sent >= g.cfg.MessagesPerConnection {
		c.sc.Close()
		<-g.slots
		return
	}
	g.idle <- c
}

func (g *SMTPGate) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Close shuts every idle session. Sessions still in use are closed when
// they are released.
func (g *SMTPGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	var errs []error
	for {
		select {
		case c := <-g.idle:
			if err := c.sc.Close(); err != nil {
				errs = append(errs, err)
			}
			<-g.slots
		default:
			return errors.Join(errs...)
		}
	}
}

var leadingCodeRe = regexp.MustCompile(`^(?:[^:]*:\s*)*?([2-5]\d{2})(?:[ -]|$)`)

// smtpReplyCode extracts the server reply code from err.
func smtpReplyCode(err error) int {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code
	}
	if m := leadingCodeRe.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return code
	}
	return 0
}

func smtpSendError(err error) *SendError {
	se := &SendError{Provider: "smtp", Code: smtpReplyCode(err), Err: err}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		se.Response = tpErr.Msg
	} else {
		se.Response = err.Error()
	}
	return se
}

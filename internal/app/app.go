// Package app assembles a dispatch service from configuration: the
// provider gate, its governor, the content pipeline and the metrics.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/content"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/retry"
	"github.com/ignite/campaign-dispatch/internal/transport"
)

// GateFactory opens a fresh gate for one dispatch.
type GateFactory func(ctx context.Context) (transport.Gate, error)

// Service runs dispatches against the configured provider. Each dispatch
// gets its own gate; the rate window is shared by all of them.
type Service struct {
	provider string
	opts     dispatch.Options
	renderer *content.Transformer
	metrics  *dispatch.Metrics
	limiter  transport.Limiter
	redis    *redis.Client
	newGate  GateFactory
	sleeper  retry.Sleeper
	log      *logger.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithGateFactory replaces the provider gate built from configuration.
func WithGateFactory(f GateFactory) Option {
	return func(s *Service) { s.newGate = f }
}

// WithSleeper replaces the backoff sleeper of every coordinator.
func WithSleeper(sl retry.Sleeper) Option {
	return func(s *Service) { s.sleeper = sl }
}

// WithRenderer replaces the content pipeline.
func WithRenderer(t *content.Transformer) Option {
	return func(s *Service) { s.renderer = t }
}

// New validates cfg and builds a Service. Metrics are registered on reg
// (default registry when nil).
func New(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	metrics, err := dispatch.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	s := &Service{
		provider: cfg.Provider,
		opts:     DispatchOptions(cfg),
		renderer: content.New(content.WithPhysicalAddress(cfg.Sender.PhysicalAddress)),
		metrics:  metrics,
		log:      logger.New("app"),
	}
	for _, o := range opts {
		o(s)
	}

	if cfg.RateLimit.MaxPerWindow > 0 {
		if cfg.RateLimit.RedisURL != "" {
			client, err := transport.NewRedisClientFromURL(ctx, cfg.RateLimit.RedisURL)
			if err != nil {
				return nil, err
			}
			s.redis = client
			s.limiter = transport.NewRedisWindowLimiter(client, cfg.RateLimit.RedisKey, cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window())
		} else {
			s.limiter = transport.NewWindowLimiter(cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window())
		}
	}

	if s.newGate == nil {
		signer, err := NewSigner(cfg.DKIM)
		if err != nil {
			s.Close()
			return nil, err
		}
		governor := transport.GovernorConfig{MaxInFlight: cfg.RateLimit.MaxInFlight, Limiter: s.limiter}
		s.newGate = func(ctx context.Context) (transport.Gate, error) {
			g, err := NewGate(ctx, cfg, signer)
			if err != nil {
				return nil, err
			}
			return transport.Govern(g, governor), nil
		}
	}

	s.log.Info("dispatch service ready", "provider", s.provider,
		"batch_size", s.opts.BatchSize, "concurrency", s.opts.Concurrency,
		"shared_rate_limit", s.redis != nil)
	return s, nil
}

// Provider returns the configured provider name.
func (s *Service) Provider() string { return s.provider }

// Dispatch runs one request through a fresh gate and coordinator.
func (s *Service) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Summary, error) {
	gate, err := s.newGate(ctx)
	if err != nil {
		return nil, err
	}
	// The coordinator closes the gate once pre-flight passes; this covers
	// requests rejected before that.
	defer gate.Close()

	options := []dispatch.Option{dispatch.WithMetrics(s.metrics), dispatch.WithLogger(logger.New("dispatch"))}
	if s.sleeper != nil {
		options = append(options, dispatch.WithSleeper(s.sleeper))
	}
	return dispatch.New(gate, s.renderer, s.opts, options...).Dispatch(ctx, req)
}

// Verify runs the provider pre-flight without sending anything.
func (s *Service) Verify(ctx context.Context) (transport.Identity, error) {
	gate, err := s.newGate(ctx)
	if err != nil {
		return transport.Identity{}, err
	}
	defer gate.Close()
	return gate.Identity(), gate.Verify(ctx)
}

// Close releases the shared Redis client, if any.
func (s *Service) Close() error {
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}

// DispatchOptions maps configuration onto coordinator options.
func DispatchOptions(cfg *config.Config) dispatch.Options {
	d := cfg.Dispatch
	return dispatch.Options{
		BatchSize:        d.BatchSize,
		Concurrency:      d.Concurrency,
		BatchDelay:       d.BatchDelay(),
		BulkThreshold:    d.BulkThreshold,
		FromName:         dispatch.FromNamePolicy(d.FromNamePolicy),
		IdentityMismatch: dispatch.MismatchPolicy(d.IdentityMismatch),
		ListUnsubscribe:  d.ListUnsubscribe,
		Retry: retry.Policy{
			BaseDelay:   time.Duration(d.Retry.BaseDelayMS) * time.Millisecond,
			MaxDelay:    time.Duration(d.Retry.MaxDelayMS) * time.Millisecond,
			MaxAttempts: d.Retry.MaxAttempts,
			Markers:     retry.DefaultMarkers,
		},
	}
}

// NewSigner returns nil when DKIM is not configured.
func NewSigner(cfg config.DKIMConfig) (*transport.DKIMSigner, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	signer, err := transport.NewDKIMSigner(cfg.Domain, cfg.Selector, cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("dkim: %w", err)
	}
	return signer, nil
}

// NewGate builds the ungoverned gate for cfg.Provider.
func NewGate(ctx context.Context, cfg *config.Config, signer *transport.DKIMSigner) (transport.Gate, error) {
	from := cfg.Sender.FromAddress
	account := cfg.Sender.AccountName

	switch cfg.Provider {
	case "smtp":
		if from == "" {
			from = cfg.SMTP.Username
		}
		return transport.NewSMTPGate(transport.SMTPConfig{
			Host:                  cfg.SMTP.Host,
			Port:                  cfg.SMTP.Port,
			Username:              cfg.SMTP.Username,
			Password:              cfg.SMTP.Password,
			FromAddress:           from,
			AccountName:           account,
			SSL:                   cfg.SMTP.SSL,
			InsecureSkipVerify:    cfg.SMTP.InsecureSkipVerify,
			LocalName:             cfg.SMTP.LocalName,
			Timeout:               cfg.SMTP.Timeout(),
			MaxConnections:        cfg.SMTP.MaxConnections,
			MessagesPerConnection: cfg.SMTP.MessagesPerConnection,
			DKIM:                  signer,
		}), nil
	case "ses":
		return transport.NewSESGate(ctx, transport.SESConfig{
			Region:           cfg.SES.Region,
			AccessKeyID:      cfg.SES.AccessKey,
			SecretAccessKey:  cfg.SES.SecretKey,
			FromAddress:      from,
			AccountName:      account,
			ConfigurationSet: cfg.SES.ConfigurationSet,
			DKIM:             signer,
		})
	case "sparkpost":
		return transport.NewSparkPostGate(transport.SparkPostConfig{
			APIKey:      cfg.SparkPost.APIKey,
			BaseURL:     cfg.SparkPost.BaseURL,
			FromAddress: from,
			AccountName: account,
			HTTPClient:  &http.Client{Timeout: cfg.SparkPost.Timeout()},
		}), nil
	case "mailgun":
		return transport.NewMailgunGate(transport.MailgunConfig{
			APIKey:      cfg.Mailgun.APIKey,
			Domain:      cfg.Mailgun.Domain,
			BaseURL:     cfg.Mailgun.BaseURL,
			FromAddress: from,
			AccountName: account,
			HTTPClient:  &http.Client{Timeout: cfg.Mailgun.Timeout()},
		}), nil
	case "resend":
		return transport.NewResendGate(transport.ResendConfig{
			APIKey:      cfg.Resend.APIKey,
			BaseURL:     cfg.Resend.BaseURL,
			FromAddress: from,
			AccountName: account,
		})
	default:
		return nil, fmt.Errorf("%w %q", config.ErrUnknownProvider, cfg.Provider)
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrUnknownProvider is returned by Validate for an unsupported provider.
var ErrUnknownProvider = errors.New("unknown email provider")

// Providers lists the supported transport names.
var Providers = []string{"smtp", "ses", "sparkpost", "mailgun", "resend"}

// Config holds all configuration for the dispatcher
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  string          `yaml:"provider"`
	Sender    SenderConfig    `yaml:"sender"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	SES       SESConfig       `yaml:"ses"`
	SparkPost SparkPostConfig `yaml:"sparkpost"`
	Mailgun   MailgunConfig   `yaml:"mailgun"`
	Resend    ResendConfig    `yaml:"resend"`
	DKIM      DKIMConfig      `yaml:"dkim"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port for net.Listen.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SenderConfig is the authenticated sending identity and footer data.
type SenderConfig struct {
	FromAddress     string `yaml:"from_address"`
	AccountName     string `yaml:"account_name"`
	PhysicalAddress string `yaml:"physical_address"`
}

// SMTPConfig holds relay settings
type SMTPConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	Username              string `yaml:"username"`
	Password              string `yaml:"password"`
	SSL                   bool   `yaml:"ssl"`
	InsecureSkipVerify    bool   `yaml:"insecure_skip_verify"`
	LocalName             string `yaml:"local_name"`
	TimeoutSeconds        int    `yaml:"timeout_seconds"`
	MaxConnections        int    `yaml:"max_connections"`
	MessagesPerConnection int    `yaml:"messages_per_connection"`
}

// Timeout returns the dial timeout.
func (c SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES configuration
type SESConfig struct {
	Region           string `yaml:"region"`
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// SparkPostConfig holds SparkPost API configuration
type SparkPostConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SparkPostConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MailgunConfig holds Mailgun API configuration
type MailgunConfig struct {
	APIKey         string `yaml:"api_key"`
	Domain         string `yaml:"domain"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c MailgunConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResendConfig holds Resend API configuration
type ResendConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// DKIMConfig enables DKIM signing for SMTP and SES raw sends.
type DKIMConfig struct {
	Domain     string `yaml:"domain"`
	Selector   string `yaml:"selector"`
	PrivateKey string `yaml:"private_key"`
}

// Enabled reports whether a signing key is configured.
func (c DKIMConfig) Enabled() bool { return strings.TrimSpace(c.PrivateKey) != "" }

// RetryConfig is the backoff schedule for transient failures.
type RetryConfig struct {
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
	MaxAttempts int `yaml:"max_attempts"`
}

// DispatchConfig holds batching and sender policy.
type DispatchConfig struct {
	BatchSize        int         `yaml:"batch_size"`
	Concurrency      int         `yaml:"concurrency"`
	BatchDelayMS     int         `yaml:"batch_delay_ms"`
	BulkThreshold    int         `yaml:"bulk_threshold"` // -1 disables the warning
	FromNamePolicy   string      `yaml:"from_name_policy"`  // sender|account
	IdentityMismatch string      `yaml:"identity_mismatch"` // warn|reject
	ListUnsubscribe  string      `yaml:"list_unsubscribe"`
	Retry            RetryConfig `yaml:"retry"`
}

// BatchDelay returns the pause between batches.
func (c DispatchConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}

// RateLimitConfig bounds provider throughput. With a Redis URL the window
// is shared by every dispatcher process. A negative value turns a limit off.
type RateLimitConfig struct {
	MaxInFlight   int    `yaml:"max_in_flight"`
	MaxPerWindow  int    `yaml:"max_per_window"`
	WindowSeconds int    `yaml:"window_seconds"`
	RedisURL      string `yaml:"redis_url"`
	RedisKey      string `yaml:"redis_key"`
}

// Window returns the rate window.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// LoggingConfig controls the structured logger
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether e-mail addresses are masked in logs (default on).
func (c LoggingConfig) Redact() bool { return c.RedactPII == nil || *c.RedactPII }

// ProviderLimits are the throughput defaults for one provider.
type ProviderLimits struct {
	MaxPerSecond  int
	MaxInFlight   int
	BulkThreshold int
}

// DefaultProviderLimits apply when the configuration leaves a limit unset.
// They sit under each provider's stock sending quota.
var DefaultProviderLimits = map[string]ProviderLimits{
	"smtp":      {MaxPerSecond: 5, MaxInFlight: 5, BulkThreshold: 500},
	"ses":       {MaxPerSecond: 14, MaxInFlight: 14, BulkThreshold: 50000},
	"sparkpost": {MaxPerSecond: 50, MaxInFlight: 20, BulkThreshold: 100000},
	"mailgun":   {MaxPerSecond: 20, MaxInFlight: 10, BulkThreshold: 100000},
	"resend":    {MaxPerSecond: 2, MaxInFlight: 2, BulkThreshold: 1000},
}

// Load reads and parses the configuration file. An empty path yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyProviderDefaults()
	return cfg, nil
}

func load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Provider == "" {
		cfg.Provider = "smtp"
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.TimeoutSeconds == 0 {
		cfg.SMTP.TimeoutSeconds = 10
	}
	if cfg.SMTP.MaxConnections == 0 {
		cfg.SMTP.MaxConnections = 5
	}
	if cfg.SMTP.MessagesPerConnection == 0 {
		cfg.SMTP.MessagesPerConnection = 100
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SparkPost.BaseURL == "" {
		cfg.SparkPost.BaseURL = "https://api.sparkpost.com/api/v1"
	}
	if cfg.SparkPost.TimeoutSeconds == 0 {
		cfg.SparkPost.TimeoutSeconds = 30
	}
	if cfg.Mailgun.BaseURL == "" {
		cfg.Mailgun.BaseURL = "https://api.mailgun.net/v3"
	}
	if cfg.Mailgun.TimeoutSeconds == 0 {
		cfg.Mailgun.TimeoutSeconds = 30
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 50
	}
	if cfg.Dispatch.Concurrency == 0 {
		cfg.Dispatch.Concurrency = 5
	}
	if cfg.Dispatch.BatchDelayMS == 0 {
		cfg.Dispatch.BatchDelayMS = 1000
	}
	if cfg.Dispatch.FromNamePolicy == "" {
		cfg.Dispatch.FromNamePolicy = "sender"
	}
	if cfg.Dispatch.IdentityMismatch == "" {
		cfg.Dispatch.IdentityMismatch = "warn"
	}
	if cfg.Dispatch.Retry.BaseDelayMS == 0 {
		cfg.Dispatch.Retry.BaseDelayMS = 1000
	}
	if cfg.Dispatch.Retry.MaxDelayMS == 0 {
		cfg.Dispatch.Retry.MaxDelayMS = 30000
	}
	if cfg.Dispatch.Retry.MaxAttempts == 0 {
		cfg.Dispatch.Retry.MaxAttempts = 3
	}
	if cfg.RateLimit.WindowSeconds == 0 {
		cfg.RateLimit.WindowSeconds = 1
	}
	if cfg.RateLimit.RedisKey == "" {
		cfg.RateLimit.RedisKey = "dispatch:ratelimit"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyProviderDefaults fills unset limits for the selected provider. It
// runs after environment overrides so EMAIL_PROVIDER picks the right ones.
// The rate window is per second unless configured.
func (cfg *Config) applyProviderDefaults() {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	lim, ok := DefaultProviderLimits[cfg.Provider]
	if !ok {
		return
	}
	if cfg.RateLimit.MaxPerWindow == 0 {
		cfg.RateLimit.MaxPerWindow = lim.MaxPerSecond * cfg.RateLimit.WindowSeconds
	}
	if cfg.RateLimit.MaxInFlight == 0 {
		cfg.RateLimit.MaxInFlight = lim.MaxInFlight
	}
	if cfg.Dispatch.BulkThreshold == 0 {
		cfg.Dispatch.BulkThreshold = lim.BulkThreshold
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) first, so secrets can live in .env
// locally and in real env vars in production. A missing config file is
// allowed.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyProviderDefaults()
	return cfg, nil
}

func (cfg *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a number", key, v))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	str("SERVER_HOST", &cfg.Server.Host)
	num("SERVER_PORT", &cfg.Server.Port)
	str("EMAIL_PROVIDER", &cfg.Provider)

	str("SENDER_FROM_ADDRESS", &cfg.Sender.FromAddress)
	str("SENDER_ACCOUNT_NAME", &cfg.Sender.AccountName)
	str("PHYSICAL_ADDRESS", &cfg.Sender.PhysicalAddress)

	str("SMTP_HOST", &cfg.SMTP.Host)
	num("SMTP_PORT", &cfg.SMTP.Port)
	str("SMTP_USER", &cfg.SMTP.Username)
	str("SMTP_PASS", &cfg.SMTP.Password)
	flag("SMTP_SSL", &cfg.SMTP.SSL)
	num("SMTP_MAX_CONNECTIONS", &cfg.SMTP.MaxConnections)
	num("SMTP_MESSAGES_PER_CONNECTION", &cfg.SMTP.MessagesPerConnection)

	str("AWS_SES_ACCESS_KEY", &cfg.SES.AccessKey)
	str("AWS_SES_SECRET_KEY", &cfg.SES.SecretKey)
	str("AWS_SES_REGION", &cfg.SES.Region)
	str("AWS_SES_CONFIGURATION_SET", &cfg.SES.ConfigurationSet)

	str("SPARKPOST_API_KEY", &cfg.SparkPost.APIKey)
	str("SPARKPOST_BASE_URL", &cfg.SparkPost.BaseURL)

	str("MAILGUN_API_KEY", &cfg.Mailgun.APIKey)
	str("MAILGUN_DOMAIN", &cfg.Mailgun.Domain)
	str("MAILGUN_BASE_URL", &cfg.Mailgun.BaseURL)

	str("RESEND_API_KEY", &cfg.Resend.APIKey)

	str("DKIM_DOMAIN", &cfg.DKIM.Domain)
	str("DKIM_SELECTOR", &cfg.DKIM.Selector)
	str("DKIM_PRIVATE_KEY", &cfg.DKIM.PrivateKey)

	num("DISPATCH_BATCH_SIZE", &cfg.Dispatch.BatchSize)
	num("DISPATCH_CONCURRENCY", &cfg.Dispatch.Concurrency)
	num("DISPATCH_BATCH_DELAY_MS", &cfg.Dispatch.BatchDelayMS)
	num("DISPATCH_BULK_THRESHOLD", &cfg.Dispatch.BulkThreshold)
	str("LIST_UNSUBSCRIBE", &cfg.Dispatch.ListUnsubscribe)

	str("REDIS_URL", &cfg.RateLimit.RedisURL)
	num("RATE_LIMIT_MAX_PER_WINDOW", &cfg.RateLimit.MaxPerWindow)
	num("RATE_LIMIT_MAX_IN_FLIGHT", &cfg.RateLimit.MaxInFlight)

	str("LOG_LEVEL", &cfg.Logging.Level)

	return errors.Join(errs...)
}

// Validate reports missing settings for the selected provider and
// out-of-range policy values.
func (cfg *Config) Validate() error {
	var errs []error
	missing := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required for provider %s", field, cfg.Provider))
		}
	}

	switch cfg.Provider {
	case "smtp":
		missing("smtp.host", cfg.SMTP.Host)
		missing("smtp.username", cfg.SMTP.Username)
		missing("smtp.password", cfg.SMTP.Password)
	case "ses":
		missing("sender.from_address", cfg.Sender.FromAddress)
	case "sparkpost":
		missing("sparkpost.api_key", cfg.SparkPost.APIKey)
		missing("sender.from_address", cfg.Sender.FromAddress)
	case "mailgun":
		missing("mailgun.api_key", cfg.Mailgun.APIKey)
		missing("mailgun.domain", cfg.Mailgun.Domain)
		missing("sender.from_address", cfg.Sender.FromAddress)
	case "resend":
		missing("resend.api_key", cfg.Resend.APIKey)
		missing("sender.from_address", cfg.Sender.FromAddress)
	default:
		return fmt.Errorf("%w %q (supported: %s)", ErrUnknownProvider, cfg.Provider, strings.Join(Providers, ", "))
	}

	switch cfg.Dispatch.FromNamePolicy {
	case "sender", "account":
	default:
		errs = append(errs, fmt.Errorf("dispatch.from_name_policy must be sender or account, got %q", cfg.Dispatch.FromNamePolicy))
	}
	switch cfg.Dispatch.IdentityMismatch {
	case "warn", "reject":
	default:
		errs = append(errs, fmt.Errorf("dispatch.identity_mismatch must be warn or reject, got %q", cfg.Dispatch.IdentityMismatch))
	}
	if cfg.Dispatch.BatchSize < 1 || cfg.Dispatch.Concurrency < 1 {
		errs = append(errs, errors.New("dispatch.batch_size and dispatch.concurrency must be positive"))
	}
	if cfg.DKIM.Enabled() && (cfg.DKIM.Domain == "" || cfg.DKIM.Selector == "") {
		errs = append(errs, errors.New("dkim.domain and dkim.selector are required with a private key"))
	}
	return errors.Join(errs...)
}

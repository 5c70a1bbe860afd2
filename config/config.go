package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultPort                  = "8080"
	defaultEnv                   = "development"
	defaultStorageDir            = "_output"
	defaultInboundDomain         = "inbox.meinedokbox.de"
	defaultSMTPMaxMessageBytes   = 25 << 20
	defaultSessionTTL            = 24 * time.Hour
	defaultLoginRatePerMinute    = 10
	defaultWebhookRatePerMinute  = 120
	defaultMaxUploadSizeMB       = 50
	defaultMaxBatchFiles         = 20
	defaultUploadConfirmationTTL = 15 * time.Minute
	defaultDuplicateCheckTimeout = 10 * time.Second
)

type Config struct {
	// Server
	Port string
	Env  string // development, production

	// Database
	DatabaseURL string

	// Documents
	StorageDir            string
	MaxUploadSizeMB       int
	MaxBatchFiles         int
	UploadConfirmationTTL time.Duration
	DuplicateCheckTimeout time.Duration

	// Inbound mail
	InboundDomain       string
	SMTPListenAddr      string // empty disables the SMTP listener
	SMTPDomain          string
	SMTPMaxMessageBytes int64
	MailgunSigningKey   string

	// Security
	SecureCookies        bool
	SessionTTL           time.Duration
	LoginRatePerMinute   int
	WebhookRatePerMinute int
}

// Load reads an optional .env file, then the environment, and validates the
// result.
func Load() (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", defaultPort),
		Env:               getEnv("ENV", defaultEnv),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		StorageDir:        getEnv("STORAGE_DIR", defaultStorageDir),
		InboundDomain:     strings.ToLower(strings.TrimSpace(getEnv("INBOUND_DOMAIN", defaultInboundDomain))),
		SMTPListenAddr:    getEnv("SMTP_LISTEN_ADDR", ""),
		MailgunSigningKey: getEnv("MAILGUN_SIGNING_KEY", ""),
		SecureCookies:     getEnv("SECURE_COOKIES", "false") == "true",
	}
	cfg.SMTPDomain = getEnv("SMTP_DOMAIN", cfg.InboundDomain)

	var err error
	if cfg.SMTPMaxMessageBytes, err = getEnvInt64("SMTP_MAX_MESSAGE_BYTES", defaultSMTPMaxMessageBytes); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getEnvDuration("SESSION_TTL", defaultSessionTTL); err != nil {
		return nil, err
	}
	if cfg.LoginRatePerMinute, err = getEnvInt("LOGIN_RATE_PER_MINUTE", defaultLoginRatePerMinute); err != nil {
		return nil, err
	}
	if cfg.WebhookRatePerMinute, err = getEnvInt("WEBHOOK_RATE_PER_MINUTE", defaultWebhookRatePerMinute); err != nil {
		return nil, err
	}
	if cfg.MaxUploadSizeMB, err = getEnvInt("MAX_UPLOAD_SIZE_MB", defaultMaxUploadSizeMB); err != nil {
		return nil, err
	}
	if cfg.MaxBatchFiles, err = getEnvInt("MAX_BATCH_FILES", defaultMaxBatchFiles); err != nil {
		return nil, err
	}
	if cfg.UploadConfirmationTTL, err = getEnvDuration("UPLOAD_CONFIRMATION_TTL", defaultUploadConfirmationTTL); err != nil {
		return nil, err
	}
	if cfg.DuplicateCheckTimeout, err = getEnvDuration("DUPLICATE_CHECK_TIMEOUT", defaultDuplicateCheckTimeout); err != nil {
		return nil, err
	}

	if cfg.MailgunSigningKey == "" && !cfg.IsProduction() {
		slog.Warn("MAILGUN_SIGNING_KEY not set, inbound webhook signatures will not be verified")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.InboundDomain == "" || !strings.Contains(c.InboundDomain, ".") {
		return fmt.Errorf("INBOUND_DOMAIN must be a domain name, got %q", c.InboundDomain)
	}
	if c.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE_MB must be positive")
	}
	if c.MaxBatchFiles <= 0 {
		return fmt.Errorf("MAX_BATCH_FILES must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.LoginRatePerMinute <= 0 || c.WebhookRatePerMinute <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	if c.UploadConfirmationTTL <= 0 || c.DuplicateCheckTimeout <= 0 {
		return fmt.Errorf("UPLOAD_CONFIRMATION_TTL and DUPLICATE_CHECK_TIMEOUT must be positive")
	}
	if c.IsProduction() && c.MailgunSigningKey == "" {
		return fmt.Errorf("MAILGUN_SIGNING_KEY is required in production")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// MaxUploadBytes is the per-file upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadSizeMB) << 20
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 15m: %w", key, err)
	}
	return v, nil
}

// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// WalletAPIURL is the backend base URL serving the identity and ledger routes.
	WalletAPIURL string `mapstructure:"WALLET_API_URL"`
	// OTPDeliveryURL is the base URL of the OTP delivery service; defaults to WalletAPIURL.
	OTPDeliveryURL string `mapstructure:"OTP_DELIVERY_URL"`
	// DatabaseURL is the local store DSN. sqlite://path (default) or postgres://...
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// HTTPTimeout is the per-request timeout for backend calls (e.g. "15s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`
	// OTPTTL is the lifetime of an issued OTP challenge (e.g. "5m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPResendCooldown is the delay after issue before a resend is allowed (e.g. "60s").
	OTPResendCooldown string `mapstructure:"OTP_RESEND_COOLDOWN"`
	// OTPMaxAttempts caps wrong-code submissions per challenge; 0 means unlimited until expiry.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// MaxAmount is the business ceiling for a single SEND or ADD (decimal string).
	MaxAmount string `mapstructure:"MAX_AMOUNT"`
	// ResultDisplayWindow is how long a dispatched result stays active (e.g. "5s").
	ResultDisplayWindow string `mapstructure:"RESULT_DISPLAY_WINDOW"`
	// LimitsPolicyFile optionally replaces the built-in Rego limits policy.
	LimitsPolicyFile string `mapstructure:"LIMITS_POLICY_FILE"`
	// SessionSecret, when set, encrypts the persisted session at rest.
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	// OTPReturnToClient when true enables dev OTP mode: no delivery call, the code is kept in memory
	// and printed by the CLI. Must not be true when Env is production (Load fails).
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zap level name (debug, info, warn, error).
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTLPEndpoint enables trace/metric/log export when set (e.g. "localhost:4317").
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure disables TLS for the OTLP connection.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("WALLET_API_URL", "http://localhost:8080")
	v.SetDefault("OTP_DELIVERY_URL", "")
	v.SetDefault("DATABASE_URL", "sqlite://paywallet.db")
	v.SetDefault("HTTP_TIMEOUT", "15s")
	v.SetDefault("OTP_TTL", "5m")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 0)
	v.SetDefault("MAX_AMOUNT", "100000")
	v.SetDefault("RESULT_DISPLAY_WINDOW", "5s")
	v.SetDefault("LIMITS_POLICY_FILE", "")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.WalletAPIURL = strings.TrimRight(strings.TrimSpace(cfg.WalletAPIURL), "/")
	if cfg.WalletAPIURL == "" {
		return nil, errors.New("config: WALLET_API_URL must be set")
	}
	if cfg.OTPDeliveryURL == "" {
		cfg.OTPDeliveryURL = cfg.WalletAPIURL
	}
	cfg.OTPDeliveryURL = strings.TrimRight(cfg.OTPDeliveryURL, "/")

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	if cfg.OTPMaxAttempts < 0 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must not be negative")
	}

	ceiling, err := decimal.NewFromString(cfg.MaxAmount)
	if err != nil || !ceiling.IsPositive() {
		return nil, errors.New("config: MAX_AMOUNT must be a positive decimal")
	}

	return &cfg, nil
}

// Timeout parses HTTPTimeout as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.HTTPTimeout, 15*time.Second)
}

// ChallengeTTL parses OTPTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDuration(c.OTPTTL, 5*time.Minute)
}

// ResendCooldown parses OTPResendCooldown as a time.Duration. Returns 60s if unset or invalid.
func (c *Config) ResendCooldown() time.Duration {
	return parseDuration(c.OTPResendCooldown, 60*time.Second)
}

// DisplayWindow parses ResultDisplayWindow as a time.Duration. Returns 5s if unset or invalid.
func (c *Config) DisplayWindow() time.Duration {
	return parseDuration(c.ResultDisplayWindow, 5*time.Second)
}

// MaxAmountDecimal returns MaxAmount as a decimal. Returns 100000 if unset or invalid.
func (c *Config) MaxAmountDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.MaxAmount)
	if err != nil || !d.IsPositive() {
		return decimal.NewFromInt(100000)
	}
	return d
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && strings.EqualFold(c.Env, "production")
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

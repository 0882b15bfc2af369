package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Recognised configuration keys. The same names are read from the config
// file and from the process environment.
const (
	KeyUseExternalSMTP = "USE_EXTERNAL_SMTP"
	KeyServer          = "SMTP_SERVER"
	KeyPort            = "SMTP_PORT"
	KeyUsername        = "SMTP_USERNAME"
	KeyPassword        = "SMTP_PASSWORD"
	KeyUseTLS          = "SMTP_USE_TLS"
	KeyUseSSL          = "SMTP_USE_SSL"
	KeyFromEmail       = "SMTP_FROM_EMAIL"
	KeyFromName        = "SMTP_FROM_NAME"
	KeyHelo            = "SMTP_HELO"
	KeyTimeout         = "SMTP_TIMEOUT"
	KeyTLSSkipVerify   = "SMTP_TLS_SKIP_VERIFY"
	KeyTLSCAFile       = "SMTP_TLS_CA_FILE"
	KeyTLSServerName   = "SMTP_TLS_SERVER_NAME"
)

const (
	defaultPort     = 587
	defaultFromName = "SSL Auto Renewal System"
	defaultTimeout  = 30 * time.Second
)

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > config file > Environment variables > Defaults
type Config struct {
	UseExternalSMTP bool
	Server          string
	Port            int
	Username        string
	Password        string
	UseTLS          bool
	UseSSL          bool
	FromEmail       string
	FromName        string
	HeloName        string
	Timeout         time.Duration
	TLSSkipVerify   bool
	TLSCAFile       string
	TLSServerName   string
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile string
	FromName   *string
	Timeout    *time.Duration
}

// SenderAddress returns the configured sender, falling back to the username.
func (c Config) SenderAddress() string {
	if c.FromEmail != "" {
		return c.FromEmail
	}
	return c.Username
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > config file > Environment variables > Defaults
func Load(overrides *CLIOverrides) (Config, error) {
	cfg := defaultConfig()

	applyEnvConfig(&cfg)

	if overrides != nil && overrides.ConfigFile != "" {
		values, err := ReadFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
		if err := applyValues(&cfg, values.Lookup); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", overrides.ConfigFile, err)
		}
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:     defaultPort,
		UseTLS:   true,
		FromName: defaultFromName,
		HeloName: localHostname(),
		Timeout:  defaultTimeout,
	}
}

type lookupFunc func(key string) (string, bool)

// applyValues copies every key present in lookup onto cfg. A present but
// empty string still overrides, so SMTP_FROM_NAME= disables the display name.
// Surrounding spaces are trimmed from every string except the password.
// Malformed numeric values are collected and returned together.
func applyValues(cfg *Config, lookup lookupFunc) error {
	var errs []error

	strs := map[string]*string{
		KeyServer:        &cfg.Server,
		KeyUsername:      &cfg.Username,
		KeyPassword:      &cfg.Password,
		KeyFromEmail:     &cfg.FromEmail,
		KeyFromName:      &cfg.FromName,
		KeyTLSCAFile:     &cfg.TLSCAFile,
		KeyTLSServerName: &cfg.TLSServerName,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			if key != KeyPassword {
				v = strings.TrimSpace(v)
			}
			*dst = v
		}
	}

	flags := map[string]*bool{
		KeyUseExternalSMTP: &cfg.UseExternalSMTP,
		KeyUseTLS:          &cfg.UseTLS,
		KeyUseSSL:          &cfg.UseSSL,
		KeyTLSSkipVerify:   &cfg.TLSSkipVerify,
	}
	for key, dst := range flags {
		if v, ok := lookup(key); ok {
			*dst = parseFlag(v)
		}
	}

	if v, ok := lookup(KeyHelo); ok && strings.TrimSpace(v) != "" {
		cfg.HeloName = strings.TrimSpace(v)
	}

	if v, ok := lookup(KeyPort); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", KeyPort, v))
		} else {
			cfg.Port = port
		}
	}

	if v, ok := lookup(KeyTimeout); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", KeyTimeout, err))
		} else {
			cfg.Timeout = d
		}
	}

	return errors.Join(errs...)
}

// applyEnvConfig applies environment variable configuration. Malformed
// values are skipped so a stray variable cannot break a valid config file.
func applyEnvConfig(cfg *Config) {
	_ = applyValues(cfg, os.LookupEnv)
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) {
	if overrides.FromName != nil && *overrides.FromName != "" {
		cfg.FromName = *overrides.FromName
	}

	if overrides.Timeout != nil && *overrides.Timeout > 0 {
		cfg.Timeout = *overrides.Timeout
	}
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", KeyPort, cfg.Port)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyTimeout, cfg.Timeout)
	}
	return nil
}

// parseFlag reports whether v spells "true", ignoring case.
func parseFlag(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "true")
}

func localHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Mail       MailConfig       `yaml:"mail"`
	DKIM       DKIMConfig       `yaml:"dkim"`
	Newsletter NewsletterConfig `yaml:"newsletter"`
	Storage    StorageConfig    `yaml:"storage"`
	API        APIConfig        `yaml:"api"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MailConfig contains outbound mail settings
type MailConfig struct {
	Mode          string        `yaml:"mode"` // smtp or sandbox
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	From          string        `yaml:"from"`
	FromName      string        `yaml:"from_name"`
	TLSMode       string        `yaml:"tls_mode"` // starttls, tls, none
	TLSSkipVerify bool          `yaml:"tls_skip_verify"`
	Timeout       time.Duration `yaml:"timeout"`
	Helo          string        `yaml:"helo"`

	// SandboxFailRate makes a share of sandbox deliveries fail (0..1)
	SandboxFailRate float64 `yaml:"sandbox_fail_rate"`
}

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

// NewsletterConfig contains digest settings
type NewsletterConfig struct {
	SiteName   string `yaml:"site_name"`
	SiteURL    string `yaml:"site_url"`
	DigestSize int    `yaml:"digest_size"` // Articles per digest when none are given (default: 5)
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path        string `yaml:"path"`         // SQLite database
	SandboxPath string `yaml:"sandbox_path"` // bbolt file for captured mail
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	Enabled        *bool         `yaml:"enabled"` // Default: true
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	APIKeyHash     string        `yaml:"api_key_hash"`     // bcrypt hash, takes precedence over api_key
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 5m, bulk sends are synchronous)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
	AllowedIPs     []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access API (empty = allow all)
}

// IsEnabled reports whether the HTTP API should be started
func (a APIConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"` // IP addresses/CIDRs allowed to access metrics
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result. An empty path means no file.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides the mail section from MAIL_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"MAIL_SERVER":         &c.Mail.Host,
		"MAIL_USERNAME":       &c.Mail.Username,
		"MAIL_PASSWORD":       &c.Mail.Password,
		"MAIL_DEFAULT_SENDER": &c.Mail.From,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("MAIL_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MAIL_PORT %q: %w", v, err)
		}
		c.Mail.Port = port
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Mail.Mode == "" {
		c.Mail.Mode = "smtp"
	}
	if c.Mail.Port == 0 {
		c.Mail.Port = 587
	}
	if c.Mail.TLSMode == "" {
		c.Mail.TLSMode = "starttls"
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 30 * time.Second
	}
	if c.Mail.Helo == "" {
		hostname, _ := os.Hostname()
		c.Mail.Helo = hostname
	}

	if c.DKIM.Selector == "" {
		c.DKIM.Selector = "newsflash"
	}

	if c.Newsletter.SiteName == "" {
		c.Newsletter.SiteName = "NewsFlash247"
	}
	if c.Newsletter.DigestSize == 0 {
		c.Newsletter.DigestSize = 5
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = c.Newsletter.SiteName
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/newsflash/newsflash.db"
	}
	if c.Storage.SandboxPath == "" {
		c.Storage.SandboxPath = "/var/lib/newsflash/sandbox.db"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 5 * time.Minute
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for errors. Missing SMTP credentials are
// not an error: sends then fail with a configuration error and are logged.
func (c *Config) Validate() error {
	validModes := map[string]bool{"smtp": true, "sandbox": true}
	if !validModes[c.Mail.Mode] {
		return fmt.Errorf("invalid mail.mode: %s (must be smtp or sandbox)", c.Mail.Mode)
	}

	validTLSModes := map[string]bool{"starttls": true, "tls": true, "none": true}
	if !validTLSModes[c.Mail.TLSMode] {
		return fmt.Errorf("invalid mail.tls_mode: %s (must be starttls, tls, or none)", c.Mail.TLSMode)
	}

	if c.Mail.Port < 0 || c.Mail.Port > 65535 {
		return fmt.Errorf("invalid mail.port: %d", c.Mail.Port)
	}

	if c.Mail.SandboxFailRate < 0 || c.Mail.SandboxFailRate > 1 {
		return fmt.Errorf("mail.sandbox_fail_rate must be between 0 and 1")
	}

	if c.Newsletter.DigestSize < 0 {
		return fmt.Errorf("newsletter.digest_size must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if err := c.validateDKIM(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateDKIM() error {
	if !c.DKIM.Enabled {
		return nil
	}
	if c.DKIM.Domain == "" {
		return fmt.Errorf("dkim.domain is required when DKIM is enabled")
	}
	if c.DKIM.KeyFile == "" {
		return fmt.Errorf("dkim.key_file is required when DKIM is enabled")
	}
	return nil
}

// MailConfigured reports whether everything needed to send over SMTP is set
func (c *Config) MailConfigured() bool {
	if c.Mail.Mode == "sandbox" {
		return true
	}
	return c.Mail.Host != "" && c.Mail.Username != "" && c.Mail.Password != "" && c.Mail.From != ""
}

// Package config holds the daemon's YAML configuration: load, defaults,
// validation. The zero value plus applyDefaults is a runnable local setup
// except for the processor credentials, which have no sane default and are
// required by Validate.
package config

import "time"

// Config is the root configuration for a payd instance.
type Config struct {
	Live     bool           `yaml:"live"`
	Server   ServerConfig   `yaml:"server"`
	Currency CurrencyConfig `yaml:"currency"`
	Session  SessionConfig  `yaml:"session"`
	Journal  JournalConfig  `yaml:"journal"`
	Preorder PreorderConfig `yaml:"preorder"`
	Card     CardConfig     `yaml:"card"`
	Paypal   PaypalConfig   `yaml:"paypal"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Network       string        `yaml:"network"` // "tcp" or "unix"
	Addr          string        `yaml:"addr"`    // host:port, or socket path for unix
	MaxConns      int           `yaml:"max_conns"`
	MaxLineLen    int           `yaml:"max_line_len"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
	AcceptRate    float64       `yaml:"accept_rate"` // per-source connections/sec, 0 disables
	AcceptBurst   int           `yaml:"accept_burst"`
}

// CurrencyConfig holds the exchange-rate file settings.
type CurrencyConfig struct {
	RatesFile      string        `yaml:"rates_file"`
	ReloadInterval time.Duration `yaml:"reload_interval"` // mtime poll cadence
}

// SessionConfig holds the session store limits.
type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	MaxAliases  int           `yaml:"max_aliases"`
	MaxFields   int           `yaml:"max_fields"`
	MaxBytes    int           `yaml:"max_bytes"`
	DefaultTTL  time.Duration `yaml:"default_ttl"`
	MaxTTL      time.Duration `yaml:"max_ttl"`
}

// JournalConfig holds the audit journal settings.
type JournalConfig struct {
	Path          string        `yaml:"path"`
	FsyncInterval time.Duration `yaml:"fsync_interval"`
}

// PreorderConfig holds the preorder database settings.
type PreorderConfig struct {
	Path string `yaml:"path"`
}

// CardConfig holds card processor settings.
type CardConfig struct {
	BaseURL    string        `yaml:"base_url"`
	SecretKey  string        `yaml:"secret_key"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// PaypalConfig holds checkout processor settings.
type PaypalConfig struct {
	BaseURL       string        `yaml:"base_url"` // empty selects live/sandbox by the Live flag
	ClientID      string        `yaml:"client_id"`
	Secret        string        `yaml:"secret"`
	ReturnURL     string        `yaml:"return_url"`
	CancelURL     string        `yaml:"cancel_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	NotifyTimeout time.Duration `yaml:"notify_timeout"` // budget for async notification checks
}

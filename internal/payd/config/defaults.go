package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultNetwork       = "tcp"
	DefaultAddr          = "127.0.0.1:6301"
	DefaultMaxConns      = 128
	DefaultMaxLineLen    = 2048
	DefaultReadTimeout   = 60 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultShutdownGrace = 10 * time.Second
	DefaultAcceptRate    = 50.0
	DefaultAcceptBurst   = 100

	DefaultRatesFile      = "exchange-rates.conf"
	DefaultReloadInterval = 15 * time.Second

	DefaultMaxSessions = 512
	DefaultMaxAliases  = 512
	DefaultMaxFields   = 64
	DefaultMaxBytes    = 64 * 1024
	DefaultSessionTTL  = 30 * time.Minute
	DefaultMaxTTL      = 4 * time.Hour

	DefaultJournalPath   = "payd-journal.log"
	DefaultFsyncInterval = 1 * time.Second

	DefaultPreorderPath = "preorders.db"

	DefaultCardBaseURL = "https://api.stripe.com"
	// The checkout processor's base URL default depends on the live flag.
	DefaultPaypalLiveURL    = "https://api-m.paypal.com"
	DefaultPaypalSandboxURL = "https://api-m.sandbox.paypal.com"

	DefaultGatewayTimeout    = 20 * time.Second
	DefaultGatewayMaxRetries = 2
	DefaultNotifyTimeout     = 30 * time.Second
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Network == "" {
		c.Server.Network = DefaultNetwork
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.MaxConns == 0 {
		c.Server.MaxConns = DefaultMaxConns
	}
	if c.Server.MaxLineLen == 0 {
		c.Server.MaxLineLen = DefaultMaxLineLen
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = DefaultShutdownGrace
	}
	if c.Server.AcceptRate == 0 {
		c.Server.AcceptRate = DefaultAcceptRate
	}
	if c.Server.AcceptBurst == 0 {
		c.Server.AcceptBurst = DefaultAcceptBurst
	}

	// Currency defaults
	if c.Currency.RatesFile == "" {
		c.Currency.RatesFile = DefaultRatesFile
	}
	if c.Currency.ReloadInterval == 0 {
		c.Currency.ReloadInterval = DefaultReloadInterval
	}

	// Session defaults
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = DefaultMaxSessions
	}
	if c.Session.MaxAliases == 0 {
		c.Session.MaxAliases = DefaultMaxAliases
	}
	if c.Session.MaxFields == 0 {
		c.Session.MaxFields = DefaultMaxFields
	}
	if c.Session.MaxBytes == 0 {
		c.Session.MaxBytes = DefaultMaxBytes
	}
	if c.Session.DefaultTTL == 0 {
		c.Session.DefaultTTL = DefaultSessionTTL
	}
	if c.Session.MaxTTL == 0 {
		c.Session.MaxTTL = DefaultMaxTTL
	}

	// Journal defaults
	if c.Journal.Path == "" {
		c.Journal.Path = DefaultJournalPath
	}
	if c.Journal.FsyncInterval == 0 {
		c.Journal.FsyncInterval = DefaultFsyncInterval
	}

	// Preorder defaults
	if c.Preorder.Path == "" {
		c.Preorder.Path = DefaultPreorderPath
	}

	// Card processor defaults
	if c.Card.BaseURL == "" {
		c.Card.BaseURL = DefaultCardBaseURL
	}
	if c.Card.Timeout == 0 {
		c.Card.Timeout = DefaultGatewayTimeout
	}
	if c.Card.MaxRetries == 0 {
		c.Card.MaxRetries = DefaultGatewayMaxRetries
	}

	// Checkout processor defaults
	if c.Paypal.BaseURL == "" {
		if c.Live {
			c.Paypal.BaseURL = DefaultPaypalLiveURL
		} else {
			c.Paypal.BaseURL = DefaultPaypalSandboxURL
		}
	}
	if c.Paypal.Timeout == 0 {
		c.Paypal.Timeout = DefaultGatewayTimeout
	}
	if c.Paypal.MaxRetries == 0 {
		c.Paypal.MaxRetries = DefaultGatewayMaxRetries
	}
	if c.Paypal.NotifyTimeout == 0 {
		c.Paypal.NotifyTimeout = DefaultNotifyTimeout
	}
}

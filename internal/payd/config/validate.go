package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	switch c.Server.Network {
	case "tcp", "unix":
	default:
		return fmt.Errorf("server.network must be tcp or unix, got %q", c.Server.Network)
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Server.MaxConns < 1 {
		return errors.New("server.max_conns must be >= 1")
	}
	if c.Server.MaxLineLen < 256 {
		return fmt.Errorf("server.max_line_len must be >= 256, got %d", c.Server.MaxLineLen)
	}
	if c.Server.AcceptRate < 0 {
		return errors.New("server.accept_rate must be >= 0")
	}
	if c.Server.AcceptRate > 0 && c.Server.AcceptBurst < 1 {
		return errors.New("server.accept_burst must be >= 1 when accept_rate is set")
	}

	if c.Session.MaxFields < 1 {
		return errors.New("session.max_fields must be >= 1")
	}
	if c.Session.MaxBytes < 1 {
		return errors.New("session.max_bytes must be >= 1")
	}
	if c.Session.MaxTTL < c.Session.DefaultTTL {
		return fmt.Errorf("session.max_ttl (%v) cannot be below session.default_ttl (%v)",
			c.Session.MaxTTL, c.Session.DefaultTTL)
	}

	if c.Journal.Path == "" {
		return errors.New("journal.path is required")
	}
	if c.Preorder.Path == "" {
		return errors.New("preorder.path is required")
	}

	if c.Card.SecretKey == "" {
		return errors.New("card.secret_key is required")
	}
	if c.Paypal.ClientID == "" {
		return errors.New("paypal.client_id is required")
	}
	if c.Paypal.Secret == "" {
		return errors.New("paypal.secret is required")
	}
	if c.Paypal.ReturnURL == "" {
		return errors.New("paypal.return_url is required")
	}
	if c.Paypal.CancelURL == "" {
		return errors.New("paypal.cancel_url is required")
	}

	return nil
}

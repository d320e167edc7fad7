package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenSlack is how long before expiry a cached access token is considered
// stale. Refreshing early avoids racing the processor's clock.
const tokenSlack = 60 * time.Second

// CheckoutConfig configures the checkout (PayPal-style) client.
type CheckoutConfig struct {
	BaseURL   string
	ClientID  string
	Secret    string
	ReturnURL string // where the processor redirects after approval
	CancelURL string // where it redirects after the donor bails
	Live      bool   // production account vs sandbox
}

// CheckoutClient talks to the redirect-based checkout processor. The flow
// is three-legged: prepare an order and send the donor to the returned
// approval URL, then execute (capture) once the processor redirects them
// back. The client authenticates with OAuth2 client credentials and caches
// the access token until shortly before it expires.
type CheckoutClient struct {
	t   *transport
	cfg CheckoutConfig

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewCheckoutClient creates a checkout client.
func NewCheckoutClient(cfg CheckoutConfig, opts ...Option) *CheckoutClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &CheckoutClient{
		t:   newTransport(opts...),
		cfg: cfg,
	}
}

// PrepareRequest describes the order to set up. Amount is the canonical
// decimal string for the currency ("10.00", "1500").
type PrepareRequest struct {
	Amount      string
	Currency    string
	Description string
	SessionID   string // carried through the redirect as the order's custom id
}

// PrepareResult is a prepared order awaiting donor approval.
type PrepareResult struct {
	OrderID     string
	RedirectURL string
}

// CaptureResult is an executed (captured) order.
type CaptureResult struct {
	ChargeID string
	Amount   string
	Currency string
	Email    string
	Live     bool
}

// Prepare creates an order and returns the approval redirect.
func (c *CheckoutClient) Prepare(ctx context.Context, req PrepareRequest) (*PrepareResult, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": strings.ToUpper(req.Currency),
				"value":         req.Amount,
			},
			"description": req.Description,
			"custom_id":   req.SessionID,
		}},
		"application_context": map[string]string{
			"return_url": c.cfg.ReturnURL,
			"cancel_url": c.cfg.CancelURL,
		},
	}

	body, err := c.authed(ctx, "/v2/checkout/orders", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID    string `json:"id"`
		Links []struct {
			Rel  string `json:"rel"`
			Href string `json:"href"`
		} `json:"links"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}

	for _, l := range resp.Links {
		if l.Rel == "approve" {
			return &PrepareResult{OrderID: resp.ID, RedirectURL: l.Href}, nil
		}
	}
	return nil, fmt.Errorf("gateway: order %s carries no approval link", resp.ID)
}

// Execute captures a previously approved order.
func (c *CheckoutClient) Execute(ctx context.Context, orderID string) (*CaptureResult, error) {
	body, err := c.authed(ctx, "/v2/checkout/orders/"+url.PathEscape(orderID)+"/capture", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status string `json:"status"`
		Payer  struct {
			Email string `json:"email_address"`
		} `json:"payer"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Amount struct {
						Currency string `json:"currency_code"`
						Value    string `json:"value"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}

	if resp.Status != "COMPLETED" {
		return nil, fmt.Errorf("gateway: capture ended in status %s", resp.Status)
	}
	for _, u := range resp.PurchaseUnits {
		for _, capture := range u.Payments.Captures {
			return &CaptureResult{
				ChargeID: capture.ID,
				Amount:   capture.Amount.Value,
				Currency: capture.Amount.Currency,
				Email:    resp.Payer.Email,
				Live:     c.cfg.Live,
			}, nil
		}
	}
	return nil, fmt.Errorf("gateway: completed capture carries no capture id")
}

// VerifyNotification echoes an asynchronous payment notification back to
// the processor for validation. The processor answers with a bare VERIFIED
// or INVALID body. Anything but VERIFIED is an error; the caller only logs
// it, since the notifying connection is long gone.
func (c *CheckoutClient) VerifyNotification(ctx context.Context, form url.Values) error {
	echo := url.Values{}
	echo.Set("cmd", "_notify-validate")
	for k, vs := range form {
		for _, v := range vs {
			echo.Add(k, v)
		}
	}

	body, err := c.t.roundTrip(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/cgi-bin/webscr", strings.NewReader(echo.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return err
	}

	if verdict := strings.TrimSpace(string(body)); verdict != "VERIFIED" {
		return fmt.Errorf("gateway: notification rejected: %s", verdict)
	}
	return nil
}

// authed POSTs a JSON payload (nil for an empty body) with a bearer token,
// fetching or refreshing the cached access token first.
func (c *CheckoutClient) authed(ctx context.Context, path string, payload any) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var raw []byte
	if payload != nil {
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("gateway: encode request: %w", err)
		}
	}

	return c.t.roundTrip(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+path, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
}

// token returns a valid access token, reusing the cached one when it still
// has tokenSlack of life left.
func (c *CheckoutClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > tokenSlack {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	body, err := c.t.roundTrip(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.Secret)
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("gateway: fetch access token: %w", err)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := decode(body, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("gateway: token endpoint returned no token")
	}

	c.accessToken = resp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

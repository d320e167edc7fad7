package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// CardClient talks to the card processor. The processor's API is
// form-encoded: card details go in once to mint a single-use token, the
// token is then charged. The daemon never stores card data; it passes
// through this client and is gone.
type CardClient struct {
	t       *transport
	baseURL string
	secret  string
}

// NewCardClient creates a client for the card processor at baseURL,
// authenticating with the given secret key.
func NewCardClient(baseURL, secret string, opts ...Option) *CardClient {
	return &CardClient{
		t:       newTransport(opts...),
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
	}
}

// CardDetails is the raw card data for tokenization. Number and CVC are
// strings: leading zeros are significant and these values must never pass
// through integer formatting.
type CardDetails struct {
	Number   string
	ExpMonth int
	ExpYear  int
	CVC      string
}

// Token is a minted single-use card token.
type Token struct {
	ID    string
	Last4 string
	Live  bool
}

// Charge is a completed card charge.
type Charge struct {
	ID   string
	Live bool
}

// ChargeRequest describes a charge against a previously minted token.
// Amount is in the currency's minor unit.
type ChargeRequest struct {
	Token       string
	Currency    string
	Amount      uint64
	Email       string
	Description string
}

// CreateToken exchanges card details for a single-use token.
func (c *CardClient) CreateToken(ctx context.Context, card CardDetails) (*Token, error) {
	form := url.Values{}
	form.Set("card[number]", card.Number)
	form.Set("card[exp_month]", strconv.Itoa(card.ExpMonth))
	form.Set("card[exp_year]", strconv.Itoa(card.ExpYear))
	form.Set("card[cvc]", card.CVC)

	body, err := c.t.roundTrip(ctx, c.formRequest("/v1/tokens", form))
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID   string `json:"id"`
		Live bool   `json:"livemode"`
		Card struct {
			Last4 string `json:"last4"`
		} `json:"card"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return &Token{ID: resp.ID, Last4: resp.Card.Last4, Live: resp.Live}, nil
}

// CreateCharge charges a token. The processor consumes the token whether or
// not the charge succeeds.
func (c *CardClient) CreateCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatUint(req.Amount, 10))
	form.Set("currency", strings.ToLower(req.Currency))
	form.Set("source", req.Token)
	if req.Email != "" {
		form.Set("receipt_email", req.Email)
	}
	if req.Description != "" {
		form.Set("description", req.Description)
	}

	body, err := c.t.roundTrip(ctx, c.formRequest("/v1/charges", form))
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID   string `json:"id"`
		Live bool   `json:"livemode"`
	}
	if err := decode(body, &resp); err != nil {
		return nil, err
	}
	return &Charge{ID: resp.ID, Live: resp.Live}, nil
}

// formRequest returns a request builder for a form-encoded POST. Built
// fresh per attempt so the body reader is never reused.
func (c *CardClient) formRequest(path string, form url.Values) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+path, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Authorization", "Bearer "+c.secret)
		return req, nil
	}
}

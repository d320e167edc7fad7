package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// newCheckoutServer fakes the checkout processor: OAuth2 token endpoint,
// order creation, capture, and notification validation.
func newCheckoutServer(t *testing.T, tokenCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-1" || pass != "secret-1" {
			t.Errorf("basic auth = %q/%q/%v", user, pass, ok)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		w.Write([]byte(`{"access_token":"at-777","expires_in":3600}`))
	})

	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-777" {
			t.Errorf("Authorization = %q", got)
		}
		var payload struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				Amount struct {
					Currency string `json:"currency_code"`
					Value    string `json:"value"`
				} `json:"amount"`
				CustomID string `json:"custom_id"`
			} `json:"purchase_units"`
			AppContext struct {
				ReturnURL string `json:"return_url"`
			} `json:"application_context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode order payload: %v", err)
		}
		if payload.Intent != "CAPTURE" {
			t.Errorf("intent = %q", payload.Intent)
		}
		if len(payload.PurchaseUnits) != 1 || payload.PurchaseUnits[0].Amount.Value != "10.00" {
			t.Errorf("purchase units = %+v", payload.PurchaseUnits)
		}
		if payload.AppContext.ReturnURL != "https://donate.example.org/back" {
			t.Errorf("return_url = %q", payload.AppContext.ReturnURL)
		}
		w.Write([]byte(`{"id":"ORDER-1","links":[
			{"rel":"self","href":"https://api.example.org/ORDER-1"},
			{"rel":"approve","href":"https://pay.example.org/approve/ORDER-1"}]}`))
	})

	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"COMPLETED",
			"payer":{"email_address":"donor@example.org"},
			"purchase_units":[{"payments":{"captures":[
				{"id":"CAP-9","amount":{"currency_code":"EUR","value":"10.00"}}]}}]}`))
	})

	mux.HandleFunc("/cgi-bin/webscr", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("cmd"); got != "_notify-validate" {
			t.Errorf("cmd = %q", got)
		}
		if r.PostForm.Get("txn_id") == "bad" {
			w.Write([]byte("INVALID"))
			return
		}
		w.Write([]byte("VERIFIED"))
	})

	return httptest.NewServer(mux)
}

func newTestCheckoutClient(srvURL string) *CheckoutClient {
	return NewCheckoutClient(CheckoutConfig{
		BaseURL:   srvURL,
		ClientID:  "client-1",
		Secret:    "secret-1",
		ReturnURL: "https://donate.example.org/back",
		CancelURL: "https://donate.example.org/cancel",
		Live:      false,
	})
}

func TestPrepare(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newCheckoutServer(t, &tokenCalls)
	defer srv.Close()

	c := newTestCheckoutClient(srv.URL)

	res, err := c.Prepare(context.Background(), PrepareRequest{
		Amount:      "10.00",
		Currency:    "EUR",
		Description: "July donation",
		SessionID:   "sess-1",
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if res.OrderID != "ORDER-1" {
		t.Errorf("OrderID = %q", res.OrderID)
	}
	if res.RedirectURL != "https://pay.example.org/approve/ORDER-1" {
		t.Errorf("RedirectURL = %q, want the approve link", res.RedirectURL)
	}

	// A second call reuses the cached access token.
	if _, err := c.Prepare(context.Background(), PrepareRequest{
		Amount: "10.00", Currency: "EUR",
	}); err != nil {
		t.Fatalf("second Prepare: %v", err)
	}
	if got, want := tokenCalls.Load(), int32(1); got != want {
		t.Errorf("token endpoint calls = %d, want %d", got, want)
	}
}

func TestExecute(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newCheckoutServer(t, &tokenCalls)
	defer srv.Close()

	c := newTestCheckoutClient(srv.URL)

	res, err := c.Execute(context.Background(), "ORDER-1")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.ChargeID != "CAP-9" {
		t.Errorf("ChargeID = %q", res.ChargeID)
	}
	if res.Amount != "10.00" || res.Currency != "EUR" {
		t.Errorf("amount = %q %q", res.Amount, res.Currency)
	}
	if res.Email != "donor@example.org" {
		t.Errorf("Email = %q", res.Email)
	}
	if res.Live {
		t.Error("Live = true for a sandbox client")
	}
}

func TestExecuteIncomplete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"at-777","expires_in":3600}`))
	})
	mux.HandleFunc("/v2/checkout/orders/ORDER-2/capture", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"PENDING"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := newTestCheckoutClient(srv.URL)

	_, err := c.Execute(context.Background(), "ORDER-2")
	if err == nil || !strings.Contains(err.Error(), "PENDING") {
		t.Fatalf("error = %v, want capture status failure", err)
	}
}

func TestVerifyNotification(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := newCheckoutServer(t, &tokenCalls)
	defer srv.Close()

	c := newTestCheckoutClient(srv.URL)

	good := url.Values{"txn_id": {"tx-1"}, "payment_status": {"Completed"}}
	if err := c.VerifyNotification(context.Background(), good); err != nil {
		t.Fatalf("VerifyNotification: %v", err)
	}

	bad := url.Values{"txn_id": {"bad"}}
	if err := c.VerifyNotification(context.Background(), bad); err == nil {
		t.Fatal("want error for INVALID verdict")
	}
}

package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"payd.lopezb.com/internal/payd/gateway"
	"payd.lopezb.com/internal/payd/journal"
)

func TestCardToken(t *testing.T) {
	app := newTestApp(t)
	cards := app.cards.(*fakeCards)

	raw := dispatch(t, app,
		"CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2030\nExp-Month: 7\nCvc: 0314\nEmail: donor@example.org\n\n")
	status, lines := parseResponse(t, raw)

	if status != "OK" {
		t.Fatalf("status = %q, want OK", status)
	}
	if cards.tokenCalls != 1 {
		t.Fatalf("tokenCalls = %d, want 1", cards.tokenCalls)
	}

	want := gateway.CardDetails{Number: "4242424242424242", ExpMonth: 7, ExpYear: 2030, CVC: "0314"}
	if cards.lastCard != want {
		t.Errorf("gateway saw %+v, want %+v", cards.lastCard, want)
	}

	if got, _ := fieldValue(lines, "Token"); got != "tok_42" {
		t.Errorf("Token = %q, want %q", got, "tok_42")
	}
	if got, _ := fieldValue(lines, "Last4"); got != "4242" {
		t.Errorf("Last4 = %q, want %q", got, "4242")
	}
	if got, _ := fieldValue(lines, "Live"); got != "f" {
		t.Errorf("Live = %q, want %q", got, "f")
	}
	if got, _ := fieldValue(lines, "Email"); got != "donor@example.org" {
		t.Errorf("Email = %q, want %q", got, "donor@example.org")
	}

	// The card data must not survive into the reply.
	if strings.Contains(raw, "4242424242424242") || strings.Contains(raw, "Cvc") {
		t.Errorf("card data leaked into the response: %q", raw)
	}
}

func TestCardTokenValidation(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{
			name:  "missing number",
			frame: "CARDTOKEN\nExp-Year: 2030\nExp-Month: 7\nCvc: 314\n\n",
			want:  "ERR 110 (Number missing)\n\n",
		},
		{
			name:  "missing expiry year",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Month: 7\nCvc: 314\n\n",
			want:  "ERR 110 (Exp-Year missing)\n\n",
		},
		{
			name:  "expiry year before epoch",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 1999\nExp-Month: 7\nCvc: 314\n\n",
			want:  "ERR 111 (Exp-Year invalid)\n\n",
		},
		{
			name:  "expiry year absurd",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2200\nExp-Month: 7\nCvc: 314\n\n",
			want:  "ERR 111 (Exp-Year invalid)\n\n",
		},
		{
			name:  "expiry month out of range",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2030\nExp-Month: 13\nCvc: 314\n\n",
			want:  "ERR 111 (Exp-Month invalid)\n\n",
		},
		{
			name:  "expiry month not a number",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2030\nExp-Month: July\nCvc: 314\n\n",
			want:  "ERR 111 (Exp-Month invalid)\n\n",
		},
		{
			name:  "missing cvc",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2030\nExp-Month: 7\n\n",
			want:  "ERR 110 (Cvc missing)\n\n",
		},
		{
			name:  "cvc too short",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2030\nExp-Month: 7\nCvc: 12\n\n",
			want:  "ERR 111 (Cvc invalid)\n\n",
		},
		{
			name:  "cvc not a number",
			frame: "CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2030\nExp-Month: 7\nCvc: abc\n\n",
			want:  "ERR 111 (Cvc invalid)\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			cards := app.cards.(*fakeCards)

			if got := dispatch(t, app, tt.frame); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if cards.tokenCalls != 0 {
				t.Errorf("gateway called %d times despite invalid request", cards.tokenCalls)
			}
		})
	}
}

func TestCardTokenGatewayFailure(t *testing.T) {
	app := newTestApp(t)
	app.cards.(*fakeCards).err = &gateway.APIError{StatusCode: 402, Message: "Your card was declined"}

	raw := dispatch(t, app,
		"CARDTOKEN\nNumber: 4242424242424242\nExp-Year: 2030\nExp-Month: 7\nCvc: 314\n\n")

	if want := "ERR 120 (Your card was declined)\n\n"; raw != want {
		t.Errorf("got %q, want %q", raw, want)
	}
}

func TestChargeCard(t *testing.T) {
	app := newTestApp(t)
	cards := app.cards.(*fakeCards)
	jrnl := app.journal.(*fakeJournal)

	status, lines := parseResponse(t, dispatch(t, app,
		"CHARGECARD\nCurrency: EUR\nAmount: 10.5\nCard-Token: tok_42\nEmail: donor@example.org\nDesc: Yearly donation\n\n"))

	if status != "OK" {
		t.Fatalf("status = %q, want OK", status)
	}

	want := gateway.ChargeRequest{
		Token:       "tok_42",
		Currency:    "EUR",
		Amount:      1050,
		Email:       "donor@example.org",
		Description: "Yearly donation",
	}
	if cards.lastCharge != want {
		t.Errorf("gateway saw %+v, want %+v", cards.lastCharge, want)
	}

	if got, _ := fieldValue(lines, "Charge-Id"); got != "ch_42" {
		t.Errorf("Charge-Id = %q, want %q", got, "ch_42")
	}
	if got, _ := fieldValue(lines, "Live"); got != "f" {
		t.Errorf("Live = %q, want %q", got, "f")
	}
	if got, _ := fieldValue(lines, "Amount"); got != "10.50" {
		t.Errorf("Amount = %q, want %q", got, "10.50")
	}
	ts, ok := fieldValue(lines, "_timestamp")
	if !ok {
		t.Fatalf("no _timestamp in response: %v", lines)
	}
	if _, err := time.Parse(journal.TimeFormat, ts); err != nil {
		t.Errorf("_timestamp %q does not parse: %v", ts, err)
	}

	if jrnl.len() != 1 {
		t.Fatalf("journal has %d records, want 1", jrnl.len())
	}
	if jrnl.services[0] != journal.ServiceCard {
		t.Errorf("journaled service = %q, want %q", jrnl.services[0], journal.ServiceCard)
	}
	rec := jrnl.records[0]
	if got := rec.Get("_amount"); got != "1050" {
		t.Errorf("journaled _amount = %q, want %q", got, "1050")
	}
	if got := rec.Get("Charge-Id"); got != "ch_42" {
		t.Errorf("journaled Charge-Id = %q, want %q", got, "ch_42")
	}
}

func TestChargeCardMissingToken(t *testing.T) {
	app := newTestApp(t)

	raw := dispatch(t, app, "CHARGECARD\nCurrency: EUR\nAmount: 10.50\n\n")

	if want := "ERR 110 (Card-Token missing)\n\n"; raw != want {
		t.Errorf("got %q, want %q", raw, want)
	}
	if calls := app.cards.(*fakeCards).chargeCalls; calls != 0 {
		t.Errorf("gateway called %d times despite missing token", calls)
	}
	if n := app.journal.(*fakeJournal).len(); n != 0 {
		t.Errorf("journal has %d records, want 0", n)
	}
}

func TestChargeCardDeclined(t *testing.T) {
	app := newTestApp(t)
	app.cards.(*fakeCards).err = &gateway.APIError{StatusCode: 402, Message: "Insufficient funds"}

	raw := dispatch(t, app, "CHARGECARD\nCurrency: EUR\nAmount: 10.50\nCard-Token: tok_42\n\n")

	if want := "ERR 120 (Insufficient funds)\n\n"; raw != want {
		t.Errorf("got %q, want %q", raw, want)
	}
	if n := app.journal.(*fakeJournal).len(); n != 0 {
		t.Errorf("declined charge reached the journal: %d records", n)
	}
}

func TestChargeCardOpaqueError(t *testing.T) {
	app := newTestApp(t)
	app.cards.(*fakeCards).err = errors.New("dial tcp: connection refused")

	raw := dispatch(t, app, "CHARGECARD\nCurrency: EUR\nAmount: 10.50\nCard-Token: tok_42\n\n")

	// Transport errors carry no processor message and must not leak one.
	if want := "ERR 120 (operation failed)\n\n"; raw != want {
		t.Errorf("got %q, want %q", raw, want)
	}
}

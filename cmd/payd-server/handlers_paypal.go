// handlers_paypal.go implements the redirect-based checkout commands and
// the asynchronous payment notification handler.
//
// Checkout Flow
// =============
//
// PPCHECKOUT prepare sets up an order at the processor and hands the
// frontend a Redirect-Url to send the donor to. The request's fields are
// parked in a session (the caller's own, or an ephemeral one created here)
// so the frontend can restore its state when the donor comes back.
// PPCHECKOUT execute captures the approved order and journals the result.
//
// Notifications
// =============
//
// PPIPNHD receives the processor's asynchronous notification, relayed by
// the frontend as a regular request frame. The processor's delivery
// machinery only wants an acknowledgment, so the handler answers OK and
// closes the connection before doing anything else; verification against
// the processor and journaling then run in a background goroutine that the
// server's shutdown waits for. A notification that fails verification is
// logged and dropped; there is no one left to tell.

package main

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payd.lopezb.com/internal/payd/dict"
	"payd.lopezb.com/internal/payd/gateway"
	"payd.lopezb.com/internal/payd/journal"
	"payd.lopezb.com/internal/payd/money"
)

// handlePPCheckout handles the PPCHECKOUT command.
// Syntax: PPCHECKOUT prepare | PPCHECKOUT execute
func (app *application) handlePPCheckout(c *conn, rest string) {
	if _, ok := matchKeyword(rest, "prepare"); ok {
		app.checkoutPrepare(c)
		return
	}
	if _, ok := matchKeyword(rest, "execute"); ok {
		app.checkoutExecute(c)
		return
	}
	app.invalidValueResponse(c, "unknown PPCHECKOUT subcommand")
}

// checkoutPrepare sets up an order and returns the approval redirect.
// Fields: Currency, Amount; optionally Desc, Email, Session-Id
//
// Without a Session-Id an ephemeral session is created from the request's
// fields and announced as _SESSID; the donor's round trip through the
// processor comes back with only that id, and the frontend uses it to
// recover everything else.
func (app *application) checkoutPrepare(c *conn) {
	cur, minor, ok := app.resolveAmount(c)
	if !ok {
		return
	}
	amount := money.FormatAmount(minor, cur.Digits)
	c.dict.Set("Amount", amount)

	sessionID := c.dict.Get("Session-Id")
	if sessionID == "" {
		id, err := app.sessions.Create(0, c.dict)
		if err != nil {
			app.sessionErrorResponse(c, err)
			return
		}
		sessionID = id
		c.dict.Set("_SESSID", id)
	}

	prepared, err := app.checkout.Prepare(context.Background(), gateway.PrepareRequest{
		Amount:      amount,
		Currency:    cur.Code,
		Description: c.dict.Get("Desc"),
		SessionID:   sessionID,
	})
	if err != nil {
		app.logger.Error("checkout prepare failed", "conn_id", c.id, "error", err)
		app.operationFailedResponse(c, err)
		return
	}

	c.dict.Set("Paypal-Order", prepared.OrderID)
	c.dict.Set("Redirect-Url", prepared.RedirectURL)

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c, "_SESSID")
}

// checkoutExecute captures an approved order.
// Fields: Paypal-Order
//
// The reply is deliberately narrow: exactly Charge-Id, Live, Currency,
// Amount, and Email, regardless of what else the request carried. The
// request reaches this handler via the processor's redirect round trip,
// and nothing from that less-trusted path is reflected back.
func (app *application) checkoutExecute(c *conn) {
	orderID := c.dict.Get("Paypal-Order")
	if orderID == "" {
		app.missingValueResponse(c, "Paypal-Order")
		return
	}

	captured, err := app.checkout.Execute(context.Background(), orderID)
	if err != nil {
		app.logger.Error("checkout execute failed", "conn_id", c.id, "order", orderID, "error", err)
		app.operationFailedResponse(c, err)
		return
	}

	digits := 2
	if cur, ok := app.currencies.Lookup(captured.Currency); ok {
		digits = cur.Digits
	}

	c.dict.Set("Charge-Id", captured.ChargeID)
	c.dict.Set("Live", liveFlag(captured.Live))
	c.dict.Set("Currency", strings.ToUpper(captured.Currency))
	c.dict.Set("Amount", captured.Amount)
	if captured.Email != "" {
		c.dict.Set("Email", captured.Email)
	}
	c.dict.Set("_amount", strconv.FormatUint(money.ParseAmount(captured.Amount, digits), 10))
	c.dict.Set("_timestamp", journal.Timestamp(time.Now()))

	if err := app.journal.RecordCharge(c.dict, journal.ServicePayPal); err != nil {
		app.logger.Error("journal write failed", "conn_id", c.id, "charge_id", captured.ChargeID, "error", err)
	}

	_ = app.writeStatusOK(c, "")
	app.echoOnly(c, "Charge-Id", "Live", "Currency", "Amount", "Email")
}

// handlePPNotification handles the PPIPNHD command.
// Syntax: PPIPNHD
//
// The request's fields are the notification's form keys with wire-style
// names (payment_status arrives as Payment-Status). The response is an
// unconditional OK written and flushed before verification starts.
func (app *application) handlePPNotification(c *conn, rest string) {
	_ = app.writeStatusOK(c, "")
	_ = app.writeTerminator(c)
	c.closeNow()

	fields := c.dict.Clone()
	connID := c.id

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), app.config.Paypal.NotifyTimeout)
		defer cancel()

		if err := app.checkout.VerifyNotification(ctx, ipnForm(fields)); err != nil {
			app.logger.Error("notification rejected", "conn_id", connID, "error", err)
			return
		}

		status := fields.Get("Payment-Status")
		if status != "Completed" {
			app.logger.Info("notification ignored", "conn_id", connID, "status", status)
			return
		}

		app.journalNotification(fields)
		app.logger.Info("notification journaled",
			"conn_id", connID,
			"txn_id", fields.Get("Txn-Id"),
			"amount", fields.Get("Mc-Gross"),
			"currency", fields.Get("Mc-Currency"))
	}()
}

// journalNotification writes the audit record for a verified, completed
// notification. The notification's own fields are mapped onto the charge
// record's shape; an unsupported currency still gets recorded, just with
// the default minor-unit scale.
func (app *application) journalNotification(fields *dict.Dict) {
	code := strings.ToUpper(fields.Get("Mc-Currency"))
	digits := 2
	if cur, ok := app.currencies.Lookup(code); ok {
		digits = cur.Digits
	}

	rec := dict.New()
	rec.Set("_timestamp", journal.Timestamp(time.Now()))
	rec.Set("Live", liveFlag(app.config.Live))
	rec.Set("Currency", code)
	rec.Set("_amount", strconv.FormatUint(money.ParseAmount(fields.Get("Mc-Gross"), digits), 10))
	rec.Set("Charge-Id", fields.Get("Txn-Id"))
	rec.Set("Email", fields.Get("Payer-Email"))
	rec.Set("Desc", fields.Get("Item-Name"))

	if err := app.journal.RecordCharge(rec, journal.ServicePayPal); err != nil {
		app.logger.Error("journal write failed", "txn_id", fields.Get("Txn-Id"), "error", err)
	}
}

// ipnForm converts the request dictionary back into the processor's form
// key convention: lowercased, hyphens to underscores. The verification echo
// must reproduce the original notification byte for byte, field order
// aside, or the processor answers INVALID.
func ipnForm(d *dict.Dict) url.Values {
	form := url.Values{}
	for _, it := range d.Items() {
		key := strings.ToLower(strings.ReplaceAll(it.Name, "-", "_"))
		form.Set(key, it.Value)
	}
	return form
}

// handlers_card.go implements the card-processor commands.
//
// Card Data Hygiene
// =================
//
// CARDTOKEN is the only command that ever sees a card number, and the
// number's lifetime is one gateway call: the Number and Cvc fields are
// deleted from the dictionary the moment the call returns, success or not.
// Internal fields are never echoed and the journal never receives the
// request dictionary of a tokenization, so a card number cannot reach the
// wire, the logs, or the disk. CHARGECARD only ever handles the token.

package main

import (
	"context"
	"strconv"
	"time"

	"payd.lopezb.com/internal/payd/gateway"
	"payd.lopezb.com/internal/payd/journal"
	"payd.lopezb.com/internal/payd/money"
)

// intField reads a required integer field and checks it against an
// inclusive range, writing the error response itself on failure.
func (app *application) intField(c *conn, name string, lo, hi int) (int, bool) {
	v := c.dict.Get(name)
	if v == "" {
		app.missingValueResponse(c, name)
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		app.invalidValueResponse(c, name+" invalid")
		return 0, false
	}
	return n, true
}

// handleCardToken handles the CARDTOKEN command.
// Syntax: CARDTOKEN
// Fields: Number, Exp-Year, Exp-Month, Cvc
//
// Exchanges raw card details for a single-use token. Validation happens
// here, before the processor sees anything: expiry year 2014-2199, month
// 1-12, CVC 100-9999. The reply carries Token, Last4, and Live.
func (app *application) handleCardToken(c *conn, rest string) {
	number := c.dict.Get("Number")
	if number == "" {
		app.missingValueResponse(c, "Number")
		return
	}
	year, ok := app.intField(c, "Exp-Year", 2014, 2199)
	if !ok {
		return
	}
	month, ok := app.intField(c, "Exp-Month", 1, 12)
	if !ok {
		return
	}
	cvc := c.dict.Get("Cvc")
	if cvc == "" {
		app.missingValueResponse(c, "Cvc")
		return
	}
	if n, err := strconv.Atoi(cvc); err != nil || n < 100 || n > 9999 {
		app.invalidValueResponse(c, "Cvc invalid")
		return
	}

	token, err := app.cards.CreateToken(context.Background(), gateway.CardDetails{
		Number:   number,
		ExpMonth: month,
		ExpYear:  year,
		CVC:      cvc,
	})

	// The card data has served its purpose either way.
	c.dict.Delete("Number")
	c.dict.Delete("Cvc")

	if err != nil {
		app.logger.Error("card tokenization failed", "conn_id", c.id, "error", err)
		app.operationFailedResponse(c, err)
		return
	}

	c.dict.Set("Token", token.ID)
	c.dict.Set("Last4", token.Last4)
	c.dict.Set("Live", liveFlag(token.Live))

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// handleChargeCard handles the CHARGECARD command.
// Syntax: CHARGECARD
// Fields: Currency, Amount, Card-Token; optionally Email, Desc
//
// Charges a previously minted token. On success the charge lands in the
// audit journal before the reply goes out; the reply carries Charge-Id and
// Live plus the request's capitalized fields, with Amount reformatted to
// the canonical shape that was actually charged.
func (app *application) handleChargeCard(c *conn, rest string) {
	cur, minor, ok := app.resolveAmount(c)
	if !ok {
		return
	}
	token := c.dict.Get("Card-Token")
	if token == "" {
		app.missingValueResponse(c, "Card-Token")
		return
	}

	charge, err := app.cards.CreateCharge(context.Background(), gateway.ChargeRequest{
		Token:       token,
		Currency:    cur.Code,
		Amount:      minor,
		Email:       c.dict.Get("Email"),
		Description: c.dict.Get("Desc"),
	})
	if err != nil {
		app.logger.Error("card charge failed", "conn_id", c.id, "currency", cur.Code, "error", err)
		app.operationFailedResponse(c, err)
		return
	}

	c.dict.Set("Amount", money.FormatAmount(minor, cur.Digits))
	c.dict.Set("Charge-Id", charge.ID)
	c.dict.Set("Live", liveFlag(charge.Live))
	c.dict.Set("_timestamp", journal.Timestamp(time.Now()))

	// The money moved; a journaling failure must not fail the reply, only
	// scream in the logs.
	if err := app.journal.RecordCharge(c.dict, journal.ServiceCard); err != nil {
		app.logger.Error("journal write failed", "conn_id", c.id, "charge_id", charge.ID, "error", err)
	}

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c, "_timestamp")
}

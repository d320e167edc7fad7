// handlers_money.go implements CHECKAMOUNT and the amount resolution every
// charging command shares. Amounts live as decimal strings on the wire and
// as minor-unit integers internally; resolveAmount is the one crossing
// point between the two.

package main

import (
	"strconv"

	"payd.lopezb.com/internal/payd/money"
)

// resolveAmount validates the request's Currency and Amount fields against
// the currency table. On success it stores the minor-unit value in the
// internal _amount field and returns the currency descriptor; on failure it
// writes the error response and returns ok false.
func (app *application) resolveAmount(c *conn) (money.Currency, uint64, bool) {
	code := c.dict.Get("Currency")
	if code == "" {
		app.missingValueResponse(c, "Currency")
		return money.Currency{}, 0, false
	}
	cur, ok := app.currencies.Lookup(code)
	if !ok {
		app.invalidValueResponse(c, "currency "+code+" not supported")
		return money.Currency{}, 0, false
	}

	amount := c.dict.Get("Amount")
	if amount == "" {
		app.missingValueResponse(c, "Amount")
		return money.Currency{}, 0, false
	}
	minor := money.ParseAmount(amount, cur.Digits)
	if minor == 0 {
		// Zero doubles as the parse failure sentinel, and a charge over
		// nothing is never meaningful anyway.
		app.invalidValueResponse(c, "amount "+amount+" invalid for "+cur.Code)
		return money.Currency{}, 0, false
	}

	c.dict.Set("_amount", strconv.FormatUint(minor, 10))
	return cur, minor, true
}

// handleCheckAmount handles the CHECKAMOUNT command.
// Syntax: CHECKAMOUNT
// Fields: Currency, Amount
//
// Validates an amount without charging anything, so a frontend can reject
// garbage before a donor reaches the processor. The reply reformats Amount
// into the currency's canonical shape and adds a best-effort Euro
// equivalent when an exchange rate is known. Any Limit field a client
// carried over from older frontends is dropped, not interpreted.
func (app *application) handleCheckAmount(c *conn, rest string) {
	c.dict.Delete("Limit")

	cur, minor, ok := app.resolveAmount(c)
	if !ok {
		return
	}

	amount := money.FormatAmount(minor, cur.Digits)
	c.dict.Set("Amount", amount)
	if euro := app.currencies.ConvertToEuro(amount, cur.Code); euro != "" {
		c.dict.Set("Euro", euro)
	}

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c, "_amount")
}

// handlers_preorder.go implements the SEPA preorder commands. A preorder
// is a promised bank transfer: the daemon hands out a reference code, the
// donor wires money with that code in the subject line, and a later batch
// import commits the preorder when the transfer shows up on the statement.
// Everything is euro-denominated; SEPA moves no other currency.

package main

import (
	"errors"
	"strconv"
	"strings"

	"payd.lopezb.com/internal/payd/dict"
	"payd.lopezb.com/internal/payd/money"
	"payd.lopezb.com/internal/payd/preorder"
)

// sepaAmount validates the euro amount of a preorder request. A missing
// Currency field defaults to EUR and the default is injected into the
// dictionary so the stored record is explicit; any currency other than EUR
// is rejected outright.
func (app *application) sepaAmount(c *conn) (uint64, bool) {
	code := c.dict.Get("Currency")
	if code != "" && !strings.EqualFold(code, money.ReferenceCurrency) {
		app.invalidValueResponse(c, "SEPA preorders are EUR only")
		return 0, false
	}
	c.dict.Set("Currency", money.ReferenceCurrency)

	amount := c.dict.Get("Amount")
	if amount == "" {
		app.missingValueResponse(c, "Amount")
		return 0, false
	}
	minor := money.ParseAmount(amount, 2)
	if minor == 0 {
		app.invalidValueResponse(c, "amount "+amount+" invalid")
		return 0, false
	}

	c.dict.Set("_amount", strconv.FormatUint(minor, 10))
	c.dict.Set("Amount", money.FormatAmount(minor, 2))
	return minor, true
}

// handleSepaPreorder handles the SEPAPREORDER command.
// Syntax: SEPAPREORDER
// Fields: Amount; optionally Currency (EUR only), Email, Name, Desc
//
// Stores the request as a pending preorder and replies with the Sepa-Ref
// the donor must quote in the transfer subject.
func (app *application) handleSepaPreorder(c *conn, rest string) {
	if _, ok := app.sepaAmount(c); !ok {
		return
	}

	ref, err := app.preorders.Create(c.dict)
	if err != nil {
		app.logger.Error("preorder create failed", "conn_id", c.id, "error", err)
		app.operationFailedResponse(c, err)
		return
	}

	c.dict.Set("Sepa-Ref", ref)

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// handleCommitPreorder handles the COMMITPREORDER command.
// Syntax: COMMITPREORDER
// Fields: Sepa-Ref, Amount; optionally Currency (EUR only)
//
// Marks a preorder paid with the amount that actually arrived, which may
// differ from the promise. Run by the bank-statement importer; committing
// an already committed preorder just restamps it, so a re-run import is
// harmless.
func (app *application) handleCommitPreorder(c *conn, rest string) {
	ref := c.dict.Get("Sepa-Ref")
	if ref == "" {
		app.missingValueResponse(c, "Sepa-Ref")
		return
	}
	minor, ok := app.sepaAmount(c)
	if !ok {
		return
	}

	updated, err := app.preorders.Commit(ref, money.FormatAmount(minor, 2), money.ReferenceCurrency)
	if err != nil {
		if errors.Is(err, preorder.ErrNotFound) {
			app.errorResponse(c, codeNotFound, "no such preorder reference")
			return
		}
		app.logger.Error("preorder commit failed", "conn_id", c.id, "ref", ref, "error", err)
		app.operationFailedResponse(c, err)
		return
	}

	mergeFields(c, updated)

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// handleGetPreorder handles the GETPREORDER command.
// Syntax: GETPREORDER
// Fields: Sepa-Ref
//
// Returns the stored record: the original fields, Creation-Time, and after
// a commit also Paid-Date and the paid Amount.
func (app *application) handleGetPreorder(c *conn, rest string) {
	ref := c.dict.Get("Sepa-Ref")
	if ref == "" {
		app.missingValueResponse(c, "Sepa-Ref")
		return
	}

	rec, err := app.preorders.Lookup(ref)
	if err != nil {
		if errors.Is(err, preorder.ErrNotFound) {
			app.errorResponse(c, codeNotFound, "no such preorder reference")
			return
		}
		app.logger.Error("preorder lookup failed", "conn_id", c.id, "ref", ref, "error", err)
		app.operationFailedResponse(c, err)
		return
	}

	mergeFields(c, rec)

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// mergeFields copies a stored record into the response dictionary. Stored
// values win over whatever the request carried under the same name.
func mergeFields(c *conn, stored *dict.Dict) {
	for _, it := range stored.Items() {
		c.dict.Set(it.Name, it.Value)
	}
}

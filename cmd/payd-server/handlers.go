// handlers.go implements the utility commands: PING, HELP, and GETINFO.
// None of them touch money; they exist so operators and frontends can poke
// the daemon without credentials or side effects.

package main

import (
	"os"
	"strconv"
	"strings"
)

// liveFlag renders a boolean the way the wire wants it: "t" or "f".
func liveFlag(live bool) string {
	if live {
		return "t"
	}
	return "f"
}

// handlePing handles the PING command.
// Syntax: PING [text]
//
// A liveness check. With no argument the reply is "OK pong"; with an
// argument the argument comes back verbatim, which lets a client verify
// the round trip end to end.
func (app *application) handlePing(c *conn, rest string) {
	if rest == "" {
		rest = "pong"
	}
	_ = app.writeStatusOK(c, rest)
}

// handleHelp handles the HELP command.
// Syntax: HELP
//
// Lists every registered command keyword, one per folded line, in the
// router's match order.
func (app *application) handleHelp(c *conn, rest string) {
	_ = app.writeStatusOK(c, "")
	_ = app.writeField(c, "Commands", strings.Join(app.router.Keywords(), "\n"))
}

// handleGetInfo handles the GETINFO command.
// Syntax: GETINFO <topic>
//
// Topics: list-currencies, version, pid, live. The handler reads server
// state only; it never touches the request dictionary, so nothing is
// echoed beyond the topic's own payload.
func (app *application) handleGetInfo(c *conn, rest string) {
	switch rest {
	case "":
		app.missingValueResponse(c, "info topic")

	case "list-currencies":
		_ = app.writeStatusOK(c, "")
		for _, cur := range app.currencies.List() {
			value := "digits=" + strconv.Itoa(cur.Digits)
			if cur.Rate > 0 {
				value += " rate=" + strconv.FormatFloat(cur.Rate, 'f', -1, 64)
			}
			_ = app.writeField(c, "Currency["+cur.Code+"]", value)
		}

	case "version":
		_ = app.writeStatusOK(c, version)

	case "pid":
		_ = app.writeStatusOK(c, strconv.Itoa(os.Getpid()))

	case "live":
		if app.config.Live {
			_ = app.writeStatusOK(c, "live")
		} else {
			_ = app.writeStatusOK(c, "test")
		}

	default:
		app.invalidValueResponse(c, "unknown info topic")
	}
}

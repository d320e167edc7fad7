// handlers_session.go implements the SESSION command family. Sessions park
// a frontend's request state server-side across the redirect round trip of
// a checkout; aliases are secondary names for the same session, safe to
// embed in URLs that a donor might share.
//
// Every subcommand takes its argument from the command line, not the
// dictionary: the dictionary is payload (what gets stored or merged), the
// line is addressing (which session).

package main

import (
	"errors"
	"strconv"
	"time"

	"payd.lopezb.com/internal/payd/session"
)

// handleSession handles the SESSION command.
// Syntax: SESSION create [ttl] | get <id> | put <id> | destroy <id> |
//         alias <id> | dealias <alias> | sessid <alias>
func (app *application) handleSession(c *conn, rest string) {
	if arg, ok := matchKeyword(rest, "create"); ok {
		app.sessionCreate(c, arg)
		return
	}
	if arg, ok := matchKeyword(rest, "get"); ok {
		app.sessionGet(c, arg)
		return
	}
	if arg, ok := matchKeyword(rest, "put"); ok {
		app.sessionPut(c, arg)
		return
	}
	if arg, ok := matchKeyword(rest, "destroy"); ok {
		app.sessionDestroy(c, arg)
		return
	}
	if arg, ok := matchKeyword(rest, "alias"); ok {
		app.sessionAlias(c, arg)
		return
	}
	if arg, ok := matchKeyword(rest, "dealias"); ok {
		app.sessionDealias(c, arg)
		return
	}
	if arg, ok := matchKeyword(rest, "sessid"); ok {
		app.sessionResolve(c, arg)
		return
	}
	app.invalidValueResponse(c, "unknown SESSION subcommand")
}

// sessionCreate stores the request's capitalized fields as a new session.
// The optional argument is a time-to-live in seconds; absent or zero means
// the server default, and the store caps it at the configured maximum.
func (app *application) sessionCreate(c *conn, arg string) {
	var ttl time.Duration
	if arg != "" {
		secs, err := strconv.Atoi(arg)
		if err != nil || secs < 0 {
			app.invalidValueResponse(c, "ttl must be a non-negative integer")
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	id, err := app.sessions.Create(ttl, c.dict)
	if err != nil {
		app.sessionErrorResponse(c, err)
		return
	}

	c.dict.Set("_SESSID", id)
	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c, "_SESSID")
}

// sessionGet merges a session's stored fields into the reply. Stored
// values win over fields the request carried under the same name.
func (app *application) sessionGet(c *conn, arg string) {
	if arg == "" {
		app.missingValueResponse(c, "session id")
		return
	}

	stored, err := app.sessions.Get(arg)
	if err != nil {
		app.sessionErrorResponse(c, err)
		return
	}

	mergeFields(c, stored)
	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// sessionPut replaces a session's fields with the request's capitalized
// fields. Blowing the size cap destroys the session: half-replaced state
// is worse than no state, and the client learns it must start over.
func (app *application) sessionPut(c *conn, arg string) {
	if arg == "" {
		app.missingValueResponse(c, "session id")
		return
	}

	err := app.sessions.Put(arg, c.dict)
	if errors.Is(err, session.ErrTooLarge) {
		_ = app.sessions.Destroy(arg)
		app.errorResponse(c, codeExhausted, "session data too large, session destroyed")
		return
	}
	if err != nil {
		app.sessionErrorResponse(c, err)
		return
	}

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// sessionDestroy removes a session and all its aliases.
func (app *application) sessionDestroy(c *conn, arg string) {
	if arg == "" {
		app.missingValueResponse(c, "session id")
		return
	}

	if err := app.sessions.Destroy(arg); err != nil {
		app.sessionErrorResponse(c, err)
		return
	}

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// sessionAlias mints a new alias for a session and returns it as _ALIASID.
func (app *application) sessionAlias(c *conn, arg string) {
	if arg == "" {
		app.missingValueResponse(c, "session id")
		return
	}

	alias, err := app.sessions.CreateAlias(arg)
	if err != nil {
		app.sessionErrorResponse(c, err)
		return
	}

	c.dict.Set("_ALIASID", alias)
	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c, "_ALIASID")
}

// sessionDealias removes one alias, leaving the session and any other
// aliases untouched.
func (app *application) sessionDealias(c *conn, arg string) {
	if arg == "" {
		app.missingValueResponse(c, "alias id")
		return
	}

	if err := app.sessions.DestroyAlias(arg); err != nil {
		app.sessionErrorResponse(c, err)
		return
	}

	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c)
}

// sessionResolve maps an alias to its session id, returned as _SESSID.
func (app *application) sessionResolve(c *conn, arg string) {
	if arg == "" {
		app.missingValueResponse(c, "alias id")
		return
	}

	id, err := app.sessions.Resolve(arg)
	if err != nil {
		app.sessionErrorResponse(c, err)
		return
	}

	c.dict.Set("_SESSID", id)
	_ = app.writeStatusOK(c, "")
	app.echoCapitalized(c, "_SESSID")
}

// sessionErrorResponse maps store errors onto wire codes. An expired
// session is indistinguishable from one that never existed, deliberately:
// session ids are capability tokens and the daemon does not confirm which
// ones were ever real.
func (app *application) sessionErrorResponse(c *conn, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		app.errorResponse(c, codeInvalidValue, "invalid session or alias id")
	case errors.Is(err, session.ErrNotFound):
		app.errorResponse(c, codeNotFound, "no such session/alias or timed out")
	case errors.Is(err, session.ErrLimit):
		app.errorResponse(c, codeLimitReached, "too many active sessions or aliases")
	case errors.Is(err, session.ErrTooLarge):
		app.errorResponse(c, codeExhausted, "session data too large")
	default:
		app.operationFailedResponse(c, err)
	}
}

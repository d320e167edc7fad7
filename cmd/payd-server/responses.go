// responses.go writes response frames.
//
// A response mirrors the request shape: one status line ("OK", optionally
// with a payload suffix, or "ERR <code> (<description>)"), zero or more
// data lines, and the blank terminator line. Responses always use bare LF.
//
// Two writer rules keep the frame well formed no matter what a handler
// feeds in. A value that embeds newlines is folded: each newline is written
// followed by a single space, which the reader on the other side decodes
// back into the same value. And a field whose value is empty is omitted
// entirely, because "Name:" followed by nothing is indistinguishable from a
// client typo and carries no information.

package main

import (
	"strconv"

	"payd.lopezb.com/internal/payd/dict"
)

// Pre-allocated buffers for the two fixed lines every response shares.
var (
	respOK         = []byte("OK\n")
	respTerminator = []byte("\n")
)

// writeStatusOK writes the success status line, optionally carrying a
// payload suffix ("OK pong").
func (app *application) writeStatusOK(c *conn, suffix string) error {
	if suffix == "" {
		_, err := c.w.Write(respOK)
		return err
	}

	buf := make([]byte, 0, 3+len(suffix)+1)
	buf = append(buf, "OK "...)
	buf = append(buf, suffix...)
	buf = append(buf, '\n')
	_, err := c.w.Write(buf)
	return err
}

// errorResponse writes the failure status line and counts the error.
// Errors are not a hot path, but strconv.AppendInt still beats fmt.
func (app *application) errorResponse(c *conn, code int, desc string) {
	app.metrics.TotalErrors.Add(1)

	buf := make([]byte, 0, 8+len(desc))
	buf = append(buf, "ERR "...)
	buf = strconv.AppendInt(buf, int64(code), 10)
	buf = append(buf, ' ', '(')
	buf = append(buf, desc...)
	buf = append(buf, ')', '\n')
	_, _ = c.w.Write(buf)
}

// writeField writes one data line, folding embedded newlines into
// continuation lines. Empty values are omitted.
func (app *application) writeField(c *conn, name, value string) error {
	if value == "" {
		return nil
	}

	buf := make([]byte, 0, len(name)+2+len(value)+8)
	buf = append(buf, name...)
	buf = append(buf, ':', ' ')
	for i := 0; i < len(value); i++ {
		buf = append(buf, value[i])
		if value[i] == '\n' {
			buf = append(buf, ' ')
		}
	}
	buf = append(buf, '\n')
	_, err := c.w.Write(buf)
	return err
}

// echoCapitalized writes every capitalized dictionary field in insertion
// order. Internal fields stay server-side unless a handler names them
// explicitly; that is how _SESSID and friends reach the client while card
// numbers in internal scratch fields never can.
func (app *application) echoCapitalized(c *conn, internal ...string) {
	for _, it := range c.dict.Items() {
		if dict.IsCapitalized(it.Name) {
			_ = app.writeField(c, it.Name, it.Value)
			continue
		}
		for _, name := range internal {
			if it.Name == name {
				_ = app.writeField(c, it.Name, it.Value)
				break
			}
		}
	}
}

// echoOnly writes exactly the named dictionary fields, in the given order,
// ignoring everything else the request carried.
func (app *application) echoOnly(c *conn, names ...string) {
	for _, name := range names {
		_ = app.writeField(c, name, c.dict.Get(name))
	}
}

// writeTerminator ends the frame.
func (app *application) writeTerminator(c *conn) error {
	_, err := c.w.Write(respTerminator)
	return err
}

// router.go matches command lines to handlers.
//
// Commands are matched by case-sensitive keyword prefix: the line must
// start with the keyword and the keyword must end at end-of-line or at
// whitespace, so "PING" matches "PING" and "PING hello" but never
// "PINGX". Whatever follows the keyword is handed to the handler with its
// leading whitespace trimmed; subcommands ("SESSION create") run the same
// matcher again on that remainder.
//
// Registration order is match order. The table is a slice, not a map: a
// dozen prefix comparisons beat a map lookup at this size, and ordered
// iteration gives HELP a stable command listing for free.

package main

import "strings"

// matchKeyword reports whether text starts with keyword followed by end of
// text or whitespace. On a match it returns the remainder with leading
// spaces and tabs removed.
func matchKeyword(text, keyword string) (string, bool) {
	if !strings.HasPrefix(text, keyword) {
		return "", false
	}
	rest := text[len(keyword):]
	if rest == "" {
		return "", true
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	return strings.TrimLeft(rest, " \t"), true
}

// CommandHandler is the signature every command handler implements. rest is
// the command line after the keyword, already trimmed.
type CommandHandler func(c *conn, rest string)

type command struct {
	keyword string
	handler CommandHandler
}

// Router holds the ordered command table.
type Router struct {
	commands []command
}

// NewRouter creates a new, empty router.
func NewRouter() *Router {
	return &Router{}
}

// Handle appends a keyword and its handler to the table.
func (r *Router) Handle(keyword string, handler CommandHandler) {
	r.commands = append(r.commands, command{keyword: keyword, handler: handler})
}

// Keywords returns the registered keywords in table order.
func (r *Router) Keywords() []string {
	keywords := make([]string, len(r.commands))
	for i, cmd := range r.commands {
		keywords[i] = cmd.keyword
	}
	return keywords
}

// Dispatch finds the first matching handler for the connection's command
// line and runs it. The dispatcher owns the frame terminator: every
// response ends with the blank line exactly once, written here, unless the
// handler already closed the transport and the frame with it.
func (r *Router) Dispatch(app *application, c *conn) {
	app.metrics.TotalCommands.Add(1)

	for _, cmd := range r.commands {
		rest, ok := matchKeyword(c.cmdLine, cmd.keyword)
		if !ok {
			continue
		}
		cmd.handler(c, rest)
		if !c.closed {
			_ = app.writeTerminator(c)
		}
		return
	}

	app.unknownCommandResponse(c)
	_ = app.writeTerminator(c)
}

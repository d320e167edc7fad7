// errors.go defines the numeric wire codes and the shared error-response
// helpers handlers lean on. Code ranges group by origin: 1 is the unknown
// command, 10x is the frame reader, 11x is field validation, 12x is the
// work itself going wrong.

package main

import (
	"errors"

	"payd.lopezb.com/internal/payd/gateway"
)

const (
	codeUnknownCommand    = 1
	codeProtocolViolation = 100
	codeInvalidName       = 101
	codeLineTooLong       = 102
	codeUnexpectedEOF     = 103
	codeMissingValue      = 110
	codeInvalidValue      = 111
	codeOperationFailed   = 120
	codeLimitReached      = 121
	codeNotFound          = 122
	codeExhausted         = 123
)

// missingValueResponse reports a required field the request never carried.
func (app *application) missingValueResponse(c *conn, field string) {
	app.errorResponse(c, codeMissingValue, field+" missing")
}

// invalidValueResponse reports a field that was present but unusable.
func (app *application) invalidValueResponse(c *conn, desc string) {
	app.errorResponse(c, codeInvalidValue, desc)
}

// operationFailedResponse reports a collaborator failure. A processor
// rejection carries the processor's own message ("Your card was declined"),
// which the frontend wants verbatim; anything else gets a generic
// description so internal details never reach the wire.
func (app *application) operationFailedResponse(c *conn, err error) {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		app.errorResponse(c, codeOperationFailed, apiErr.Message)
		return
	}
	app.errorResponse(c, codeOperationFailed, "operation failed")
}

// unknownCommandResponse answers a command line no keyword matched. The
// whole line and the parsed fields are reflected back as a diagnostic: the
// sender sees exactly what the daemon saw.
func (app *application) unknownCommandResponse(c *conn) {
	app.errorResponse(c, codeUnknownCommand, "unknown command")
	_ = app.writeField(c, "_cmd", c.cmdLine)
	for _, it := range c.dict.Items() {
		_ = app.writeField(c, it.Name, it.Value)
	}
}

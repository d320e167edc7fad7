// conn.go bundles the per-request state the dispatcher and handlers share.

package main

import (
	"bufio"
	"net"

	"payd.lopezb.com/internal/payd/dict"
)

// conn is one client connection mid-request: the transport, the buffered
// writer responses accumulate in, and the parsed request.
type conn struct {
	id      uint64
	netConn net.Conn
	w       *bufio.Writer

	cmdLine string
	dict    *dict.Dict

	// closed flips when a handler tears the transport down itself. The
	// dispatcher checks it to decide whether the frame terminator is still
	// owed, and the connection teardown uses it to stay idempotent.
	closed bool
}

// closeNow flushes buffered output and closes the transport. Handlers call
// it when the response must be on the wire before their work continues
// (the notification handler answers first, verifies after). Safe to call
// again; later calls do nothing.
func (c *conn) closeNow() {
	if c.closed {
		return
	}
	c.closed = true
	_ = c.w.Flush()
	_ = c.netConn.Close()
}

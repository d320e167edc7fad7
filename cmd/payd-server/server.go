package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const rejectionTimeout = 500 * time.Millisecond

// Canned whole-frame rejections for connections that never get a handler.
var (
	respTooManyConns  = []byte("ERR 123 (too many connections)\n\n")
	respConnRateLimit = []byte("ERR 123 (connection rate limited)\n\n")
)

// serve starts the listener and blocks until shutdown.
func (app *application) serve() error {
	//
	// DESIGN
	// ------
	//
	// The server's lifecycle problem is coordinating three things without
	// losing an in-flight charge: new connections arriving, handlers mid-
	// request, and the shutdown signal.
	//
	// 1. CONNECTION LIMITING
	//    A buffered channel (`connLimiter`) acts as a semaphore capping
	//    concurrent handlers. A non-blocking send is a try-acquire: when
	//    the buffer is full the connection is answered with a canned
	//    rejection frame and closed, so a flood degrades into fast
	//    rejections instead of resource exhaustion. Before the semaphore,
	//    a per-host token bucket weeds out any single source hammering
	//    the accept loop.
	//
	// 2. GRACEFUL SHUTDOWN
	//    A dedicated goroutine listens for signals. SIGHUP reloads the
	//    exchange rates and keeps listening; SIGINT/SIGTERM close the
	//    listener and wait for the WaitGroup, which counts both connection
	//    handlers and the background notification verifications, under a
	//    grace-period context. A payment handler mid-gateway-call gets its
	//    chance to journal before the process goes away.
	//
	// 3. ERROR PROPAGATION
	//    The shutdown goroutine reports back through a channel so this
	//    function can return the real shutdown outcome.
	//
	network := app.config.Server.Network
	addr := app.config.Server.Addr

	// A previous instance's socket file would otherwise block the bind.
	if network == "unix" {
		if err := os.Remove(addr); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale socket %s: %w", addr, err)
		}
	}

	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}

	app.listener = ln

	serverAddr := ln.Addr().String()

	if app.readyCh != nil {
		close(app.readyCh)
	}

	shutdownError := make(chan error)
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

		var s os.Signal
		for {
			s = <-quit
			if s != syscall.SIGHUP {
				break
			}
			app.logger.Info("caught SIGHUP, reloading exchange rates")
			app.reloadRates()
		}

		app.logger.Info("caught signal", "signal", s.String(), "address", serverAddr)
		app.logger.Info("shutting down server", "address", serverAddr)

		ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownGrace)
		defer cancel()

		// Stop accepting new connections.
		if err := ln.Close(); err != nil {
			shutdownError <- err
		}

		wgDone := make(chan struct{})
		go func() {
			app.wg.Wait()
			close(wgDone)
		}()

		// Wait for in-flight handlers or give up at the grace period.
		select {
		case <-wgDone:
			shutdownError <- nil
		case <-ctx.Done():
			shutdownError <- ctx.Err()
		}
	}()

	app.logger.Info("server starting",
		"address", serverAddr,
		"network", network,
		"live", app.config.Live)

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break // Normal shutdown path
			}
			app.logger.Error("failed to accept connection", "error", err, "address", serverAddr)
			continue
		}

		if !app.remotes.allow(nc.RemoteAddr(), time.Now()) {
			app.logger.Info("rejecting connection, source rate limited", "remote_addr", nc.RemoteAddr().String())
			_ = nc.SetWriteDeadline(time.Now().Add(rejectionTimeout))
			_, _ = nc.Write(respConnRateLimit)
			_ = nc.Close()
			continue
		}

		select {
		case app.connLimiter <- struct{}{}:
			app.wg.Add(1)
			go app.handleConnection(nc)
		default:
			app.logger.Info("rejecting connection, limit reached", "remote_addr", nc.RemoteAddr().String())

			// Strict deadline so a peer that never reads cannot stall the
			// accept loop.
			_ = nc.SetWriteDeadline(time.Now().Add(rejectionTimeout))
			_, _ = nc.Write(respTooManyConns)
			_ = nc.Close()
		}
	}

	err = <-shutdownError
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		app.logger.Error("server stopped with error", "error", err, "address", serverAddr)
		return err
	}

	app.logger.Info("server stopped gracefully", "address", serverAddr)
	return nil
}

// handleConnection serves exactly one request frame and closes. The
// one-request-per-connection discipline matches how the frontends use the
// daemon (one CGI invocation, one command) and means a handler never has
// to worry about per-connection state outliving its request.
func (app *application) handleConnection(nc net.Conn) {
	defer func() { <-app.connLimiter }()
	defer app.wg.Done()

	app.metrics.TotalConnections.Add(1)

	c := &conn{
		id:      app.nextConnID.Add(1),
		netConn: nc,
		w:       bufio.NewWriterSize(nc, 4096),
	}
	defer c.closeNow()

	remoteAddr := nc.RemoteAddr().String()
	app.logger.Debug("new connection", "conn_id", c.id, "remote_addr", remoteAddr)

	// The read deadline covers the whole frame: a peer that opens a
	// connection and trickles bytes gets cut off, not waited on.
	if t := app.config.Server.ReadTimeout; t > 0 {
		if err := nc.SetReadDeadline(time.Now().Add(t)); err != nil {
			app.logger.Error("failed to set read deadline", "error", err, "remote_addr", remoteAddr)
			return
		}
	}

	reader := NewReader(nc, app.config.Server.MaxLineLen)
	cmdLine, d, err := reader.ReadRequest()

	if t := app.config.Server.WriteTimeout; t > 0 {
		_ = nc.SetWriteDeadline(time.Now().Add(t))
	}

	if err != nil {
		app.rejectRequest(c, err, remoteAddr)
		return
	}

	c.cmdLine = cmdLine
	c.dict = d

	app.router.Dispatch(app, c)
}

// rejectRequest answers a request that never parsed. Best effort: the peer
// may already be gone, and a clean disconnect before any request byte is
// not worth answering at all.
func (app *application) rejectRequest(c *conn, err error, remoteAddr string) {
	if errors.Is(err, io.EOF) {
		app.logger.Debug("client disconnected without a request", "conn_id", c.id, "remote_addr", remoteAddr)
		return
	}

	switch {
	case errors.Is(err, ErrTruncated):
		app.errorResponse(c, codeLineTooLong, err.Error())
	case errors.Is(err, ErrUnexpectedEOF):
		app.errorResponse(c, codeUnexpectedEOF, err.Error())
	case errors.Is(err, ErrInvalidName):
		app.errorResponse(c, codeInvalidName, err.Error())
	case errors.Is(err, ErrProtocolViolation):
		app.errorResponse(c, codeProtocolViolation, err.Error())
	default:
		// Transport trouble, not a protocol offense; nothing to answer.
		app.logger.Error("read failed", "conn_id", c.id, "error", err, "remote_addr", remoteAddr)
		return
	}
	_ = app.writeTerminator(c)

	app.logger.Debug("malformed request rejected", "conn_id", c.id, "error", err, "remote_addr", remoteAddr)
}

// reloadRates re-reads the exchange rates file and applies it to the
// currency table. Called on SIGHUP and by the mtime poller.
func (app *application) reloadRates() {
	changed := app.currencies.LoadRatesFile(app.config.Currency.RatesFile)
	app.logger.Info("exchange rates reloaded",
		"path", app.config.Currency.RatesFile,
		"changed", changed)
}

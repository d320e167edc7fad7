// main.go is the entry point for the payd server. It wires together the
// currency table, the stores, the processor clients, and the network
// server, and manages the operational lifecycle including background
// maintenance tasks.
//
// Startup Sequence
// ================
//
// Configuration comes from an optional YAML file overlaid by whatever
// flags were given explicitly on the command line, then validated as a
// whole. The daemon refuses to start without processor credentials: a
// payment daemon that silently cannot charge is worse than one that does
// not come up.
//
// The journal opens before anything that might use it, then the currency
// table loads its first exchange rates (missing rates are not fatal; the
// affected conversions are simply unavailable until the file appears).
// The preorder database and the session store come next, the processor
// clients last, and only then does the listener start accepting.
//
// Durability Policy
// =================
//
// Charge records land in the journal's RAM buffer on the handler's
// goroutine and reach the disk through a background fsync ticker, by
// default every second. A crash can therefore cost at most the last
// second of audit records; the processor's own books remain the
// authoritative source for reconciling that window.
//
// Background Maintenance
// ======================
//
// A single goroutine owns the periodic work: the journal fsync, the
// session expiry sweep, and an mtime poll of the exchange-rates file that
// triggers a reload when an external updater rewrites it (SIGHUP forces
// the same reload immediately).
//
// Graceful Shutdown
// =================
//
// SIGINT/SIGTERM stop the listener, wait out in-flight handlers under the
// configured grace period, then the deferred teardown logs a final
// summary and closes the journal and the preorder database.

package main

import (
	"flag"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"payd.lopezb.com/internal/payd/config"
	"payd.lopezb.com/internal/payd/gateway"
	"payd.lopezb.com/internal/payd/journal"
	"payd.lopezb.com/internal/payd/money"
	"payd.lopezb.com/internal/payd/preorder"
	"payd.lopezb.com/internal/payd/session"
)

const version = "1.0.0"

type application struct {
	config *config.Config
	logger *slog.Logger

	currencies *money.Table
	journal    chargeJournal
	sessions   sessionStore
	preorders  preorderStore
	cards      cardGateway
	checkout   checkoutGateway

	router  *Router
	metrics *Metrics
	remotes *remoteLimiter

	listener    net.Listener
	readyCh     chan struct{}
	wg          sync.WaitGroup
	connLimiter chan struct{}
	nextConnID  atomic.Uint64
}

func main() {
	var (
		configPath   = flag.String("config", "", "Path to the YAML configuration file")
		network      = flag.String("network", config.DefaultNetwork, `Listen network ("tcp" or "unix")`)
		addr         = flag.String("addr", config.DefaultAddr, "Listen address (host:port, or socket path for unix)")
		live         = flag.Bool("live", false, "Talk to the production processor endpoints")
		ratesFile    = flag.String("rates", config.DefaultRatesFile, "Exchange rates file")
		journalPath  = flag.String("journal", config.DefaultJournalPath, "Append-only charge journal path")
		preorderPath = flag.String("preorders", config.DefaultPreorderPath, "Preorder database path")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load configuration", "path", *configPath, "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicit flags override the file. flag.Visit walks only the flags
	// actually given on the command line, so file settings survive unless
	// the operator said otherwise.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "network":
			cfg.Server.Network = *network
		case "addr":
			cfg.Server.Addr = *addr
		case "live":
			cfg.Live = *live
		case "rates":
			cfg.Currency.RatesFile = *ratesFile
		case "journal":
			cfg.Journal.Path = *journalPath
		case "preorders":
			cfg.Preorder.Path = *preorderPath
		}
	})

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	jrnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		logger.Error("failed to open journal", "path", cfg.Journal.Path, "error", err)
		os.Exit(1)
	}

	currencies := money.NewTable(logger, jrnl)
	if changed := currencies.LoadRatesFile(cfg.Currency.RatesFile); changed > 0 {
		logger.Info("exchange rates loaded", "path", cfg.Currency.RatesFile, "changed", changed)
	}

	preorders, err := preorder.Open(cfg.Preorder.Path)
	if err != nil {
		logger.Error("failed to open preorder database", "path", cfg.Preorder.Path, "error", err)
		os.Exit(1)
	}

	sessions := session.New(session.Config{
		MaxSessions: cfg.Session.MaxSessions,
		MaxAliases:  cfg.Session.MaxAliases,
		MaxFields:   cfg.Session.MaxFields,
		MaxBytes:    cfg.Session.MaxBytes,
		DefaultTTL:  cfg.Session.DefaultTTL,
		MaxTTL:      cfg.Session.MaxTTL,
	})

	cards := gateway.NewCardClient(cfg.Card.BaseURL, cfg.Card.SecretKey,
		gateway.WithTimeout(cfg.Card.Timeout),
		gateway.WithMaxRetries(cfg.Card.MaxRetries),
		gateway.WithLogger(logger))

	checkout := gateway.NewCheckoutClient(gateway.CheckoutConfig{
		BaseURL:   cfg.Paypal.BaseURL,
		ClientID:  cfg.Paypal.ClientID,
		Secret:    cfg.Paypal.Secret,
		ReturnURL: cfg.Paypal.ReturnURL,
		CancelURL: cfg.Paypal.CancelURL,
		Live:      cfg.Live,
	},
		gateway.WithTimeout(cfg.Paypal.Timeout),
		gateway.WithMaxRetries(cfg.Paypal.MaxRetries),
		gateway.WithLogger(logger))

	app := &application{
		config:      cfg,
		logger:      logger,
		currencies:  currencies,
		journal:     jrnl,
		sessions:    sessions,
		preorders:   preorders,
		cards:       cards,
		checkout:    checkout,
		metrics:     NewMetrics(),
		remotes:     newRemoteLimiter(cfg.Server.AcceptRate, cfg.Server.AcceptBurst, 10*time.Minute),
		connLimiter: make(chan struct{}, cfg.Server.MaxConns),
	}
	app.router = app.commands()

	// Background Maintenance Loop
	//
	// Three tickers, one goroutine: journal durability, session expiry,
	// and the exchange-rates freshness check.
	go func() {
		fsyncTicker := time.NewTicker(cfg.Journal.FsyncInterval)
		expiryTicker := time.NewTicker(time.Second)
		ratesTicker := time.NewTicker(cfg.Currency.ReloadInterval)
		defer fsyncTicker.Stop()
		defer expiryTicker.Stop()
		defer ratesTicker.Stop()

		var ratesMtime time.Time
		if fi, err := os.Stat(cfg.Currency.RatesFile); err == nil {
			ratesMtime = fi.ModTime()
		}

		for {
			select {
			case <-fsyncTicker.C:
				// Durability: push buffered charge records to the disk.
				if err := jrnl.Fsync(); err != nil {
					logger.Error("journal sync failed", "error", err)
				}

			case <-expiryTicker.C:
				// Sweep sessions whose deadline passed without a client
				// coming back for them.
				if removed := sessions.DeleteExpired(); removed > 0 {
					logger.Debug("expired sessions removed", "count", removed)
				}

			case <-ratesTicker.C:
				fi, err := os.Stat(cfg.Currency.RatesFile)
				if err != nil {
					// Absent file: keep the rates we have.
					continue
				}
				if fi.ModTime().Equal(ratesMtime) {
					continue
				}
				ratesMtime = fi.ModTime()
				app.reloadRates()
			}
		}
	}()

	// Final teardown: summary first, then the stores. The summary counts
	// are the operator's quick cross-check against the frontend's own
	// numbers after an incident.
	defer func() {
		storedPreorders, err := preorders.Count()
		if err != nil {
			storedPreorders = -1
		}
		logger.Info("shutdown summary",
			"connections_total", app.metrics.TotalConnections.Load(),
			"commands_total", app.metrics.TotalCommands.Load(),
			"errors_total", app.metrics.TotalErrors.Load(),
			"stored_preorders", storedPreorders)

		if err := jrnl.Close(); err != nil {
			logger.Error("failed to close journal", "error", err)
		}
		if err := preorders.Close(); err != nil {
			logger.Error("failed to close preorder database", "error", err)
		}
	}()

	if err := app.serve(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

package main

// commands creates a new router and registers all the application's command
// handlers. This is the single source of truth for what commands the daemon
// supports, and the order here is both the match order and the order HELP
// lists them in.
func (app *application) commands() *Router {
	router := NewRouter()

	// Card payments
	router.Handle("CARDTOKEN", app.handleCardToken)
	router.Handle("CHARGECARD", app.handleChargeCard)

	// Checkout payments
	router.Handle("PPCHECKOUT", app.handlePPCheckout)
	router.Handle("PPIPNHD", app.handlePPNotification)

	// SEPA preorders
	router.Handle("SEPAPREORDER", app.handleSepaPreorder)
	router.Handle("COMMITPREORDER", app.handleCommitPreorder)
	router.Handle("GETPREORDER", app.handleGetPreorder)

	// Amount validation and session state
	router.Handle("CHECKAMOUNT", app.handleCheckAmount)
	router.Handle("SESSION", app.handleSession)

	// Introspection
	router.Handle("GETINFO", app.handleGetInfo)
	router.Handle("PING", app.handlePing)
	router.Handle("HELP", app.handleHelp)

	return router
}

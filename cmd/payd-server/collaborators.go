// collaborators.go names the slices of the backing packages the handlers
// actually touch. Handlers depend on these interfaces, not the concrete
// types, so tests swap in fakes without a network or a database; main wires
// in the real implementations, which the assertions below pin to the
// contracts at compile time.

package main

import (
	"context"
	"net/url"
	"time"

	"payd.lopezb.com/internal/payd/dict"
	"payd.lopezb.com/internal/payd/gateway"
	"payd.lopezb.com/internal/payd/journal"
	"payd.lopezb.com/internal/payd/preorder"
	"payd.lopezb.com/internal/payd/session"
)

// sessionStore is the session machinery the SESSION command drives.
type sessionStore interface {
	Create(ttl time.Duration, init *dict.Dict) (string, error)
	Get(id string) (*dict.Dict, error)
	Put(id string, d *dict.Dict) error
	Destroy(id string) error
	CreateAlias(id string) (string, error)
	Resolve(alias string) (string, error)
	DestroyAlias(alias string) error
}

// preorderStore is the durable preorder store the SEPA commands drive.
type preorderStore interface {
	Create(d *dict.Dict) (string, error)
	Commit(ref, amount, currency string) (*dict.Dict, error)
	Lookup(ref string) (*dict.Dict, error)
}

// cardGateway is the card processor client.
type cardGateway interface {
	CreateToken(ctx context.Context, card gateway.CardDetails) (*gateway.Token, error)
	CreateCharge(ctx context.Context, req gateway.ChargeRequest) (*gateway.Charge, error)
}

// checkoutGateway is the redirect-based checkout processor client.
type checkoutGateway interface {
	Prepare(ctx context.Context, req gateway.PrepareRequest) (*gateway.PrepareResult, error)
	Execute(ctx context.Context, orderID string) (*gateway.CaptureResult, error)
	VerifyNotification(ctx context.Context, form url.Values) error
}

// chargeJournal receives the audit record for every completed charge.
type chargeJournal interface {
	RecordCharge(d *dict.Dict, service string) error
}

var (
	_ sessionStore    = (*session.Store)(nil)
	_ preorderStore   = (*preorder.Store)(nil)
	_ cardGateway     = (*gateway.CardClient)(nil)
	_ checkoutGateway = (*gateway.CheckoutClient)(nil)
	_ chargeJournal   = (*journal.Journal)(nil)
)

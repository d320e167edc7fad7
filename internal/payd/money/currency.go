// currency.go holds the currency descriptor table. The set of supported
// currencies is fixed at compile time; what changes at runtime is each
// currency's exchange rate, which the rates file reload (rates.go) swaps in
// while the daemon runs.

package money

import (
	"log/slog"
	"strings"
	"sync"
)

// ReferenceCurrency is the currency all conversions target. Its rate is
// pinned to 1.0 and is never touched by a rates reload.
const ReferenceCurrency = "EUR"

// Currency describes one supported currency.
type Currency struct {
	Code   string  // ISO 4217 code, uppercase
	Digits int     // decimal digits of the minor unit
	Rate   float64 // units per one euro; 0 while unknown
}

// RateJournal receives an audit record for every applied rate change.
// The daemon's append-only journal implements this.
type RateJournal interface {
	RecordRateChange(code string, rate float64) error
}

// Table is the concurrency-safe currency table. Reads vastly outnumber
// writes (every amount validation does a lookup, rates change a few times a
// day), so a single RWMutex over a small map is all the machinery needed.
// Updates replace whole Currency values, never individual fields, so a
// reader sees either the old descriptor or the new one.
type Table struct {
	mu      sync.RWMutex
	entries map[string]Currency
	order   []string

	logger  *slog.Logger
	journal RateJournal
}

// NewTable builds the table with the built-in currency set. All rates except
// the reference start unknown; conversions stay unavailable until the first
// rates file load. journal may be nil, in which case rate changes are
// applied without audit records.
func NewTable(logger *slog.Logger, journal RateJournal) *Table {
	t := &Table{
		entries: make(map[string]Currency),
		logger:  logger,
		journal: journal,
	}

	seed := []Currency{
		{Code: "EUR", Digits: 2, Rate: 1.0},
		{Code: "USD", Digits: 2},
		{Code: "GBP", Digits: 2},
		{Code: "CHF", Digits: 2},
		{Code: "JPY", Digits: 0},
		{Code: "SEK", Digits: 2},
		{Code: "DKK", Digits: 2},
		{Code: "NOK", Digits: 2},
	}
	for _, c := range seed {
		t.entries[c.Code] = c
		t.order = append(t.order, c.Code)
	}

	return t
}

// Lookup returns the descriptor for a currency code, matching case
// insensitively. The boolean is false for unsupported codes.
func (t *Table) Lookup(code string) (Currency, bool) {
	key := strings.ToUpper(code)

	t.mu.RLock()
	defer t.mu.RUnlock()

	c, ok := t.entries[key]
	return c, ok
}

// List returns all descriptors in their fixed declaration order, reference
// currency first. Used by the list-currencies introspection command.
func (t *Table) List() []Currency {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Currency, 0, len(t.order))
	for _, code := range t.order {
		out = append(out, t.entries[code])
	}
	return out
}

// setRate replaces a currency's table entry with one carrying the new rate.
// Returns false when the code is not in the table. Exposed for tests; the
// production write path is LoadRatesFile.
func (t *Table) setRate(code string, rate float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.entries[code]
	if !ok {
		return false
	}
	c.Rate = rate
	t.entries[code] = c
	return true
}

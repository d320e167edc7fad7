// rates.go implements the live-reloadable exchange rate file.
//
// The file is the simplest thing an operator can maintain by hand or by
// cron: one "CODE = RATE" assignment per line, '#' comments, blank lines
// ignored. RATE is how many units of CODE one euro buys:
//
//	# wholesale rates, updated nightly
//	USD = 1.0772
//	JPY = 159.5
//
// Reload Semantics
// ================
//
// A reload must never take the daemon down, no matter how mangled the file
// is. Unknown codes, unparsable numbers, and out-of-range rates are logged
// and skipped line by line; a missing or unreadable file is logged and the
// previous rates stay in force. The reference currency's pinned 1.0 rate is
// immune: a line assigning it is ignored.
//
// Each applied change is journaled before the table entry is replaced, so
// the audit trail always leads the visible state.

package money

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"
)

// maxExchangeRate bounds accepted rates. A rate above 10000 units per euro
// is a typo or a unit error for every currency in the table.
const maxExchangeRate = 10000

type rateLine struct {
	lineno int
	code   string
	rate   float64
}

// LoadRatesFile reads the rates file and applies every valid assignment,
// journaling each change. It returns the number of rates that actually
// changed and never fails the caller: all problems are logged and skipped.
func (t *Table) LoadRatesFile(path string) int {
	f, err := os.Open(path)
	if err != nil {
		t.logger.Warn("rates file unreadable, keeping previous rates", "path", path, "error", err)
		return 0
	}
	defer func() { _ = f.Close() }()

	var staged []rateLine

	scanner := bufio.NewScanner(f)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			t.logger.Warn("rates file: line is not a KEY = VALUE assignment", "path", path, "line", lineno)
			continue
		}

		code := strings.ToUpper(strings.TrimSpace(key))
		if code == ReferenceCurrency {
			// The reference rate is pinned; an assignment is not an error,
			// just meaningless.
			continue
		}

		rate, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			t.logger.Warn("rates file: unparsable rate", "path", path, "line", lineno, "code", code, "error", err)
			continue
		}
		if math.IsNaN(rate) || rate <= 0 || rate > maxExchangeRate {
			t.logger.Warn("rates file: rate out of range", "path", path, "line", lineno, "code", code, "rate", rate)
			continue
		}

		staged = append(staged, rateLine{lineno: lineno, code: code, rate: rate})
	}
	if err := scanner.Err(); err != nil {
		t.logger.Warn("rates file: read error, applying lines read so far", "path", path, "error", err)
	}

	applied := 0

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, rl := range staged {
		cur, ok := t.entries[rl.code]
		if !ok {
			t.logger.Warn("rates file: unsupported currency", "path", path, "line", rl.lineno, "code", rl.code)
			continue
		}
		if cur.Rate == rl.rate {
			continue
		}

		// Audit first, then swap the whole entry.
		if t.journal != nil {
			if err := t.journal.RecordRateChange(rl.code, rl.rate); err != nil {
				t.logger.Error("failed to journal rate change", "code", rl.code, "error", err)
			}
		}
		cur.Rate = rl.rate
		t.entries[rl.code] = cur
		applied++
	}

	return applied
}

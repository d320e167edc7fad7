// metrics.go holds the server's lifetime counters. Plain atomics: the
// counters are written on every connection and command, and read only by
// GETINFO and the shutdown summary.

package main

import "sync/atomic"

// Metrics aggregates server-wide counters.
type Metrics struct {
	TotalConnections atomic.Uint64
	TotalCommands    atomic.Uint64
	TotalErrors      atomic.Uint64
}

// NewMetrics creates a zeroed metrics bundle.
func NewMetrics() *Metrics {
	return &Metrics{}
}

package main

import (
	"net"
	"testing"
	"time"
)

func TestRemoteLimiterThrottlesPerHost(t *testing.T) {
	l := newRemoteLimiter(1, 2, time.Minute)
	now := time.Now()
	a := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1111}

	if !l.allow(a, now) || !l.allow(a, now) {
		t.Fatal("burst connections denied")
	}
	if l.allow(a, now) {
		t.Error("third connection inside the burst window allowed")
	}
}

func TestRemoteLimiterHostsAreIndependent(t *testing.T) {
	l := newRemoteLimiter(1, 1, time.Minute)
	now := time.Now()
	a := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1111}
	b := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 2222}

	if !l.allow(a, now) {
		t.Fatal("first host denied")
	}
	if l.allow(a, now) {
		t.Error("first host's second connection allowed")
	}
	if !l.allow(b, now) {
		t.Error("second host throttled by the first host's bucket")
	}
}

func TestRemoteLimiterRefills(t *testing.T) {
	l := newRemoteLimiter(1, 1, time.Minute)
	now := time.Now()
	a := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1111}

	if !l.allow(a, now) {
		t.Fatal("first connection denied")
	}
	if l.allow(a, now) {
		t.Fatal("second immediate connection allowed")
	}
	if !l.allow(a, now.Add(2*time.Second)) {
		t.Error("connection after refill denied")
	}
}

func TestRemoteLimiterSkipsUnixPeers(t *testing.T) {
	l := newRemoteLimiter(1, 1, time.Minute)
	now := time.Now()
	a := &net.UnixAddr{Name: "/run/payd.sock", Net: "unix"}

	for i := 0; i < 10; i++ {
		if !l.allow(a, now) {
			t.Fatalf("unix peer throttled on call %d", i+1)
		}
	}
}

func TestRemoteLimiterDisabled(t *testing.T) {
	if l := newRemoteLimiter(0, 100, time.Minute); l != nil {
		t.Error("zero rate did not disable the limiter")
	}
	if l := newRemoteLimiter(10, 0, time.Minute); l != nil {
		t.Error("zero burst did not disable the limiter")
	}

	var l *remoteLimiter
	a := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1111}
	if !l.allow(a, time.Now()) {
		t.Error("nil limiter denied a connection")
	}
}

func TestRemoteLimiterEvictsIdleHosts(t *testing.T) {
	l := newRemoteLimiter(1000, 1000, time.Minute)
	start := time.Now()

	idle := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1111}
	l.allow(idle, start)

	// 511 more hits from a second host land exactly on the amortized
	// eviction boundary, with the first host idle past the TTL by then.
	busy := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 2222}
	later := start.Add(2 * time.Minute)
	for i := 0; i < 511; i++ {
		l.allow(busy, later)
	}

	l.mu.Lock()
	n := len(l.byHost)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("byHost has %d entries after the sweep, want 1", n)
	}
}

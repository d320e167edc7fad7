// ratelimit.go throttles connection attempts per source host. The daemon
// normally sits behind a trusted frontend, but when the TCP listener is
// exposed wider, one misbehaving peer must not be able to monopolize the
// accept loop. A token bucket per host absorbs bursts and caps the
// sustained rate; idle buckets are evicted amortized over the calls
// themselves, so there is no cleanup goroutine to manage.

package main

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// remoteLimiter applies a token bucket per source host.
type remoteLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu     sync.Mutex
	byHost map[string]*remoteEntry
	hits   uint64
}

type remoteEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newRemoteLimiter creates a per-host limiter; returns nil (which allows
// everything) when the rate is zero or the burst is not positive.
func newRemoteLimiter(rps float64, burst int, idleTTL time.Duration) *remoteLimiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &remoteLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		byHost:  make(map[string]*remoteEntry),
	}
}

// allow consumes one token for the address's host at now. A nil limiter
// always passes, and so does any address without a host:port shape: unix
// socket peers are local by definition and are never throttled.
func (l *remoteLimiter) allow(addr net.Addr, now time.Time) bool {
	if l == nil {
		return true
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil || host == "" {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.byHost[host]
	if !ok {
		e = &remoteEntry{
			limiter:  rate.NewLimiter(l.limit, l.burst),
			lastSeen: now,
		}
		l.byHost[host] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)

	// Amortized eviction: every 512 calls, drop hosts idle past the TTL.
	l.hits++
	if l.hits%512 == 0 {
		cutoff := now.Add(-l.idleTTL)
		for k, v := range l.byHost {
			if v.lastSeen.Before(cutoff) {
				delete(l.byHost, k)
			}
		}
	}

	return allowed
}

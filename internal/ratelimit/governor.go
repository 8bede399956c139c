// Package ratelimit implements the Rate Governor (RG): per-IP token
// buckets and per-account login backoff on the dispatch path (§4.9).
package ratelimit

import (
	"sync"
	"time"

	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"golang.org/x/time/rate"
)

// backoff tiers for repeated login failures within a 15-minute sliding
// window, per §4.9.
var backoffTiers = []struct {
	failures int
	delay    time.Duration
}{
	{10, 10 * time.Minute},
	{8, 2 * time.Minute},
	{5, 30 * time.Second},
}

const loginFailureWindow = 15 * time.Minute

// Governor implements interfaces.RateGovernor. Storage is process-local:
// per-IP buckets and per-account failure counters live in maps guarded by a
// mutex. A shared backend (keyed atomic increment-and-read with TTL) is an
// optional extension point left for a future SharedLimiter; no such backend
// ships here since a single-instance deployment doesn't need one.
type Governor struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	failures map[string][]time.Time

	requestsPerSecond float64
	burst             int
}

// New creates a Governor. requestsPerSecond/burst size each per-IP bucket.
func New(requestsPerSecond float64, burst int) *Governor {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Governor{
		buckets:           make(map[string]*rate.Limiter),
		failures:          make(map[string][]time.Time),
		requestsPerSecond: requestsPerSecond,
		burst:             burst,
	}
}

// AllowRequest reports whether a request from clientIP may proceed.
func (g *Governor) AllowRequest(clientIP string) (bool, time.Duration) {
	g.mu.Lock()
	limiter, ok := g.buckets[clientIP]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(g.requestsPerSecond), g.burst)
		g.buckets[clientIP] = limiter
	}
	g.mu.Unlock()

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return false, 0
	}
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return false, delay
	}
	return true, 0
}

// RecordLoginFailure registers a failed login for account and returns the
// backoff hint that applies to the NEXT attempt in the current window.
func (g *Governor) RecordLoginFailure(account string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-loginFailureWindow)
	recent := pruneBefore(g.failures[account], cutoff)
	recent = append(recent, now)
	g.failures[account] = recent

	return backoffFor(len(recent))
}

// RecordLoginSuccess clears the account's failure window.
func (g *Governor) RecordLoginSuccess(account string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.failures, account)
}

func backoffFor(failureCount int) time.Duration {
	for _, tier := range backoffTiers {
		if failureCount >= tier.failures {
			return tier.delay
		}
	}
	return 0
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

var _ interfaces.RateGovernor = (*Governor)(nil)

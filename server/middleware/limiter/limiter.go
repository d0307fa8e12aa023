// Copyright 2023 - 2025, VnPower and the PixivFE contributors
// SPDX-License-Identifier: AGPL-3.0-only

package limiter

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	DefaultRate       = 2.0 // 120 tokens per minute per network.
	DefaultBurst      = 120
	DefaultIPv4Prefix = 24
	DefaultIPv6Prefix = 48

	LimiterExpiryDuration = time.Hour       // How long an idle network keeps its bucket.
	CleanupInterval       = 5 * time.Minute // Interval between cleanup runs.
)

// Options configures a [Limiter]. Zero fields take the package defaults.
type Options struct {
	RequestsPerSecond float64
	Burst             int
	IPv4Prefix        int
	IPv6Prefix        int

	// PassIPs are addresses or CIDRs that are never limited.
	PassIPs []string
}

// networkLimiter is the token bucket shared by one IP network.
type networkLimiter struct {
	limiter    *rate.Limiter
	lastAccess atomic.Int64 // unix nanoseconds
}

// Limiter holds one token bucket per client network.
type Limiter struct {
	opts     Options
	limiters sync.Map // network string -> *networkLimiter
	now      func() time.Time

	lastCleanupAt atomic.Int64
}

// New returns a Limiter configured by opts.
func New(opts Options) *Limiter {
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = DefaultRate
	}

	if opts.Burst <= 0 {
		opts.Burst = DefaultBurst
	}

	if opts.IPv4Prefix <= 0 {
		opts.IPv4Prefix = DefaultIPv4Prefix
	}

	if opts.IPv6Prefix <= 0 {
		opts.IPv6Prefix = DefaultIPv6Prefix
	}

	return &Limiter{opts: opts, now: time.Now}
}

// Middleware rejects requests from networks that ran out of tokens with
// 429 Too Many Requests and a Retry-After header.
func (l *Limiter) Middleware(w http.ResponseWriter, r *http.Request, next http.Handler) {
	l.maybeCleanup()

	ip := getClientIP(r)
	if ip == nil || ipMatchesList(ip, l.opts.PassIPs) {
		next.ServeHTTP(w, r)

		return
	}

	network := getNetwork(ip, l.opts.IPv4Prefix, l.opts.IPv6Prefix).String()

	reservation := l.limiterFor(network).ReserveN(l.now(), 1)
	if delay := reservation.DelayFrom(l.now()); delay > 0 {
		reservation.CancelAt(l.now())

		log.Warn().
			Str("network", network).
			Dur("retry_after", delay).
			Msg("Rate limit exceeded")

		writeTooManyRequests(w, delay)

		return
	}

	next.ServeHTTP(w, r)
}

// limiterFor returns the bucket of network, creating it on first use.
func (l *Limiter) limiterFor(network string) *rate.Limiter {
	value, ok := l.limiters.Load(network)
	if !ok {
		value, _ = l.limiters.LoadOrStore(network, &networkLimiter{
			limiter: rate.NewLimiter(rate.Limit(l.opts.RequestsPerSecond), l.opts.Burst),
		})
	}

	nl, _ := value.(*networkLimiter)
	nl.lastAccess.Store(l.now().UnixNano())

	return nl.limiter
}

// maybeCleanup drops idle buckets at most once per CleanupInterval.
func (l *Limiter) maybeCleanup() {
	now := l.now()
	last := l.lastCleanupAt.Load()

	if last == 0 {
		l.lastCleanupAt.CompareAndSwap(0, now.UnixNano())

		return
	}

	if now.Sub(time.Unix(0, last)) < CleanupInterval || !l.lastCleanupAt.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	go l.cleanupExpiredLimiters(now)
}

// cleanupExpiredLimiters removes buckets not used for LimiterExpiryDuration.
func (l *Limiter) cleanupExpiredLimiters(now time.Time) {
	var expired int

	l.limiters.Range(func(key, value any) bool {
		nl, ok := value.(*networkLimiter)
		if !ok || now.Sub(time.Unix(0, nl.lastAccess.Load())) > LimiterExpiryDuration {
			l.limiters.Delete(key)

			expired++
		}

		return true
	})

	if expired > 0 {
		log.Info().Int("count", expired).Msg("Cleaned up expired limiters")
	}
}

// networks reports how many buckets are held.
func (l *Limiter) networks() int {
	var n int

	l.limiters.Range(func(any, any) bool {
		n++

		return true
	})

	return n
}

func writeTooManyRequests(w http.ResponseWriter, delay time.Duration) {
	seconds := max(int(math.Ceil(delay.Seconds())), 1)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
}

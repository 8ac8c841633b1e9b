// Package ratelimit applies per-client, per-endpoint sliding-window
// limits to the HTTP API. Limits are declared as "N/second" or
// "N/minute" strings so config stays readable.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultTrimInterval is how often stale client buckets are dropped.
const DefaultTrimInterval = time.Hour

// Limit is a parsed rate rule.
type Limit struct {
	N      int
	Window time.Duration
}

// ParseLimit parses "N/second" or "N/minute".
func ParseLimit(s string) (Limit, error) {
	parts := strings.SplitN(strings.TrimSpace(s), "/", 2)
	if len(parts) != 2 {
		return Limit{}, fmt.Errorf("invalid rate limit %q: want N/second or N/minute", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || n <= 0 {
		return Limit{}, fmt.Errorf("invalid rate limit count %q", parts[0])
	}

	switch strings.TrimSpace(parts[1]) {
	case "second":
		return Limit{N: n, Window: time.Second}, nil
	case "minute":
		return Limit{N: n, Window: time.Minute}, nil
	default:
		return Limit{}, fmt.Errorf("invalid rate limit unit %q: want second or minute", parts[1])
	}
}

// DefaultRules returns the endpoint limits used when config omits them.
// Model-backed endpoints are tightest.
func DefaultRules() map[string]string {
	return map[string]string{
		"/ask_rag":    "1/second",
		"/ask":        "5/second",
		"/search":     "10/second",
		"/add_folder": "2/minute",
	}
}

// DefaultFallback limits endpoints without an explicit rule.
const DefaultFallback = "20/second"

// Limiter tracks request timestamps per (client IP, endpoint) pair.
type Limiter struct {
	mu       sync.Mutex
	rules    map[string]Limit
	fallback Limit
	buckets  map[string][]time.Time
	now      func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a limiter from rule strings; nil rules means DefaultRules.
func New(rules map[string]string, fallback string) (*Limiter, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if fallback == "" {
		fallback = DefaultFallback
	}

	parsed := make(map[string]Limit, len(rules))
	for endpoint, rule := range rules {
		limit, err := ParseLimit(rule)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", endpoint, err)
		}
		parsed[endpoint] = limit
	}
	fb, err := ParseLimit(fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}

	return &Limiter{
		rules:    parsed,
		fallback: fb,
		buckets:  make(map[string][]time.Time),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Allow reports whether a request from ip to endpoint may proceed. When
// denied, retryAfter is how long until the window frees a slot.
func (l *Limiter) Allow(ip, endpoint string) (ok bool, retryAfter time.Duration) {
	limit, exists := l.rules[endpoint]
	if !exists {
		limit = l.fallback
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	key := ip + "|" + endpoint
	cutoff := now.Add(-limit.Window)

	// Drop timestamps that slid out of the window.
	stamps := l.buckets[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= limit.N {
		l.buckets[key] = live
		return false, live[0].Sub(cutoff)
	}

	l.buckets[key] = append(live, now)
	return true, 0
}

// Trim drops buckets idle for longer than maxIdle, bounding memory for
// one-off clients. Returns how many buckets were removed.
func (l *Limiter) Trim(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	removed := 0
	for key, stamps := range l.buckets {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Start launches the background trim loop.
func (l *Limiter) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTrimInterval
	}
	go func() {
		defer close(l.doneCh)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stopCh:
				return
			case <-ticker.C:
				l.Trim(DefaultTrimInterval)
			}
		}
	}()
}

// Stop halts the trim loop. Safe to call without Start.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Package ratelimit paces outgoing requests for one remote endpoint
// family: minimum spacing between requests, a rolling per-minute
// window, and a lifetime quota for the process run.
package ratelimit

import (
	"errors"
	"log/slog"
	"time"
)

// ErrQuotaExhausted is returned once the lifetime request quota is
// spent. Callers must abort rather than wait; the quota only resets
// with the process.
var ErrQuotaExhausted = errors.New("ratelimit: lifetime request quota exhausted")

// Config holds pacing parameters.
type Config struct {
	MinInterval time.Duration // minimum spacing between requests
	PerMinute   int           // max requests per rolling window
	Window      time.Duration // rolling window length
	Lifetime    int           // max requests per process run
}

// Limiter enforces Config for a single cooperative caller. It is not
// safe for concurrent use; the accounting assumes one in-flight
// request at a time.
type Limiter struct {
	cfg    Config
	logger *slog.Logger

	now   func() time.Time
	sleep func(time.Duration)

	last        time.Time
	windowStart time.Time
	windowCount int
	total       int
}

// New creates a Limiter. Zero config fields fall back to the Pocket/
// Firecrawl defaults: 3s spacing, 20 per 60s window, 3000 lifetime.
func New(cfg Config, logger *slog.Logger) *Limiter {
	if cfg.MinInterval == 0 {
		cfg.MinInterval = 3 * time.Second
	}
	if cfg.PerMinute == 0 {
		cfg.PerMinute = 20
	}
	if cfg.Window == 0 {
		cfg.Window = time.Minute
	}
	if cfg.Lifetime == 0 {
		cfg.Lifetime = 3000
	}
	return &Limiter{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Acquire blocks until it is safe to issue one more request, then
// records it. Returns ErrQuotaExhausted without sleeping once the
// lifetime quota is spent.
func (l *Limiter) Acquire() error {
	if l.total >= l.cfg.Lifetime {
		return ErrQuotaExhausted
	}

	now := l.now()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.cfg.Window {
		l.windowStart = now
		l.windowCount = 0
	}

	if l.windowCount >= l.cfg.PerMinute {
		wait := l.cfg.Window - now.Sub(l.windowStart)
		l.logger.Warn("per-minute quota reached, waiting for window reset",
			"wait", wait,
			"window_count", l.windowCount,
		)
		l.sleep(wait)
		now = l.now()
		l.windowStart = now
		l.windowCount = 0
	}

	if !l.last.IsZero() {
		if shortfall := l.cfg.MinInterval - now.Sub(l.last); shortfall > 0 {
			l.sleep(shortfall)
			now = l.now()
		}
	}

	l.windowCount++
	l.total++
	l.last = now
	return nil
}

// Total returns the number of requests recorded this process run.
func (l *Limiter) Total() int {
	return l.total
}

// Exhausted reports whether the lifetime quota is spent.
func (l *Limiter) Exhausted() bool {
	return l.total >= l.cfg.Lifetime
}

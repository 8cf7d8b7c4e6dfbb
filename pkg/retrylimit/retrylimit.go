// Package retrylimit paces outbound calls with an adaptive rate limiter and
// retries the ones that fail with transient errors.
//
//	lim := retrylimit.NewAdaptiveLimiter(5, 1, 20, 1, 0.5)
//	err := retrylimit.Do(ctx, lim, func(ctx context.Context) error {
//	    return send(ctx)
//	}, retrylimit.WithAttempts(3))
package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// AdaptiveLimiter holds a rate that grows on success and shrinks when the
// remote side pushes back. Safe for concurrent use.
type AdaptiveLimiter struct {
	mu        sync.RWMutex
	limiter   *rate.Limiter
	minLimit  rate.Limit
	maxLimit  rate.Limit
	stepUp    rate.Limit
	stepDown  float64
	cooldown  time.Duration
	lastError time.Time
}

// NewAdaptiveLimiter creates a limiter starting at initial requests per second,
// bounded by [min, max]. Success adds stepUp, pushback multiplies by stepDown.
func NewAdaptiveLimiter(initial, min, max, stepUp rate.Limit, stepDown float64) *AdaptiveLimiter {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burstFor(initial)),
		minLimit: min,
		maxLimit: max,
		stepUp:   stepUp,
		stepDown: stepDown,
		cooldown: 10 * time.Second,
	}
}

// Wait blocks until a token is available or ctx is done.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	a.mu.RLock()
	l := a.limiter
	a.mu.RUnlock()
	return l.Wait(ctx)
}

// Success raises the rate unless pushback was seen within the cooldown.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.lastError) > a.cooldown {
		a.adjust(a.limiter.Limit() + a.stepUp)
	}
}

// RateLimited lowers the rate after the remote side signalled overload.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = time.Now()
	a.adjust(rate.Limit(float64(a.limiter.Limit()) * a.stepDown))
}

// CurrentLimit returns the current requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return float64(a.limiter.Limit())
}

// CurrentBurst returns the current burst size.
func (a *AdaptiveLimiter) CurrentBurst() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.limiter.Burst()
}

func (a *AdaptiveLimiter) adjust(next rate.Limit) {
	if next > a.maxLimit {
		next = a.maxLimit
	} else if next < a.minLimit {
		next = a.minLimit
	}
	if next != a.limiter.Limit() {
		a.limiter.SetLimit(next)
		a.limiter.SetBurst(burstFor(next))
	}
}

func burstFor(l rate.Limit) int {
	return max(1, int(l))
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// FatalError stops retries immediately.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Classifier maps an error to an HTTP-like status code, or 0 when unknown.
type Classifier func(error) int

// StatusOf finds a StatusCoder anywhere in err's chain.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// Option configures Do.
type Option func(*config)

type config struct {
	attempts     int
	initialDelay time.Duration
	maxDelay     time.Duration
	rateDelay    time.Duration
	multiplier   float64
	jitter       bool
	classify     Classifier
	log          zerolog.Logger
}

func defaults() config {
	return config{
		attempts:     5,
		initialDelay: 500 * time.Millisecond,
		maxDelay:     10 * time.Second,
		rateDelay:    time.Second,
		multiplier:   2,
		jitter:       true,
		classify:     StatusOf,
		log:          zerolog.Nop(),
	}
}

// WithAttempts caps the number of calls, including the first.
func WithAttempts(n int) Option { return func(c *config) { c.attempts = n } }

// WithBackoff sets the first delay and its ceiling.
func WithBackoff(initial, ceiling time.Duration) Option {
	return func(c *config) { c.initialDelay, c.maxDelay = initial, ceiling }
}

// WithRateLimitDelay sets the pause after a 429.
func WithRateLimitDelay(d time.Duration) Option { return func(c *config) { c.rateDelay = d } }

// WithoutJitter disables the random extra delay.
func WithoutJitter() Option { return func(c *config) { c.jitter = false } }

// WithClassifier replaces StatusOf as the source of status codes.
func WithClassifier(fn Classifier) Option { return func(c *config) { c.classify = fn } }

// WithLogger logs every retry.
func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.log = l } }

// Do calls fn until it succeeds, returns a FatalError or a non-retryable
// status, ctx ends, or the attempt budget runs out. Only 429 and 5xx
// statuses and errors without a status are retried. lim may be nil.
func Do(ctx context.Context, lim *AdaptiveLimiter, fn func(ctx context.Context) error, opts ...Option) error {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.attempts < 1 {
		cfg.attempts = 1
	}

	delay := cfg.initialDelay
	var err error
	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		if lim != nil {
			if werr := lim.Wait(ctx); werr != nil {
				return werr
			}
		}

		err = fn(ctx)
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			return nil
		}

		var fatal *FatalError
		if errors.As(err, &fatal) {
			return err
		}

		code := cfg.classify(err)
		wait := delay
		switch {
		case code == http.StatusTooManyRequests:
			if lim != nil {
				lim.RateLimited()
			}
			wait = cfg.rateDelay
		case code >= 500 && code < 600:
			if lim != nil {
				lim.RateLimited()
			}
		case code != 0:
			return err
		}
		if attempt == cfg.attempts {
			break
		}

		if cfg.jitter {
			wait = addJitter(wait)
		}
		cfg.log.Warn().Err(err).Int("attempt", attempt).Int("status", code).Dur("sleep", wait).Msg("retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*cfg.multiplier), cfg.maxDelay)
	}

	return fmt.Errorf("giving up after %d attempts: %w", cfg.attempts, err)
}

// addJitter adds 0-25% of delay.
func addJitter(delay time.Duration) time.Duration {
	if delay < 4 {
		return delay
	}
	return delay + time.Duration(rand.Int64N(int64(delay/4)))
}

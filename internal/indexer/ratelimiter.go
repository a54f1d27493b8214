// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// backoffCeiling caps the doubling backoff applied to an indexer that keeps
// returning 429/5xx, matching spec.md §4.3's "backoff doubling on each
// failure up to a ceiling".
const backoffCeiling = 30 * time.Minute

// initialBackoff is the first backoff duration applied on the first
// transient failure.
const initialBackoff = 30 * time.Second

// RateLimiter enforces spec.md §4.3/§5's per-indexer token bucket and
// disabled_until backoff. One RateLimiter guards one indexer; state is
// mutated under its own lock, never shared (spec.md §5's "mutated under
// per-indexer locks").
type RateLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	backoff  time.Duration
	disabledUntil time.Time
}

// NewRateLimiter builds a token-bucket limiter allowing burst requests
// immediately, then refilling at ratePerSecond tokens/sec.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available and the indexer is not in its
// backoff window, or ctx is cancelled first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	until := r.disabledUntil
	r.mu.Unlock()

	if wait := time.Until(until); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordSuccess resets the backoff window, per spec.md §4.3's "reset on a
// successful request".
func (r *RateLimiter) RecordSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = 0
	r.disabledUntil = time.Time{}
}

// RecordFailure doubles the indexer's backoff (from initialBackoff, capped
// at backoffCeiling) and sets disabledUntil accordingly.
func (r *RateLimiter) RecordFailure(now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.backoff == 0 {
		r.backoff = initialBackoff
	} else {
		r.backoff *= 2
		if r.backoff > backoffCeiling {
			r.backoff = backoffCeiling
		}
	}
	r.disabledUntil = now.Add(r.backoff)
	return r.disabledUntil
}

// DisabledUntil reports the current backoff expiry, or the zero time if the
// indexer is not currently backed off.
func (r *RateLimiter) DisabledUntil() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabledUntil
}

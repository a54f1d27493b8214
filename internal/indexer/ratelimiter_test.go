// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SpacesRequests(t *testing.T) {
	rl := NewRateLimiter(5, 1) // 5/sec
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(ctx))
	}
	elapsed := time.Since(start)
	// 3 requests at 5/sec with burst 1 should take at least ~2*(1/5)s.
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
}

func TestRateLimiter_BackoffDoubles(t *testing.T) {
	rl := NewRateLimiter(100, 5)
	now := time.Now()

	first := rl.RecordFailure(now)
	assert.Equal(t, initialBackoff, first.Sub(now))

	second := rl.RecordFailure(now)
	assert.Equal(t, 2*initialBackoff, second.Sub(now))

	rl.RecordSuccess()
	assert.True(t, rl.DisabledUntil().IsZero())
}

func TestRateLimiter_BackoffCeiling(t *testing.T) {
	rl := NewRateLimiter(100, 5)
	now := time.Now()
	var last time.Time
	for i := 0; i < 20; i++ {
		last = rl.RecordFailure(now)
	}
	assert.LessOrEqual(t, last.Sub(now), backoffCeiling+time.Second)
}

func TestRateLimiter_WaitRespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(100, 5)
	rl.RecordFailure(time.Now().Add(time.Hour)) // push disabledUntil far out by faking "now"

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx)
	assert.Error(t, err)
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package resilience wraps upstream calls with a circuit breaker and bounded
// retries. The poll loop runs every few seconds forever, so a dead Plex
// server must not burn a full timeout on every tick.
package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	maxRetries     = 3
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// ErrCircuitOpen is returned without touching the upstream while the breaker
// is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

// CircuitBreaker trips after maxFailures consecutive failures and closes
// again once resetTimeout has passed since the last one.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     int
	lastFailure  time.Time
	maxFailures  int
	resetTimeout time.Duration
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
	}
}

// IsOpen reports whether calls should be short-circuited. A breaker past its
// reset timeout closes and allows the next attempt through.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failures < cb.maxFailures {
		return false
	}
	if time.Since(cb.lastFailure) > cb.resetTimeout {
		cb.failures = 0
		return false
	}
	return true
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailure = time.Now()
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
}

// RetryWithBackoff retries fn with exponential backoff and jitter until it
// succeeds, the attempts are exhausted, or the context is cancelled. The last
// attempt fails without a trailing sleep.
func RetryWithBackoff(ctx context.Context, fn func() error) error {
	var err error
	backoff := initialBackoff

	for i := 0; i < maxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == maxRetries-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			backoff += jitter
		}
	}

	return errors.Wrapf(err, "failed after %d retries", maxRetries)
}

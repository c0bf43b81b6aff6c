// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package retry provides the bounded backoff strategies the orchestrator
// uses when command dispatch to a participant fails.
package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

// ExponentialBackoff implements saga.RetryPolicy with exponentially growing,
// jittered delays. Formula: delay = initialDelay * (multiplier ^ (attempt-1)),
// capped at maxDelay, with full jitter applied to avoid thundering herds.
type ExponentialBackoff struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
}

// NewExponentialBackoff creates a policy with the given attempt ceiling
// (including the first attempt) and delay bounds. Out-of-range arguments are
// clamped to safe defaults.
func NewExponentialBackoff(maxAttempts int, initialDelay, maxDelay time.Duration) *ExponentialBackoff {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if initialDelay <= 0 {
		initialDelay = 100 * time.Millisecond
	}
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}
	return &ExponentialBackoff{
		maxAttempts:  maxAttempts,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		multiplier:   2.0,
		jitter:       0.5,
	}
}

// WithMultiplier overrides the growth factor. Values below 1.0 are ignored.
func (p *ExponentialBackoff) WithMultiplier(m float64) *ExponentialBackoff {
	if m >= 1.0 {
		p.multiplier = m
	}
	return p
}

// WithJitter sets the jitter fraction in [0.0, 1.0]. Zero disables jitter,
// which tests rely on for deterministic delays.
func (p *ExponentialBackoff) WithJitter(j float64) *ExponentialBackoff {
	if j >= 0.0 && j <= 1.0 {
		p.jitter = j
	}
	return p
}

// ShouldRetry reports whether another dispatch attempt is allowed.
func (p *ExponentialBackoff) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	return attempt < p.maxAttempts
}

// Delay returns the backoff before the given attempt (1-indexed).
func (p *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	base := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt-2))
	if base > float64(p.maxDelay) {
		base = float64(p.maxDelay)
	}
	if p.jitter > 0 {
		// Deduct up to jitter*base at random so concurrent retries spread out.
		base -= p.jitter * base * rand.Float64()
	}
	return time.Duration(base)
}

// MaxAttempts returns the attempt ceiling.
func (p *ExponentialBackoff) MaxAttempts() int {
	return p.maxAttempts
}

// None returns a policy that never retries. Useful in tests and for
// fail-fast saga types.
func None() saga.RetryPolicy {
	return NewExponentialBackoff(1, time.Millisecond, time.Millisecond)
}

var _ saga.RetryPolicy = (*ExponentialBackoff)(nil)

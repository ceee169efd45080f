// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package resilience implements retry-with-backoff and per-dependency
// circuit breakers: one breaker per storage backend, one for the
// prediction bus.
package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/signalgate/ingestgw/internal/coreerr"
)

// Policy configures retry_with_backoff.
type Policy struct {
	MaxAttempts int           // default 3
	Base        time.Duration // default 100ms
	Cap         time.Duration // default 5s
}

// DefaultPolicy holds the package's default retry tuning.
var DefaultPolicy = Policy{MaxAttempts: 3, Base: 100 * time.Millisecond, Cap: 5 * time.Second}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultPolicy.Base
	}
	if p.Cap <= 0 {
		p.Cap = DefaultPolicy.Cap
	}
	return p
}

// WithBackoff runs op up to policy.MaxAttempts times, sleeping
// min(base*2^(n-1), cap) with full jitter between attempts. It only retries
// errors classified KindUnavailable; any other kind (or an untagged error,
// which defaults to KindInternal) is returned immediately without
// retrying — it refuses to retry on classification failures or
// constraint violations.
func WithBackoff(ctx context.Context, policy Policy, op func() error) error {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !coreerr.KindOf(lastErr).Retryable() {
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := backoffDelay(policy, attempt)
		select {
		case <-ctx.Done():
			return errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
	}
	return lastErr
}

func backoffDelay(policy Policy, attempt int) time.Duration {
	raw := policy.Base << (attempt - 1)
	if raw > policy.Cap || raw <= 0 {
		raw = policy.Cap
	}
	// Full jitter: uniform random in [0, raw].
	return time.Duration(rand.Int64N(int64(raw) + 1))
}

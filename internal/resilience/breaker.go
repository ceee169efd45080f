// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package resilience

import (
	"context"
	"time"

	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/sony/gobreaker"
)

const (
	DefaultFailureThreshold = 5
	DefaultOpenDuration     = 30 * time.Second
)

// Breaker wraps a sony/gobreaker.CircuitBreaker for one dependency (a
// storage backend or the prediction bus), translating its open-state
// rejection into the coreerr taxonomy.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker builds a per-dependency breaker. failureThreshold is the
// number of consecutive failures that trips CLOSED → OPEN (default 5);
// openDuration is how long it stays OPEN before admitting a HALF_OPEN trial
// call (default 30s).
func NewBreaker(name string, failureThreshold uint32, openDuration time.Duration) *Breaker {
	if failureThreshold == 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if openDuration <= 0 {
		openDuration = DefaultOpenDuration
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: openDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Call runs op through the breaker. If the breaker is OPEN the call is
// rejected immediately with coreerr.KindUnavailable without invoking op.
func (b *Breaker) Call(ctx context.Context, op func(context.Context) error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, op(ctx)
	})
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return coreerr.Wrap(coreerr.KindUnavailable, "circuit_open", err)
	}
	return err
}

// State reports the breaker's current gobreaker state name, for
// GET /resilience/health.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

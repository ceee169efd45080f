// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package predictbus implements the throttled prediction bus: a
// fire-and-forget NATS publisher with a per-series token-bucket rate
// limit, striped across a fixed number of mutexes the way pkg/tsstore
// stripes its series map.
package predictbus

import (
	"sync"

	"golang.org/x/time/rate"
)

const stripeCount = 256

const DefaultMinIntervalSeconds = 1.0

// throttle tracks the per-series rate limiters, sharded to bound lock
// contention under many concurrently-publishing series.
type throttle struct {
	minInterval float64
	stripes     [stripeCount]struct {
		mu       sync.Mutex
		limiters map[string]*rate.Limiter
	}
}

func newThrottle(minIntervalSeconds float64) *throttle {
	if minIntervalSeconds <= 0 {
		minIntervalSeconds = DefaultMinIntervalSeconds
	}
	t := &throttle{minInterval: minIntervalSeconds}
	for i := range t.stripes {
		t.stripes[i].limiters = make(map[string]*rate.Limiter)
	}
	return t
}

func stripeFor(seriesID string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(seriesID); i++ {
		h ^= uint32(seriesID[i])
		h *= 16777619
	}
	return h % stripeCount
}

// allow reports whether seriesID may publish right now, consuming its
// token if so. At most one publish per minInterval seconds is admitted;
// the rest are dropped silently by the caller.
func (t *throttle) allow(seriesID string) bool {
	idx := stripeFor(seriesID)
	stripe := &t.stripes[idx]

	stripe.mu.Lock()
	defer stripe.mu.Unlock()

	lim, ok := stripe.limiters[seriesID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(1.0/t.minInterval), 1)
		stripe.limiters[seriesID] = lim
	}
	return lim.Allow()
}

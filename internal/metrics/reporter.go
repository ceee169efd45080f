// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metrics

import (
	httptransport "github.com/signalgate/ingestgw/internal/transport/http"
)

// DedupChecker is the subset of *dedup.Deduplicator the Reporter needs.
type DedupChecker interface {
	Available() bool
}

// DLQDepther is the subset of *dlq.Queue the Reporter needs.
type DLQDepther interface {
	Len() int
	Dropped() uint64
}

// NamedBreaker is the subset of *resilience.Breaker the Reporter needs, kept
// here instead of importing internal/resilience so this package only
// depends on method shapes it actually calls.
type NamedBreaker interface {
	State() string
}

// Reporter implements internal/transport/http.ResilienceReporter by reading
// the live dedup/DLQ/breaker objects on every call and, as a side effect,
// refreshing the matching Prometheus gauges so GET /resilience/health and
// GET /metrics never disagree.
type Reporter struct {
	dedup    DedupChecker
	dlq      DLQDepther
	breakers map[string]NamedBreaker
}

// NewReporter builds a Reporter. breakers maps a human-readable dependency
// name (e.g. "storage", "prediction_bus") to the breaker guarding it.
func NewReporter(dedup DedupChecker, dlq DLQDepther, breakers map[string]NamedBreaker) *Reporter {
	return &Reporter{dedup: dedup, dlq: dlq, breakers: breakers}
}

// DedupAvailable implements http.ResilienceReporter.
func (rep *Reporter) DedupAvailable() bool {
	if rep.dedup == nil {
		return false
	}
	available := rep.dedup.Available()
	if available {
		DedupAvailable.Set(1)
	} else {
		DedupAvailable.Set(0)
	}
	return available
}

// DLQDepth implements http.ResilienceReporter.
func (rep *Reporter) DLQDepth() int {
	if rep.dlq == nil {
		return 0
	}
	depth := rep.dlq.Len()
	DLQDepth.Set(float64(depth))
	DLQDropped.Set(float64(rep.dlq.Dropped()))
	return depth
}

// BreakerStates implements http.ResilienceReporter.
func (rep *Reporter) BreakerStates() map[string]httptransport.BreakerState {
	out := make(map[string]httptransport.BreakerState, len(rep.breakers))
	for name, b := range rep.breakers {
		state := b.State()
		BreakerState.WithLabelValues(name).Set(BreakerStateValue(state))
		out[name] = httptransport.BreakerState{State: state}
	}
	return out
}

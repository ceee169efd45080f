// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics exposes Prometheus collectors for the resilience layer
// (dedup, DLQ, circuit breakers) and backs
// internal/transport/http.ResilienceReporter so GET /resilience/health and
// GET /metrics agree on the same numbers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "signalgate"

// ─── Deduplication ──────────────────────────────────────────────────────────

// DedupChecks counts every IsDuplicate call, split by outcome
// ("duplicate", "unique", "passthrough").
var DedupChecks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "dedup_checks_total",
	Help:      "Total deduplication checks by outcome.",
}, []string{"outcome"})

// DedupAvailable reports whether the deduplicator last reached its backing
// store (1) or is running in passthrough mode (0).
var DedupAvailable = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "dedup_available",
	Help:      "1 if the deduplicator store was reachable on the last check, 0 in passthrough mode.",
})

// ─── Dead-letter queue ──────────────────────────────────────────────────────

// DLQDepth tracks the current number of entries held in the dead-letter ring.
var DLQDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "dlq_depth",
	Help:      "Current number of entries held in the dead-letter queue.",
})

// DLQDropped mirrors dlq.Queue.Dropped(), the cumulative count of entries
// evicted by ring overflow since process start. A gauge set from that
// authoritative counter rather than a separately-incremented counter, so
// the two can never drift apart.
var DLQDropped = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "dlq_dropped_total",
	Help:      "Total dead-letter entries dropped due to ring overflow.",
})

// DLQPushes counts entries pushed to the DLQ by failure category.
var DLQPushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "dlq_pushes_total",
	Help:      "Total entries pushed to the dead-letter queue by category.",
}, []string{"category"})

// DLQReplayed counts the replay worker's re-route attempts by outcome
// ("ok" or "failed").
var DLQReplayed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "dlq_replayed_total",
	Help:      "Total dead-letter entries replayed, by outcome (\"ok\" or \"failed\").",
}, []string{"outcome"})

// ─── Circuit breakers ───────────────────────────────────────────────────────

// BreakerState reports each named breaker's current state as a gauge
// (0=closed, 1=half-open, 2=open), mirroring gobreaker's State enum order.
var BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "breaker_state",
	Help:      "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
}, []string{"name"})

// BreakerRejections counts calls rejected outright because a breaker was open.
var BreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "breaker_rejections_total",
	Help:      "Total calls rejected because the named breaker was open.",
}, []string{"name"})

// BreakerStateValue maps gobreaker's State.String() to the BreakerState
// gauge encoding, matching the names /resilience/health reports.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default: // "closed"
		return 0
	}
}

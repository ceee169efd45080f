// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/signalgate/ingestgw/internal/coreerr"
)

type overallHealthResponse struct {
	Status   string            `json:"status"`
	Backends map[string]Health `json:"backends"`
}

// handleHealth implements GET /health: aggregates every known
// backend's health, downgrading the overall status to the worst individual
// one (down > degraded > ok).
func (a *Adapter) handleHealth(rw http.ResponseWriter, r *http.Request) {
	backends := a.health.Backends()
	resp := overallHealthResponse{Status: "ok", Backends: make(map[string]Health, len(backends))}
	for _, name := range backends {
		h, err := a.health.Health(r.Context(), name)
		if err != nil {
			h = Health{Status: "down", Details: map[string]any{"error": err.Error()}}
		}
		resp.Backends[name] = h
		resp.Status = worseStatus(resp.Status, h.Status)
	}
	writeJSON(rw, http.StatusOK, resp)
}

// handleHealthBackend implements GET /health/{backend}: a single backend's
// health only, independent of the others — either backend may be
// unavailable without taking the other down.
func (a *Adapter) handleHealthBackend(rw http.ResponseWriter, r *http.Request) {
	backend := mux.Vars(r)["backend"]
	h, err := a.health.Health(r.Context(), backend)
	if err != nil {
		writeError(rw, coreerr.Wrap(coreerr.KindUnavailable, "backend_health_check_failed", err))
		return
	}
	writeJSON(rw, http.StatusOK, h)
}

func worseStatus(a, b string) string {
	rank := map[string]int{"ok": 0, "degraded": 1, "down": 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

type dedupHealth struct {
	Available bool `json:"available"`
}

type dlqHealth struct {
	Depth int `json:"depth"`
}

type resilienceHealthResponse struct {
	Dedup    dedupHealth             `json:"dedup"`
	DLQ      dlqHealth               `json:"dlq"`
	Breakers map[string]BreakerState `json:"breakers"`
}

// handleResilienceHealth implements GET /resilience/health.
func (a *Adapter) handleResilienceHealth(rw http.ResponseWriter, r *http.Request) {
	resp := resilienceHealthResponse{
		Dedup:    dedupHealth{Available: a.resilience.DedupAvailable()},
		DLQ:      dlqHealth{Depth: a.resilience.DLQDepth()},
		Breakers: a.resilience.BreakerStates(),
	}
	writeJSON(rw, http.StatusOK, resp)
}

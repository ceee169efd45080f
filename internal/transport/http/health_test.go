// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
)

type fakeHealthChecker struct {
	backends map[string]Health
}

func (f *fakeHealthChecker) Backends() []string {
	names := make([]string, 0, len(f.backends))
	for name := range f.backends {
		names = append(names, name)
	}
	return names
}

func (f *fakeHealthChecker) Health(ctx context.Context, backend string) (Health, error) {
	return f.backends[backend], nil
}

func TestHandleHealthAggregatesWorstStatus(t *testing.T) {
	hc := &fakeHealthChecker{backends: map[string]Health{
		"legacy":  {Status: "ok"},
		"generic": {Status: "degraded"},
	}}
	a := NewAdapter(Config{Router: &fakeRouter{}, Health: hc})
	mr := mux.NewRouter()
	a.MountRoutes(mr)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	var resp overallHealthResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("overall status = %q, want degraded", resp.Status)
	}
}

func TestHandleHealthBackendIndependentOfOthers(t *testing.T) {
	hc := &fakeHealthChecker{backends: map[string]Health{
		"legacy":  {Status: "down"},
		"generic": {Status: "ok"},
	}}
	a := NewAdapter(Config{Router: &fakeRouter{}, Health: hc})
	mr := mux.NewRouter()
	a.MountRoutes(mr)

	req := httptest.NewRequest(http.MethodGet, "/health/generic", nil)
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	var h Health
	if err := json.Unmarshal(rw.Body.Bytes(), &h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "ok" {
		t.Errorf("generic backend status = %q, want ok even though legacy is down", h.Status)
	}
}

type fakeResilienceReporter struct {
	dedupAvailable bool
	dlqDepth       int
	breakers       map[string]BreakerState
}

func (f *fakeResilienceReporter) DedupAvailable() bool                    { return f.dedupAvailable }
func (f *fakeResilienceReporter) DLQDepth() int                           { return f.dlqDepth }
func (f *fakeResilienceReporter) BreakerStates() map[string]BreakerState { return f.breakers }

func TestHandleResilienceHealth(t *testing.T) {
	rr := &fakeResilienceReporter{
		dedupAvailable: true,
		dlqDepth:       3,
		breakers:       map[string]BreakerState{"legacy-storage": {State: "closed"}},
	}
	a := NewAdapter(Config{Router: &fakeRouter{}, Resilience: rr})
	mr := mux.NewRouter()
	a.MountRoutes(mr)

	req := httptest.NewRequest(http.MethodGet, "/resilience/health", nil)
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	var resp resilienceHealthResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Dedup.Available || resp.DLQ.Depth != 3 || resp.Breakers["legacy-storage"].State != "closed" {
		t.Errorf("unexpected resilience response: %+v", resp)
	}
}

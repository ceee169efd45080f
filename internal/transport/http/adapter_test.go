// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/schema"
)

type fakeRouter struct {
	mu     sync.Mutex
	routed []schema.DataPoint
	reject bool
}

func (f *fakeRouter) Route(ctx context.Context, point schema.DataPoint, transportName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return coreerr.New(coreerr.KindInvalidInput, "guards_failed")
	}
	f.routed = append(f.routed, point)
	return nil
}

func (f *fakeRouter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.routed)
}

func newTestAdapter(router Router) (*Adapter, *mux.Router) {
	a := NewAdapter(Config{Router: router})
	r := mux.NewRouter()
	a.MountRoutes(r)
	return a, r
}

func TestHandleIngestDataRoutesEachPoint(t *testing.T) {
	fr := &fakeRouter{}
	_, mr := newTestAdapter(fr)

	body := `{"source_id":"s1","domain":"generic","data_points":[
		{"stream_id":"temp","value":21.5,"timestamp":100},
		{"stream_id":"humidity","value":40,"timestamp":100}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/data", bytes.NewBufferString(body))
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rw.Code, rw.Body.String())
	}
	if fr.count() != 2 {
		t.Fatalf("expected 2 points routed, got %d", fr.count())
	}

	var results []pointResult
	if err := json.Unmarshal(rw.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results) != 2 || !results[0].Accepted || !results[1].Accepted {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestHandleIngestDataRefusesIoTDomain(t *testing.T) {
	fr := &fakeRouter{}
	_, mr := newTestAdapter(fr)

	body := `{"source_id":"s1","domain":"iot","data_points":[]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/data", bytes.NewBufferString(body))
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rw.Code)
	}
}

func TestHandleIngestDataReportsRejectedPoints(t *testing.T) {
	fr := &fakeRouter{reject: true}
	_, mr := newTestAdapter(fr)

	body := `{"source_id":"s1","domain":"generic","data_points":[{"stream_id":"temp","value":1,"timestamp":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/data", bytes.NewBufferString(body))
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	var results []pointResult
	if err := json.Unmarshal(rw.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results) != 1 || results[0].Accepted || results[0].Reason != "guards_failed" {
		t.Errorf("unexpected results: %+v", results)
	}
}

type fakeDeviceResolver struct {
	known map[string]string // sensor_uuid -> sensor_id
}

func (f *fakeDeviceResolver) ResolveSensor(ctx context.Context, deviceUUID, sensorUUID string) (string, bool, error) {
	id, ok := f.known[sensorUUID]
	return id, ok, nil
}

func TestHandleIngestPacketsResolvesAndRoutes(t *testing.T) {
	fr := &fakeRouter{}
	devices := &fakeDeviceResolver{known: map[string]string{"sensor-a": "42"}}
	a := NewAdapter(Config{Router: fr, Devices: devices})
	mr := mux.NewRouter()
	a.MountRoutes(mr)

	body := `{"device_uuid":"dev-1","readings":[{"sensor_uuid":"sensor-a","value":5},{"sensor_uuid":"sensor-unknown","value":9}]}`
	req := httptest.NewRequest(http.MethodPost, "/ingest/packets", bytes.NewBufferString(body))
	req.Header.Set("X-Device-Key", "k")
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rw.Code, rw.Body.String())
	}
	var resp ingestPacketsResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Inserted != 1 {
		t.Errorf("expected 1 inserted, got %d", resp.Inserted)
	}
	if len(resp.UnknownSensors) != 1 || resp.UnknownSensors[0] != "sensor-unknown" {
		t.Errorf("expected sensor-unknown reported, got %+v", resp.UnknownSensors)
	}
}

func TestHandleIngestPacketsRequiresDeviceCredentials(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr, Devices: &fakeDeviceResolver{}})
	mr := mux.NewRouter()
	a.MountRoutes(mr)

	req := httptest.NewRequest(http.MethodPost, "/ingest/packets", bytes.NewBufferString(`{"device_uuid":"d","readings":[]}`))
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without device credentials", rw.Code)
	}
}

func TestHandleIngestReadingsByIntegerSensorID(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr})
	mr := mux.NewRouter()
	a.MountRoutes(mr)

	req := httptest.NewRequest(http.MethodPost, "/ingest/readings", bytes.NewBufferString(`{"17":{"value":3.5}}`))
	req.Header.Set("X-API-Key", "k")
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rw.Code, rw.Body.String())
	}
	var resp ingestReadingsResponse
	if err := json.Unmarshal(rw.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Inserted != 1 {
		t.Errorf("expected 1 inserted, got %d", resp.Inserted)
	}
	if fr.count() != 1 || fr.routed[0].SeriesID != "17" {
		t.Errorf("expected point routed with SeriesID 17, got %+v", fr.routed)
	}
}

func TestBackpressureReturns429WhenSaturated(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr, MaxInFlight: 1})
	// Occupy the only in-flight slot directly.
	a.inflight <- struct{}{}
	defer func() { <-a.inflight }()

	mr := mux.NewRouter()
	a.MountRoutes(mr)

	req := httptest.NewRequest(http.MethodPost, "/ingest/data", bytes.NewBufferString(`{"source_id":"s","domain":"generic","data_points":[]}`))
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rw.Code)
	}
}

func TestMetricsEndpointServesPrometheusExposition(t *testing.T) {
	_, mr := newTestAdapter(&fakeRouter{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rw := httptest.NewRecorder()
	mr.ServeHTTP(rw, req)

	if rw.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rw.Code)
	}
	if ct := rw.Header().Get("Content-Type"); ct == "" {
		t.Error("expected a Content-Type header on the /metrics response")
	}
}

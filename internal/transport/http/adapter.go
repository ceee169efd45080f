// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package http implements the HTTP batch transport adapter: POST
// /ingest/data, /ingest/packets, /ingest/readings(/bulk),
// /ingest/csv(+job polling), and the /health, /resilience/health, /metrics
// diagnostics endpoints. Routing follows a gorilla/mux
// subrouter-plus-decode-helper shape.
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/internal/transport/csv"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const transportName = "http"

// Router is the subset of internal/router.Router the adapter needs.
type Router interface {
	Route(ctx context.Context, point schema.DataPoint, transportName string) error
}

// DeviceResolver resolves a legacy (device_uuid, sensor_uuid) pair to the
// numeric sensor id string used as SeriesID, validating that the sensor
// actually belongs to the device. Implemented by the legacy storage
// backend, which is expected to cache the mapping with a 300s TTL; the
// adapter itself is cache-agnostic.
type DeviceResolver interface {
	ResolveSensor(ctx context.Context, deviceUUID, sensorUUID string) (sensorID string, ok bool, err error)
}

// HealthChecker reports per-backend health for GET /health and
// GET /health/{backend}.
type HealthChecker interface {
	Health(ctx context.Context, backend string) (Health, error)
	Backends() []string
}

// Health is one backend's status.
type Health struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// DeviceAuthValidator validates the device-key/API-key/bearer credential
// on a legacy-endpoint request (internal/auth.Validator).
type DeviceAuthValidator interface {
	ValidateRequest(r *http.Request) error
}

// ResilienceReporter backs GET /resilience/health.
type ResilienceReporter interface {
	DedupAvailable() bool
	DLQDepth() int
	BreakerStates() map[string]BreakerState
}

// BreakerState is one circuit breaker's reported state.
type BreakerState struct {
	State    string   `json:"state"`
	OpenedAt *float64 `json:"opened_at,omitempty"`
}

// Config bundles an Adapter's dependencies.
type Config struct {
	Router     Router
	Devices    DeviceResolver
	Health     HealthChecker
	Resilience ResilienceReporter
	Auth       DeviceAuthValidator
	CSV        *csv.Manager

	// MaxInFlight bounds concurrent in-handler requests; excess requests
	// receive 429. Default 256.
	MaxInFlight int

	// RequestTimeout bounds how long a single request's downstream Route
	// calls may run: a top-level request context carries a deadline.
	// Default 30s.
	RequestTimeout time.Duration

	NowFn func() float64
}

// Adapter is the HTTP batch transport.
type Adapter struct {
	router     Router
	devices    DeviceResolver
	health     HealthChecker
	resilience ResilienceReporter
	auth       DeviceAuthValidator
	csvManager *csv.Manager

	inflight chan struct{}
	timeout  time.Duration
	nowFn    func() float64
}

const (
	DefaultMaxInFlight    = 256
	DefaultRequestTimeout = 30 * time.Second
)

func NewAdapter(cfg Config) *Adapter {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Adapter{
		router:     cfg.Router,
		devices:    cfg.Devices,
		health:     cfg.Health,
		resilience: cfg.Resilience,
		auth:       cfg.Auth,
		csvManager: cfg.CSV,
		inflight:   make(chan struct{}, maxInFlight),
		timeout:    timeout,
		nowFn:      cfg.NowFn,
	}
}

func (a *Adapter) now() float64 {
	if a.nowFn != nil {
		return a.nowFn()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// MountRoutes registers the ingestion and diagnostics endpoints on r.
func (a *Adapter) MountRoutes(r *mux.Router) {
	r.HandleFunc("/ingest/data", a.withBackpressure(a.handleIngestData)).Methods(http.MethodPost)
	r.HandleFunc("/ingest/packets", a.withBackpressure(a.handleIngestPackets)).Methods(http.MethodPost)
	r.HandleFunc("/ingest/readings", a.withBackpressure(a.handleIngestReadings)).Methods(http.MethodPost)
	r.HandleFunc("/ingest/readings/bulk", a.withBackpressure(a.handleIngestReadingsBulk)).Methods(http.MethodPost)
	r.HandleFunc("/ingest/csv", a.withBackpressure(a.handleIngestCSV)).Methods(http.MethodPost)
	r.HandleFunc("/ingest/csv/jobs/{job_id}", a.handleCSVJobStatus).Methods(http.MethodGet)

	if a.health != nil {
		r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
		r.HandleFunc("/health/{backend}", a.handleHealthBackend).Methods(http.MethodGet)
	}
	if a.resilience != nil {
		r.HandleFunc("/resilience/health", a.handleResilienceHealth).Methods(http.MethodGet)
	}
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// withBackpressure enforces a bounded concurrent-in-flight limit,
// returning 429 when full.
func (a *Adapter) withBackpressure(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		select {
		case a.inflight <- struct{}{}:
		default:
			writeError(rw, coreerr.New(coreerr.KindThrottled, "too_many_in_flight_requests"))
			return
		}
		defer func() { <-a.inflight }()

		ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
		defer cancel()
		next(rw, r.WithContext(ctx))
	}
}

func decode(r io.Reader, val any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}

func writeJSON(rw http.ResponseWriter, status int, val any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(val); err != nil {
		log.Warnf("http transport: failed to encode response: %v", err)
	}
}

// writeError logs, then emits coreerr's ResponseBody at the kind's
// mapped status.
func writeError(rw http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	reason := "internal_error"
	if ce, ok := err.(*coreerr.Error); ok {
		status = ce.HTTPStatus()
		reason = ce.Reason
	}
	log.Warnf("http transport: %s", err.Error())
	writeJSON(rw, status, coreerr.ResponseBody{Status: http.StatusText(status), Reason: reason})
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package http

import (
	"net/http"

	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/schema"
)

// genericDataPoint is one element of POST /ingest/data's data_points array.
type genericDataPoint struct {
	StreamID   string         `json:"stream_id"`
	Value      float64        `json:"value"`
	Timestamp  float64        `json:"timestamp"`
	StreamType string         `json:"stream_type,omitempty"`
	Sequence   int64          `json:"sequence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type ingestDataRequest struct {
	SourceID   string              `json:"source_id"`
	Domain     schema.Domain       `json:"domain"`
	DataPoints []genericDataPoint  `json:"data_points"`
}

type pointResult struct {
	StreamID string `json:"stream_id"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// handleIngestData implements POST /ingest/data: one source's
// batch of generic-domain points, refusing domain="iot" with 400 and
// returning a per-point classification array.
func (a *Adapter) handleIngestData(rw http.ResponseWriter, r *http.Request) {
	var req ingestDataRequest
	if err := decode(r.Body, &req); err != nil {
		writeError(rw, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_body", err))
		return
	}
	if req.Domain == schema.DomainIoT {
		writeError(rw, coreerr.New(coreerr.KindInvalidInput, "invalid_domain"))
		return
	}
	if !req.Domain.Valid() {
		writeError(rw, coreerr.New(coreerr.KindInvalidInput, "invalid_domain"))
		return
	}

	now := a.now()
	results := make([]pointResult, 0, len(req.DataPoints))
	for _, dp := range req.DataPoints {
		seriesID := schema.DeriveSeriesID(req.Domain, req.SourceID, dp.StreamID)
		point := schema.DataPoint{
			SeriesID:   seriesID,
			Value:      dp.Value,
			Timestamp:  dp.Timestamp,
			IngestedAt: now,
			Domain:     req.Domain,
			SourceID:   req.SourceID,
			StreamType: dp.StreamType,
			Sequence:   dp.Sequence,
			Metadata:   dp.Metadata,
		}
		res := pointResult{StreamID: dp.StreamID, Accepted: true}
		if err := a.router.Route(r.Context(), point, transportName); err != nil {
			res.Accepted = false
			res.Reason = reasonOf(err)
		}
		results = append(results, res)
	}
	writeJSON(rw, http.StatusOK, results)
}

// legacyReading is one reading inside POST /ingest/packets' body.
type legacyReading struct {
	SensorUUID string  `json:"sensor_uuid"`
	Value      float64 `json:"value"`
	Timestamp  *float64 `json:"ts,omitempty"`
}

type ingestPacketsRequest struct {
	DeviceUUID string          `json:"device_uuid"`
	Readings   []legacyReading `json:"readings"`
}

type ingestPacketsResponse struct {
	Inserted       int      `json:"inserted"`
	UnknownSensors []string `json:"unknown_sensors"`
}

// handleIngestPackets implements POST /ingest/packets: legacy
// IoT ingestion keyed by (device_uuid, sensor_uuid), resolved to a numeric
// sensor id via the device resolver.
func (a *Adapter) handleIngestPackets(rw http.ResponseWriter, r *http.Request) {
	if err := a.checkDeviceAuth(r); err != nil {
		writeError(rw, err)
		return
	}
	var req ingestPacketsRequest
	if err := decode(r.Body, &req); err != nil {
		writeError(rw, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_body", err))
		return
	}
	if a.devices == nil {
		writeError(rw, coreerr.New(coreerr.KindInternal, "device_resolver_unconfigured"))
		return
	}

	now := a.now()
	resp := ingestPacketsResponse{UnknownSensors: []string{}}
	for _, reading := range req.Readings {
		sensorID, ok, err := a.devices.ResolveSensor(r.Context(), req.DeviceUUID, reading.SensorUUID)
		if err != nil {
			writeError(rw, coreerr.Wrap(coreerr.KindUnavailable, "device_resolver_failed", err))
			return
		}
		if !ok {
			resp.UnknownSensors = append(resp.UnknownSensors, reading.SensorUUID)
			continue
		}
		ts := now
		if reading.Timestamp != nil {
			ts = *reading.Timestamp
		}
		point := schema.DataPoint{
			SeriesID:   sensorID,
			Value:      reading.Value,
			Timestamp:  ts,
			IngestedAt: now,
			Domain:     schema.DomainIoT,
			SourceID:   req.DeviceUUID,
		}
		if err := a.router.Route(r.Context(), point, transportName); err == nil {
			resp.Inserted++
		}
	}
	writeJSON(rw, http.StatusOK, resp)
}

type readingsBySensorRequest map[string]struct {
	Value     float64  `json:"value"`
	Timestamp *float64 `json:"ts,omitempty"`
}

type ingestReadingsResponse struct {
	Inserted int `json:"inserted"`
}

// handleIngestReadings implements POST /ingest/readings: legacy
// ingestion keyed directly by integer sensor_id, no device lookup.
func (a *Adapter) handleIngestReadings(rw http.ResponseWriter, r *http.Request) {
	if err := a.checkDeviceAuth(r); err != nil {
		writeError(rw, err)
		return
	}
	var req readingsBySensorRequest
	if err := decode(r.Body, &req); err != nil {
		writeError(rw, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_body", err))
		return
	}
	resp := a.routeLegacyReadings(r, req)
	writeJSON(rw, http.StatusOK, resp)
}

// handleIngestReadingsBulk implements POST /ingest/readings/bulk: an array
// of the same per-sensor-id-keyed bodies, batched in one call.
func (a *Adapter) handleIngestReadingsBulk(rw http.ResponseWriter, r *http.Request) {
	if err := a.checkDeviceAuth(r); err != nil {
		writeError(rw, err)
		return
	}
	var batch []readingsBySensorRequest
	if err := decode(r.Body, &batch); err != nil {
		writeError(rw, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_body", err))
		return
	}
	total := ingestReadingsResponse{}
	for _, req := range batch {
		res := a.routeLegacyReadings(r, req)
		total.Inserted += res.Inserted
	}
	writeJSON(rw, http.StatusOK, total)
}

func (a *Adapter) routeLegacyReadings(r *http.Request, req readingsBySensorRequest) ingestReadingsResponse {
	now := a.now()
	resp := ingestReadingsResponse{}
	for sensorID, reading := range req {
		ts := now
		if reading.Timestamp != nil {
			ts = *reading.Timestamp
		}
		point := schema.DataPoint{
			SeriesID:   sensorID,
			Value:      reading.Value,
			Timestamp:  ts,
			IngestedAt: now,
			Domain:     schema.DomainIoT,
		}
		if err := a.router.Route(r.Context(), point, transportName); err == nil {
			resp.Inserted++
		}
	}
	return resp
}

// checkDeviceAuth enforces the device-auth requirement for the
// legacy endpoints. When a.auth is configured it validates the
// X-Device-Key/X-API-Key/bearer credential for real (internal/auth);
// otherwise it falls back to a presence-only check so device-auth stays
// optional per the §6.6 "device-auth enabled" toggle.
func (a *Adapter) checkDeviceAuth(r *http.Request) error {
	if a.auth != nil {
		return a.auth.ValidateRequest(r)
	}
	if r.Header.Get("X-Device-Key") == "" && r.Header.Get("X-API-Key") == "" {
		return coreerr.New(coreerr.KindInvalidInput, "missing_device_credentials")
	}
	return nil
}

// reasonOf extracts a machine-readable reason from a routed error for
// inclusion in a per-point result, without leaking wrapped internals.
func reasonOf(err error) string {
	if ce, ok := err.(*coreerr.Error); ok {
		return ce.Reason
	}
	return "internal_error"
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package storage implements the domain storage router: every call is
// dispatched to the legacy relational backend for
// domain="iot" points and to the generic (in-process) backend for
// everything else, never mixing the two for a single series.
package storage

import (
	"context"

	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/internal/repository"
	httptransport "github.com/signalgate/ingestgw/internal/transport/http"
	"github.com/signalgate/ingestgw/pkg/schema"
	"github.com/signalgate/ingestgw/pkg/tsstore"
)

const (
	BackendLegacy  = "legacy"
	BackendGeneric = "generic"
)

// Storage composes the two backends behind the pipeline/router/HTTP
// interfaces, picking one per DataPoint.Domain (I7: "the core refuses to
// mix").
type Storage struct {
	legacy  *repository.LegacyStore
	generic *genericStore
}

// New builds the storage router. legacy may be nil if the legacy backend
// is not configured (e.g. IoT ingestion disabled); calls for domain="iot"
// then fail with KindUnavailable instead of panicking.
func New(legacy *repository.LegacyStore, genericValues *tsstore.Store) *Storage {
	return &Storage{legacy: legacy, generic: newGenericStore(genericValues)}
}

func (s *Storage) backendFor(domain schema.Domain) (alertWarningBackend, error) {
	if domain == schema.DomainIoT {
		if s.legacy == nil {
			return nil, coreerr.New(coreerr.KindUnavailable, "legacy_backend_not_configured")
		}
		return s.legacy, nil
	}
	return s.generic, nil
}

// alertWarningBackend is the common surface both concrete backends satisfy
// (structurally — *repository.LegacyStore and *genericStore each implement
// every method below), letting Storage's public methods dispatch without
// repeating the domain switch in every one.
type alertWarningBackend interface {
	PersistPoint(ctx context.Context, point schema.DataPoint) error
	UpsertLatestValue(ctx context.Context, point schema.DataPoint) error
	ResolveActiveAlert(ctx context.Context, seriesID string, now float64) error
	CreateAlert(ctx context.Context, alert schema.Alert) error
	ResolveActiveWarning(ctx context.Context, seriesID string, now float64) error
	CreateWarningEvent(ctx context.Context, event schema.WarningEvent) error
}

// PersistPoint implements pipeline.AlertStore/WarningStore.
func (s *Storage) PersistPoint(ctx context.Context, point schema.DataPoint) error {
	backend, err := s.backendFor(point.Domain)
	if err != nil {
		return err
	}
	return backend.PersistPoint(ctx, point)
}

// UpsertLatestValue implements pipeline.LatestValueStore.
func (s *Storage) UpsertLatestValue(ctx context.Context, point schema.DataPoint) error {
	backend, err := s.backendFor(point.Domain)
	if err != nil {
		return err
	}
	return backend.UpsertLatestValue(ctx, point)
}

// domainOfSeries infers which backend a bare seriesID belongs to: legacy
// series are rendered as a plain integer, generic ones as
// "{domain}/{source_id}/{stream_id}" (schema.DeriveSeriesID) and so always
// contain a '/'.
func domainOfSeries(seriesID string) schema.Domain {
	for i := 0; i < len(seriesID); i++ {
		if seriesID[i] == '/' {
			return schema.DomainGeneric
		}
	}
	return schema.DomainIoT
}

func (s *Storage) backendForSeries(seriesID string) (alertWarningBackend, error) {
	return s.backendFor(domainOfSeries(seriesID))
}

// ResolveActiveAlert implements pipeline.AlertStore.
func (s *Storage) ResolveActiveAlert(ctx context.Context, seriesID string, now float64) error {
	backend, err := s.backendForSeries(seriesID)
	if err != nil {
		return err
	}
	return backend.ResolveActiveAlert(ctx, seriesID, now)
}

// CreateAlert implements pipeline.AlertStore.
func (s *Storage) CreateAlert(ctx context.Context, alert schema.Alert) error {
	backend, err := s.backendForSeries(alert.SeriesID)
	if err != nil {
		return err
	}
	return backend.CreateAlert(ctx, alert)
}

// ResolveActiveWarning implements pipeline.WarningStore.
func (s *Storage) ResolveActiveWarning(ctx context.Context, seriesID string, now float64) error {
	backend, err := s.backendForSeries(seriesID)
	if err != nil {
		return err
	}
	return backend.ResolveActiveWarning(ctx, seriesID, now)
}

// CreateWarningEvent implements pipeline.WarningStore.
func (s *Storage) CreateWarningEvent(ctx context.Context, event schema.WarningEvent) error {
	backend, err := s.backendForSeries(event.SeriesID)
	if err != nil {
		return err
	}
	return backend.CreateWarningEvent(ctx, event)
}

// HasActiveAlertOrWarning implements router.ActiveRecordChecker.
func (s *Storage) HasActiveAlertOrWarning(ctx context.Context, seriesID string) (bool, error) {
	if domainOfSeries(seriesID) == schema.DomainIoT {
		if s.legacy == nil {
			return false, coreerr.New(coreerr.KindUnavailable, "legacy_backend_not_configured")
		}
		return s.legacy.HasActiveAlertOrWarning(ctx, seriesID)
	}
	return s.generic.hasActive(seriesID), nil
}

// ResolveSensor implements internal/transport/http.DeviceResolver,
// delegating to the legacy backend (the only one that tracks
// device/sensor membership).
func (s *Storage) ResolveSensor(ctx context.Context, deviceUUID, sensorUUID string) (string, bool, error) {
	if s.legacy == nil {
		return "", false, coreerr.New(coreerr.KindUnavailable, "legacy_backend_not_configured")
	}
	return s.legacy.ResolveSensor(ctx, deviceUUID, sensorUUID)
}

// Backends implements internal/transport/http.HealthChecker.
func (s *Storage) Backends() []string {
	backends := []string{BackendGeneric}
	if s.legacy != nil {
		backends = append([]string{BackendLegacy}, backends...)
	}
	return backends
}

// Health implements internal/transport/http.HealthChecker.
func (s *Storage) Health(ctx context.Context, backend string) (httptransport.Health, error) {
	switch backend {
	case BackendLegacy:
		if s.legacy == nil {
			return httptransport.Health{Status: "down"}, coreerr.New(coreerr.KindUnavailable, "legacy_backend_not_configured")
		}
		if err := s.legacy.Health(ctx); err != nil {
			return httptransport.Health{Status: "down", Details: map[string]any{"error": err.Error()}}, nil
		}
		return httptransport.Health{Status: "ok"}, nil
	case BackendGeneric:
		if err := s.generic.health(); err != nil {
			return httptransport.Health{Status: "down", Details: map[string]any{"error": err.Error()}}, nil
		}
		return httptransport.Health{Status: "ok"}, nil
	default:
		return httptransport.Health{}, coreerr.New(coreerr.KindInvalidInput, "unknown_backend")
	}
}

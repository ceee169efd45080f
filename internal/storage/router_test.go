// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/signalgate/ingestgw/internal/repository"
	"github.com/signalgate/ingestgw/pkg/schema"
	"github.com/signalgate/ingestgw/pkg/tsstore"
)

const ddl = `
CREATE TABLE device (device_uuid TEXT PRIMARY KEY, created_at REAL NOT NULL);
CREATE TABLE sensor (id INTEGER PRIMARY KEY AUTOINCREMENT, device_uuid TEXT NOT NULL, sensor_uuid TEXT NOT NULL UNIQUE, created_at REAL NOT NULL);
CREATE TABLE reading (id INTEGER PRIMARY KEY AUTOINCREMENT, sensor_id INTEGER NOT NULL, value REAL NOT NULL, timestamp REAL NOT NULL, ingested_at REAL NOT NULL);
CREATE TABLE alert (id INTEGER PRIMARY KEY AUTOINCREMENT, series_id TEXT NOT NULL, severity TEXT NOT NULL, violated_threshold TEXT NOT NULL, triggering_value REAL NOT NULL, triggering_timestamp REAL NOT NULL, opened_at REAL NOT NULL, resolved_at REAL, resolved_reason TEXT, is_active INTEGER NOT NULL DEFAULT 1);
CREATE TABLE warning_event (id INTEGER PRIMARY KEY AUTOINCREMENT, series_id TEXT NOT NULL, event_type TEXT NOT NULL, previous_value REAL NOT NULL, current_value REAL NOT NULL, absolute_delta REAL NOT NULL, relative_delta REAL NOT NULL, opened_at REAL NOT NULL, resolved_at REAL, is_active INTEGER NOT NULL DEFAULT 1);
`

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite3: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	legacy := repository.NewLegacyStore(&repository.DBConnection{DB: db}, func() float64 { return 1000 })
	return New(legacy, tsstore.New(time.Hour))
}

func TestIoTPointsRouteToLegacyBackend(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	point := schema.DataPoint{SeriesID: "17", Value: 1, Timestamp: 1000, Domain: schema.DomainIoT}
	if err := s.PersistPoint(ctx, point); err != nil {
		t.Fatalf("PersistPoint: %v", err)
	}

	if _, _, ok := s.generic.values.LastValue("17"); ok {
		t.Error("iot point must not land in the generic backend")
	}
}

func TestGenericPointsRouteToGenericBackend(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	seriesID := schema.DeriveSeriesID(schema.DomainInfrastructure, "host-1", "cpu_temp")
	point := schema.DataPoint{SeriesID: seriesID, Value: 42, Timestamp: 1000, Domain: schema.DomainInfrastructure}
	if err := s.PersistPoint(ctx, point); err != nil {
		t.Fatalf("PersistPoint: %v", err)
	}

	_, value, ok := s.generic.values.LastValue(seriesID)
	if !ok || value != 42 {
		t.Errorf("expected generic point written to tsstore, got ok=%v value=%v", ok, value)
	}
}

func TestAlertLifecycleDispatchesBySeriesShape(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	genericSeries := schema.DeriveSeriesID(schema.DomainFinance, "acct-1", "balance")
	alert := schema.Alert{SeriesID: genericSeries, Severity: schema.AlertSeverityCritical, ViolatedThreshold: "critical", TriggeringValue: 1, TriggeringTimestamp: 1, OpenedAt: 1}
	if err := s.CreateAlert(ctx, alert); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	active, err := s.HasActiveAlertOrWarning(ctx, genericSeries)
	if err != nil || !active {
		t.Fatalf("HasActiveAlertOrWarning = %v, %v, want true", active, err)
	}

	legacyAlert := schema.Alert{SeriesID: "42", Severity: schema.AlertSeverityCritical, ViolatedThreshold: "critical", TriggeringValue: 1, TriggeringTimestamp: 1, OpenedAt: 1}
	if err := s.CreateAlert(ctx, legacyAlert); err != nil {
		t.Fatalf("CreateAlert (legacy): %v", err)
	}
	active, err = s.HasActiveAlertOrWarning(ctx, "42")
	if err != nil || !active {
		t.Fatalf("HasActiveAlertOrWarning (legacy) = %v, %v, want true", active, err)
	}
}

func TestLegacyCallsFailClosedWhenNotConfigured(t *testing.T) {
	s := New(nil, tsstore.New(time.Hour))
	_, _, err := s.ResolveSensor(context.Background(), "dev", "sens")
	if err == nil {
		t.Fatal("expected an error when the legacy backend is not configured")
	}
	if err := s.PersistPoint(context.Background(), schema.DataPoint{SeriesID: "1", Domain: schema.DomainIoT}); err == nil {
		t.Fatal("expected an error persisting an iot point with no legacy backend")
	}
}

func TestBackendsListsConfiguredBackendsOnly(t *testing.T) {
	s := New(nil, tsstore.New(time.Hour))
	backends := s.Backends()
	if len(backends) != 1 || backends[0] != BackendGeneric {
		t.Errorf("Backends() = %v, want only [generic]", backends)
	}
}

func TestHealthReportsBackendsIndependently(t *testing.T) {
	s := newTestStorage(t)
	h, err := s.Health(context.Background(), BackendLegacy)
	if err != nil || h.Status != "ok" {
		t.Errorf("legacy health = %+v, %v", h, err)
	}
	h, err = s.Health(context.Background(), BackendGeneric)
	if err != nil || h.Status != "ok" {
		t.Errorf("generic health = %+v, %v", h, err)
	}
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

// sensorCacheTTL is the cached-lookup lifetime for
// (device_uuid, sensor_uuid) -> sensor_id resolution.
const sensorCacheTTL = 300 * time.Second

type sensorCacheEntry struct {
	sensorID string
	expires  time.Time
}

// LegacyStore is the legacy relational backend: the sole storage target
// for domain="iot" points, and the system of record
// for sensor/device membership used by POST /ingest/packets.
type LegacyStore struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType

	cacheMu sync.RWMutex
	cache   map[string]sensorCacheEntry // "device_uuid/sensor_uuid" -> entry

	nowFn func() float64
}

// NewLegacyStore wraps an already-migrated database connection.
func NewLegacyStore(conn *DBConnection, nowFn func() float64) *LegacyStore {
	return &LegacyStore{
		db:      conn.DB,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		cache:   make(map[string]sensorCacheEntry),
		nowFn:   nowFn,
	}
}

func (s *LegacyStore) now() float64 {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// ResolveSensor implements internal/transport/http.DeviceResolver: it
// validates that sensorUUID belongs to deviceUUID and returns the
// sensor's numeric id (rendered as a string, matching DataPoint.SeriesID
// for legacy points), caching hits for sensorCacheTTL.
func (s *LegacyStore) ResolveSensor(ctx context.Context, deviceUUID, sensorUUID string) (string, bool, error) {
	key := deviceUUID + "/" + sensorUUID
	if id, ok := s.cacheGet(key); ok {
		return id, true, nil
	}

	query, args, err := s.builder.
		Select("id").From("sensor").
		Where(sq.Eq{"device_uuid": deviceUUID, "sensor_uuid": sensorUUID}).
		ToSql()
	if err != nil {
		return "", false, coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, coreerr.Wrap(coreerr.KindUnavailable, "sensor_lookup_failed", err)
	}

	sensorID := strconv.FormatInt(id, 10)
	s.cachePut(key, sensorID)
	return sensorID, true, nil
}

func (s *LegacyStore) cacheGet(key string) (string, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || time.Now().After(entry.expires) {
		return "", false
	}
	return entry.sensorID, true
}

func (s *LegacyStore) cachePut(key, sensorID string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache[key] = sensorCacheEntry{sensorID: sensorID, expires: time.Now().Add(sensorCacheTTL)}
}

// PersistPoint implements pipeline.AlertStore/WarningStore's PersistPoint
// (via the storage router, §4.C13): inserts one reading row keyed by the
// integer sensor_id carried as SeriesID.
func (s *LegacyStore) PersistPoint(ctx context.Context, point schema.DataPoint) error {
	sensorID, err := strconv.ParseInt(point.SeriesID, 10, 64)
	if err != nil {
		return coreerr.Wrap(coreerr.KindInvalidInput, "non_numeric_legacy_series_id", err)
	}

	query, args, err := s.builder.
		Insert("reading").
		Columns("sensor_id", "value", "timestamp", "ingested_at").
		Values(sensorID, point.Value, point.Timestamp, point.IngestedAt).
		ToSql()
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return coreerr.Wrap(coreerr.KindUnavailable, "reading_insert_failed", err)
	}
	return nil
}

// UpsertLatestValue satisfies pipeline.LatestValueStore for legacy/IoT
// NORMAL readings by inserting the reading row through PersistPoint (I7:
// no separate "latest value" table for a backend that already keeps every
// row).
func (s *LegacyStore) UpsertLatestValue(ctx context.Context, point schema.DataPoint) error {
	return s.PersistPoint(ctx, point)
}

// ResolveActiveAlert marks any still-open alert for seriesID resolved
// (superseded by a new one about to be created).
func (s *LegacyStore) ResolveActiveAlert(ctx context.Context, seriesID string, now float64) error {
	query, args, err := s.builder.
		Update("alert").
		Set("is_active", false).
		Set("resolved_at", now).
		Set("resolved_reason", "superseded").
		Where(sq.Eq{"series_id": seriesID, "is_active": true}).
		ToSql()
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return coreerr.Wrap(coreerr.KindUnavailable, "alert_resolve_failed", err)
	}
	return nil
}

// CreateAlert inserts a new active alert row.
func (s *LegacyStore) CreateAlert(ctx context.Context, alert schema.Alert) error {
	query, args, err := s.builder.
		Insert("alert").
		Columns("series_id", "severity", "violated_threshold", "triggering_value",
			"triggering_timestamp", "opened_at", "is_active").
		Values(alert.SeriesID, alert.Severity, alert.ViolatedThreshold, alert.TriggeringValue,
			alert.TriggeringTimestamp, alert.OpenedAt, true).
		ToSql()
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return coreerr.Wrap(coreerr.KindUnavailable, "alert_insert_failed", err)
	}
	return nil
}

// ResolveActiveWarning marks any still-open warning event for seriesID
// resolved.
func (s *LegacyStore) ResolveActiveWarning(ctx context.Context, seriesID string, now float64) error {
	query, args, err := s.builder.
		Update("warning_event").
		Set("is_active", false).
		Set("resolved_at", now).
		Where(sq.Eq{"series_id": seriesID, "is_active": true}).
		ToSql()
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return coreerr.Wrap(coreerr.KindUnavailable, "warning_resolve_failed", err)
	}
	return nil
}

// CreateWarningEvent inserts a new active warning_event row.
func (s *LegacyStore) CreateWarningEvent(ctx context.Context, event schema.WarningEvent) error {
	query, args, err := s.builder.
		Insert("warning_event").
		Columns("series_id", "event_type", "previous_value", "current_value",
			"absolute_delta", "relative_delta", "opened_at", "is_active").
		Values(event.SeriesID, event.EventType, event.PreviousValue, event.CurrentValue,
			event.AbsoluteDelta, event.RelativeDelta, event.OpenedAt, true).
		ToSql()
	if err != nil {
		return coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return coreerr.Wrap(coreerr.KindUnavailable, "warning_insert_failed", err)
	}
	return nil
}

// HasActiveAlertOrWarning implements router.ActiveRecordChecker for legacy
// series.
func (s *LegacyStore) HasActiveAlertOrWarning(ctx context.Context, seriesID string) (bool, error) {
	var count int
	query, args, err := s.builder.
		Select("count(*)").From("alert").
		Where(sq.Eq{"series_id": seriesID, "is_active": true}).
		ToSql()
	if err != nil {
		return false, coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, coreerr.Wrap(coreerr.KindUnavailable, "alert_count_failed", err)
	}
	if count > 0 {
		return true, nil
	}

	query, args, err = s.builder.
		Select("count(*)").From("warning_event").
		Where(sq.Eq{"series_id": seriesID, "is_active": true}).
		ToSql()
	if err != nil {
		return false, coreerr.Wrap(coreerr.KindInternal, "query_build_failed", err)
	}
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, coreerr.Wrap(coreerr.KindUnavailable, "warning_count_failed", err)
	}
	return count > 0, nil
}

// Health reports the legacy backend's reachability for GET /health/legacy.
func (s *LegacyStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		log.Warnf("legacy store: health ping failed: %v", err)
		return coreerr.Wrap(coreerr.KindUnavailable, "legacy_db_unreachable", err)
	}
	return nil
}

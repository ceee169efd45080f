// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package pipeline implements the three mutually-exclusive sub-pipelines:
// alert, warning, and prediction. Each defensively rejects any
// UnifiedReading it does not own, so a router wiring mistake fails
// loudly instead of silently crossing classification classes.
package pipeline

import (
	"context"

	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/schema"
)

// AlertStore is the persistence surface the alert sub-pipeline needs.
type AlertStore interface {
	PersistPoint(ctx context.Context, point schema.DataPoint) error
	ResolveActiveAlert(ctx context.Context, seriesID string, now float64) error
	CreateAlert(ctx context.Context, alert schema.Alert) error
}

// Notifier emits an alert notification record. Optional: a nil Notifier
// simply skips notification.
type Notifier interface {
	NotifyAlert(ctx context.Context, alert schema.Alert) error
}

// AlertPipeline handles CRITICAL_VIOLATION/physical_range readings only.
type AlertPipeline struct {
	store    AlertStore
	notifier Notifier
}

func NewAlertPipeline(store AlertStore, notifier Notifier) *AlertPipeline {
	return &AlertPipeline{store: store, notifier: notifier}
}

// Outcome summarizes what a sub-pipeline actually did with a reading, for
// the router to fold into the state-machine transition (C8) and metrics.
type Outcome struct {
	Persisted bool
	Published bool
}

// Ingest persists the triggering point, resolves any pre-existing active
// alert (superseded), opens a new non-downgradable critical alert, and
// emits a notification. It never publishes to the prediction bus (I5).
func (p *AlertPipeline) Ingest(ctx context.Context, reading schema.UnifiedReading, now float64) (Outcome, error) {
	if reading.Classification.Kind != schema.ClassCriticalViolation || reading.Classification.Reason != schema.ReasonPhysicalRange {
		return Outcome{}, coreerr.New(coreerr.KindInternal, "alert_pipeline_rejected_reading")
	}

	point := reading.Point
	if err := p.store.PersistPoint(ctx, point); err != nil {
		return Outcome{}, err
	}

	if err := p.store.ResolveActiveAlert(ctx, point.SeriesID, now); err != nil {
		return Outcome{Persisted: true}, err
	}

	alert := schema.Alert{
		SeriesID:            point.SeriesID,
		Severity:            schema.AlertSeverityCritical,
		ViolatedThreshold:   "critical",
		TriggeringValue:     point.Value,
		TriggeringTimestamp: point.Timestamp,
		OpenedAt:            now,
		IsActive:            true,
	}
	if err := p.store.CreateAlert(ctx, alert); err != nil {
		return Outcome{Persisted: true}, err
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyAlert(ctx, alert); err != nil {
			// Notification failure never fails the pipeline: the alert
			// itself is already durably persisted.
			return Outcome{Persisted: true}, nil
		}
	}

	return Outcome{Persisted: true}, nil
}

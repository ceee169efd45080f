// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"

	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/schema"
)

// WarningStore is the persistence surface the warning sub-pipeline needs.
type WarningStore interface {
	PersistPoint(ctx context.Context, point schema.DataPoint) error
	ResolveActiveWarning(ctx context.Context, seriesID string, now float64) error
	CreateWarningEvent(ctx context.Context, event schema.WarningEvent) error
}

// WarningPipeline handles ANOMALY_DETECTED/delta_spike and
// WARNING_VIOLATION/{operational_range,warning_zone} readings.
type WarningPipeline struct {
	store WarningStore
}

func NewWarningPipeline(store WarningStore) *WarningPipeline {
	return &WarningPipeline{store: store}
}

func (p *WarningPipeline) accepts(c schema.Classification) bool {
	switch {
	case c.Kind == schema.ClassAnomalyDetected && c.Reason == schema.ReasonDeltaSpike:
		return true
	case c.Kind == schema.ClassWarningViolation && (c.Reason == schema.ReasonOperationalRange || c.Reason == schema.ReasonWarningZone):
		return true
	default:
		return false
	}
}

// Ingest persists the triggering point, resolves any pre-existing active
// warning for the series, and opens a new warning event. It never
// publishes to the prediction bus (I5).
func (p *WarningPipeline) Ingest(ctx context.Context, reading schema.UnifiedReading, now float64) (Outcome, error) {
	if !p.accepts(reading.Classification) {
		return Outcome{}, coreerr.New(coreerr.KindInternal, "warning_pipeline_rejected_reading")
	}

	point := reading.Point
	if err := p.store.PersistPoint(ctx, point); err != nil {
		return Outcome{}, err
	}

	if err := p.store.ResolveActiveWarning(ctx, point.SeriesID, now); err != nil {
		return Outcome{Persisted: true}, err
	}

	eventType := schema.EventOperationalDeviation
	if reading.Classification.Kind == schema.ClassAnomalyDetected {
		eventType = schema.EventDeltaSpike
	}

	event := schema.WarningEvent{
		SeriesID:     point.SeriesID,
		EventType:    eventType,
		CurrentValue: point.Value,
		OpenedAt:     now,
		IsActive:     true,
	}
	if abs, ok := reading.Classification.Metadata["absolute_delta"].(float64); ok {
		event.AbsoluteDelta = abs
	}
	if rel, ok := reading.Classification.Metadata["relative_delta"].(float64); ok {
		event.RelativeDelta = rel
	}
	event.PreviousValue = reading.State.LastValue

	if err := p.store.CreateWarningEvent(ctx, event); err != nil {
		return Outcome{Persisted: true}, err
	}

	return Outcome{Persisted: true}, nil
}

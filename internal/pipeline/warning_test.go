// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package pipeline

import (
	"context"
	"testing"

	"github.com/signalgate/ingestgw/pkg/schema"
)

type fakeWarningStore struct {
	persisted      []schema.DataPoint
	resolvedSeries []string
	created        []schema.WarningEvent
}

func (f *fakeWarningStore) PersistPoint(ctx context.Context, point schema.DataPoint) error {
	f.persisted = append(f.persisted, point)
	return nil
}

func (f *fakeWarningStore) ResolveActiveWarning(ctx context.Context, seriesID string, now float64) error {
	f.resolvedSeries = append(f.resolvedSeries, seriesID)
	return nil
}

func (f *fakeWarningStore) CreateWarningEvent(ctx context.Context, event schema.WarningEvent) error {
	f.created = append(f.created, event)
	return nil
}

func TestWarningPipelineRejectsWrongClass(t *testing.T) {
	store := &fakeWarningStore{}
	p := NewWarningPipeline(store)
	reading := schema.UnifiedReading{Classification: schema.Classification{Kind: schema.ClassCriticalViolation, Reason: schema.ReasonPhysicalRange}}
	if _, err := p.Ingest(context.Background(), reading, 100); err == nil {
		t.Fatal("expected rejection for a critical reading")
	}
}

func TestWarningPipelineAcceptsDeltaSpike(t *testing.T) {
	store := &fakeWarningStore{}
	p := NewWarningPipeline(store)
	reading := schema.UnifiedReading{
		Point:          schema.DataPoint{SeriesID: "s1", Value: 50, Timestamp: 100},
		Classification: schema.Classification{Kind: schema.ClassAnomalyDetected, Reason: schema.ReasonDeltaSpike, Metadata: map[string]any{"absolute_delta": 40.0}},
		State:          schema.OperationalState{LastValue: 10},
	}
	outcome, err := p.Ingest(context.Background(), reading, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Persisted || outcome.Published {
		t.Errorf("outcome = %+v, want Persisted=true Published=false", outcome)
	}
	if len(store.created) != 1 || store.created[0].EventType != schema.EventDeltaSpike {
		t.Errorf("expected a DELTA_SPIKE event, got %+v", store.created)
	}
	if store.created[0].AbsoluteDelta != 40 {
		t.Errorf("AbsoluteDelta = %v, want 40", store.created[0].AbsoluteDelta)
	}
}

func TestWarningPipelineAcceptsOperationalRangeViolation(t *testing.T) {
	store := &fakeWarningStore{}
	p := NewWarningPipeline(store)
	reading := schema.UnifiedReading{
		Point:          schema.DataPoint{SeriesID: "s1", Value: 5},
		Classification: schema.Classification{Kind: schema.ClassWarningViolation, Reason: schema.ReasonOperationalRange},
	}
	_, err := p.Ingest(context.Background(), reading, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created[0].EventType != schema.EventOperationalDeviation {
		t.Errorf("EventType = %s, want OPERATIONAL_DEVIATION", store.created[0].EventType)
	}
}

func TestWarningPipelineNeverPublishes(t *testing.T) {
	store := &fakeWarningStore{}
	p := NewWarningPipeline(store)
	reading := schema.UnifiedReading{
		Point:          schema.DataPoint{SeriesID: "s1"},
		Classification: schema.Classification{Kind: schema.ClassWarningViolation, Reason: schema.ReasonWarningZone},
	}
	outcome, _ := p.Ingest(context.Background(), reading, 100)
	if outcome.Published {
		t.Error("warning pipeline must never publish to the prediction bus")
	}
}

func TestWarningPipelineResolvesPreExistingWarning(t *testing.T) {
	store := &fakeWarningStore{}
	p := NewWarningPipeline(store)
	reading := schema.UnifiedReading{
		Point:          schema.DataPoint{SeriesID: "s9"},
		Classification: schema.Classification{Kind: schema.ClassWarningViolation, Reason: schema.ReasonWarningZone},
	}
	p.Ingest(context.Background(), reading, 100)
	if len(store.resolvedSeries) != 1 || store.resolvedSeries[0] != "s9" {
		t.Error("expected resolution attempt scoped to series s9")
	}
}

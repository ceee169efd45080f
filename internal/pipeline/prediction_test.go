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

type fakeLatestValueStore struct {
	upserted []schema.DataPoint
}

func (f *fakeLatestValueStore) UpsertLatestValue(ctx context.Context, point schema.DataPoint) error {
	f.upserted = append(f.upserted, point)
	return nil
}

type fakePredictionPublisher struct {
	published []schema.DataPoint
}

func (f *fakePredictionPublisher) Publish(point schema.DataPoint) {
	f.published = append(f.published, point)
}

func normalReading(state schema.State, predictionEnabled bool) schema.UnifiedReading {
	return schema.UnifiedReading{
		Point:          schema.DataPoint{SeriesID: "s1", Value: 1, Timestamp: 100},
		Classification: schema.Classification{Kind: schema.ClassNormal},
		State:          schema.OperationalState{State: state},
		Config:         schema.StreamConfig{PredictionEnabled: predictionEnabled},
	}
}

func TestPredictionPipelineRejectsNonNormal(t *testing.T) {
	store := &fakeLatestValueStore{}
	pub := &fakePredictionPublisher{}
	p := NewPredictionPipeline(store, pub)
	reading := schema.UnifiedReading{Classification: schema.Classification{Kind: schema.ClassWarningViolation}}
	if _, err := p.Ingest(context.Background(), reading, 100); err == nil {
		t.Fatal("expected rejection for a non-NORMAL reading")
	}
}

func TestPredictionPipelineUpsertsAndPublishes(t *testing.T) {
	store := &fakeLatestValueStore{}
	pub := &fakePredictionPublisher{}
	p := NewPredictionPipeline(store, pub)
	outcome, err := p.Ingest(context.Background(), normalReading(schema.StateNormal, true), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Persisted || !outcome.Published {
		t.Errorf("outcome = %+v, want both true", outcome)
	}
	if len(store.upserted) != 1 || len(pub.published) != 1 {
		t.Errorf("expected one upsert and one publish, got %d/%d", len(store.upserted), len(pub.published))
	}
}

func TestPredictionPipelineSuppressesDuringWarmup(t *testing.T) {
	store := &fakeLatestValueStore{}
	pub := &fakePredictionPublisher{}
	p := NewPredictionPipeline(store, pub)
	outcome, err := p.Ingest(context.Background(), normalReading(schema.StateInitializing, true), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Published || len(pub.published) != 0 {
		t.Error("expected no publish while series is still INITIALIZING")
	}
	if len(store.upserted) != 1 {
		t.Error("expected the latest value to still be upserted during warm-up")
	}
}

func TestPredictionPipelineSuppressesWhenPredictionDisabled(t *testing.T) {
	store := &fakeLatestValueStore{}
	pub := &fakePredictionPublisher{}
	p := NewPredictionPipeline(store, pub)
	outcome, err := p.Ingest(context.Background(), normalReading(schema.StateNormal, false), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Published || len(pub.published) != 0 {
		t.Error("expected no publish when prediction_enabled is false")
	}
}

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

// LatestValueStore upserts the single "latest value" record a series needs
// for prediction consumers; it deliberately has no history.
type LatestValueStore interface {
	UpsertLatestValue(ctx context.Context, point schema.DataPoint) error
}

// Publisher is the prediction-bus surface (satisfied by *internal/predictbus.Bus).
type Publisher interface {
	Publish(point schema.DataPoint)
}

// PredictionPipeline handles NORMAL readings only (including warmup-suppressed
// ones). It upserts the latest value and, once a series has left warm-up and
// the stream config has prediction enabled, publishes to the prediction bus.
type PredictionPipeline struct {
	store     LatestValueStore
	publisher Publisher
}

func NewPredictionPipeline(store LatestValueStore, publisher Publisher) *PredictionPipeline {
	return &PredictionPipeline{store: store, publisher: publisher}
}

// Ingest upserts the latest value unconditionally, then publishes to the
// prediction bus only when the series is past INITIALIZING and prediction is
// enabled for the stream (I5: never publishes during warm-up).
func (p *PredictionPipeline) Ingest(ctx context.Context, reading schema.UnifiedReading, now float64) (Outcome, error) {
	if reading.Classification.Kind != schema.ClassNormal {
		return Outcome{}, coreerr.New(coreerr.KindInternal, "prediction_pipeline_rejected_reading")
	}

	if err := p.store.UpsertLatestValue(ctx, reading.Point); err != nil {
		return Outcome{}, err
	}

	if reading.State.State == schema.StateInitializing || !reading.Config.PredictionEnabled {
		return Outcome{Persisted: true}, nil
	}

	if p.publisher == nil {
		return Outcome{Persisted: true}, nil
	}
	p.publisher.Publish(reading.Point)

	return Outcome{Persisted: true, Published: true}, nil
}

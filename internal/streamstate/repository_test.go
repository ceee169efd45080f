// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package streamstate

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/signalgate/ingestgw/pkg/schema"
)

func TestGetConfigFallsBackToDomainDefault(t *testing.T) {
	var loads int32
	r := New(0, time.Minute, func(seriesID string, domain schema.Domain) (schema.StreamConfig, bool, error) {
		atomic.AddInt32(&loads, 1)
		return schema.StreamConfig{}, false, nil
	}, func(schema.OperationalState) error { return nil })

	cfg := r.GetConfig("s1", schema.DomainInfrastructure)
	if !cfg.AlertingEnabled || !cfg.PredictionEnabled {
		t.Errorf("expected domain-default config to enable alerting and prediction, got %+v", cfg)
	}
	if atomic.LoadInt32(&loads) != 1 {
		t.Errorf("expected exactly one loader call, got %d", loads)
	}
}

func TestGetConfigCachesAfterFirstLoad(t *testing.T) {
	var loads int32
	want := schema.StreamConfig{SeriesID: "s1", Domain: schema.DomainGeneric, DisplayName: "temp"}
	r := New(0, time.Minute, func(seriesID string, domain schema.Domain) (schema.StreamConfig, bool, error) {
		atomic.AddInt32(&loads, 1)
		return want, true, nil
	}, func(schema.OperationalState) error { return nil })

	r.GetConfig("s1", schema.DomainGeneric)
	got := r.GetConfig("s1", schema.DomainGeneric)
	if got.DisplayName != "temp" {
		t.Errorf("got %+v, want DisplayName=temp", got)
	}
	if atomic.LoadInt32(&loads) != 1 {
		t.Errorf("expected one loader call across two gets, got %d", loads)
	}
}

func TestGetStateStartsInitializing(t *testing.T) {
	r := New(0, time.Minute, func(string, schema.Domain) (schema.StreamConfig, bool, error) {
		return schema.StreamConfig{}, false, nil
	}, func(schema.OperationalState) error { return nil })

	st := r.GetState("s1", 10, 1000)
	if st.State != schema.StateInitializing {
		t.Errorf("State = %s, want INITIALIZING", st.State)
	}
	if st.ValidReadingsCount != 0 {
		t.Errorf("ValidReadingsCount = %d, want 0", st.ValidReadingsCount)
	}
}

func TestPutStateIsWriteThrough(t *testing.T) {
	var persisted schema.OperationalState
	r := New(0, time.Minute, func(string, schema.Domain) (schema.StreamConfig, bool, error) {
		return schema.StreamConfig{}, false, nil
	}, func(s schema.OperationalState) error {
		persisted = s
		return nil
	})

	s := r.GetState("s1", 10, 1000)
	s.State = schema.StateNormal
	s.ValidReadingsCount = 10
	if err := r.PutState(s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if persisted.State != schema.StateNormal {
		t.Errorf("expected persist to be called with NORMAL state")
	}
	got := r.GetState("s1", 10, 1000)
	if got.State != schema.StateNormal || got.ValidReadingsCount != 10 {
		t.Errorf("expected cache to reflect the persisted state, got %+v", got)
	}
}

func TestPutStateDoesNotUpdateCacheOnPersistFailure(t *testing.T) {
	persistErr := &sentinelError{"persist failed"}
	r := New(0, time.Minute, func(string, schema.Domain) (schema.StreamConfig, bool, error) {
		return schema.StreamConfig{}, false, nil
	}, func(schema.OperationalState) error { return persistErr })

	s := r.GetState("s1", 10, 1000)
	s.State = schema.StateAlert
	if err := r.PutState(s); err != persistErr {
		t.Fatalf("expected persist error to propagate, got %v", err)
	}

	got := r.GetState("s1", 10, 1000)
	if got.State != schema.StateInitializing {
		t.Errorf("expected cache to be unaffected by failed persist, got %s", got.State)
	}
}

type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }

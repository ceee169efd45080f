// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package streamstate implements the constraint & state repository: two
// read-through, LRU-evicted, TTL-expiring caches keyed by series_id,
// holding StreamConfig and OperationalState. Concurrent reads of
// the same key coalesce into one underlying load via pkg/lrucache's
// condition-variable-backed Get.
package streamstate

import (
	"sync"
	"time"

	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/lrucache"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const (
	DefaultTTL              = 300 * time.Second
	DefaultCapacityBytes    = 10_000 * entrySizeEstimate
	entrySizeEstimate       = 256 // rough per-entry accounting unit
	DefaultMinReadingsNorm  = 10
)

// ConfigLoader fetches a series' StreamConfig from durable storage. ok is
// false when no config has ever been registered for the series.
type ConfigLoader func(seriesID string, domain schema.Domain) (cfg schema.StreamConfig, ok bool, err error)

// StatePersister durably persists an OperationalState change. Called before
// the write-through cache update so reads observe writes monotonically.
type StatePersister func(state schema.OperationalState) error

// Repository is the constraint & state repository.
type Repository struct {
	configCache *lrucache.Cache
	stateCache  *lrucache.Cache
	ttl         time.Duration

	loadConfig ConfigLoader
	persist    StatePersister

	warnedMu sync.Mutex
	warned   map[string]bool
}

// New builds a Repository. ttl <= 0 uses DefaultTTL; capacityBytes <= 0
// uses DefaultCapacityBytes (roughly 10,000 entries at entrySizeEstimate
// bytes each).
func New(capacityBytes int, ttl time.Duration, loadConfig ConfigLoader, persist StatePersister) *Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacityBytes <= 0 {
		capacityBytes = DefaultCapacityBytes
	}
	return &Repository{
		configCache: lrucache.New(capacityBytes),
		stateCache:  lrucache.New(capacityBytes),
		ttl:         ttl,
		loadConfig:  loadConfig,
		persist:     persist,
		warned:      make(map[string]bool),
	}
}

// GetConfig returns the series' StreamConfig, read-through loading it via
// ConfigLoader on a cache miss. When the loader reports no config exists,
// the domain default is applied and a once-per-series warning is logged.
func (r *Repository) GetConfig(seriesID string, domain schema.Domain) schema.StreamConfig {
	v := r.configCache.Get(seriesID, func() (interface{}, time.Duration, int) {
		cfg, ok, err := r.loadConfig(seriesID, domain)
		if err != nil {
			log.Warnf("streamstate: failed to load config for %s: %v", seriesID, err)
			ok = false
		}
		if !ok {
			r.warnMissingConfigOnce(seriesID)
			cfg = schema.DefaultStreamConfig(seriesID, domain)
		}
		return cfg, r.ttl, entrySizeEstimate
	})
	return v.(schema.StreamConfig)
}

func (r *Repository) warnMissingConfigOnce(seriesID string) {
	r.warnedMu.Lock()
	defer r.warnedMu.Unlock()
	if r.warned[seriesID] {
		return
	}
	r.warned[seriesID] = true
	log.Warnf("streamstate: no StreamConfig registered for series %s, applying domain defaults", seriesID)
}

// PutConfig directly seeds or overwrites a series' cached config, e.g. when
// an operator registers a StreamConfig via the management surface.
func (r *Repository) PutConfig(cfg schema.StreamConfig) {
	r.configCache.Put(cfg.SeriesID, cfg, entrySizeEstimate, r.ttl)
}

// GetState returns the series' OperationalState, read-through loading the
// INITIALIZING zero state if nothing has been seen before (no external
// loader is needed here: an absent state IS the well-defined starting
// state, unlike config which has real domain defaults to pick between).
func (r *Repository) GetState(seriesID string, minReadingsForNormal int, now float64) schema.OperationalState {
	v := r.stateCache.Get(seriesID, func() (interface{}, time.Duration, int) {
		return schema.NewOperationalState(seriesID, minReadingsForNormal, now), r.ttl, entrySizeEstimate
	})
	return v.(schema.OperationalState)
}

// SeriesIDs lists every series currently present in the state cache. Used
// by the stale-timeout sweeper; a series evicted by TTL/LRU before its
// next point arrives simply won't be swept until it resurfaces, which is
// harmless since GetState would re-INITIALIZE it anyway.
func (r *Repository) SeriesIDs() []string {
	var ids []string
	r.stateCache.Keys(func(key string, _ interface{}) {
		ids = append(ids, key)
	})
	return ids
}

// PutState persists state via StatePersister and, only on success, updates
// the cache — write-through, so a failed persist never makes a reader
// observe a state transition that didn't actually happen.
func (r *Repository) PutState(state schema.OperationalState) error {
	if err := r.persist(state); err != nil {
		return err
	}
	r.stateCache.Put(state.SeriesID, state, entrySizeEstimate, r.ttl)
	return nil
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsstore

import (
	"sync"
	"time"

	"github.com/signalgate/ingestgw/pkg/log"
)

const stripeCount = 1024

// Store is the generic (non-IoT) time-series backend. Series are addressed
// by their full series_id string ("{domain}/{source_id}/{stream_id}");
// legacy IoT series never reach it because the domain storage
// router filters them out before calling Write.
type Store struct {
	stripes [stripeCount]struct {
		mu   sync.RWMutex
		data map[string]*series
	}
	retention time.Duration
}

// New creates an empty store. retention is how long a point is kept before
// becoming eligible for eviction by Sweep.
func New(retention time.Duration) *Store {
	s := &Store{retention: retention}
	for i := range s.stripes {
		s.stripes[i].data = make(map[string]*series)
	}
	return s
}

func stripeFor(seriesID string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(seriesID); i++ {
		h ^= uint32(seriesID[i])
		h *= 16777619
	}
	return h % stripeCount
}

func (st *Store) seriesFor(seriesID string, create bool) *series {
	idx := stripeFor(seriesID)
	stripe := &st.stripes[idx]

	stripe.mu.RLock()
	s, ok := stripe.data[seriesID]
	stripe.mu.RUnlock()
	if ok || !create {
		return s
	}

	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	if s, ok = stripe.data[seriesID]; ok {
		return s
	}
	s = newSeriesBuffer()
	stripe.data[seriesID] = s
	return s
}

// Write records value at the given unix-seconds timestamp for seriesID.
func (st *Store) Write(seriesID string, ts int64, value float64) error {
	s := st.seriesFor(seriesID, true)
	s.write(ts, value)
	return nil
}

// LastValue returns the most recently written (timestamp, value) for a series.
func (st *Store) LastValue(seriesID string) (ts int64, value float64, ok bool) {
	s := st.seriesFor(seriesID, false)
	if s == nil {
		return 0, 0, false
	}
	p, found := s.last()
	if !found {
		return 0, 0, false
	}
	return p.ts, p.val, true
}

// Snapshot returns every point currently buffered for a series, oldest first.
func (st *Store) Snapshot(seriesID string) []point {
	s := st.seriesFor(seriesID, false)
	if s == nil {
		return nil
	}
	return s.snapshot()
}

// SeriesIDs lists every series currently known to the store. Used by the
// checkpoint worker and the retention sweeper.
func (st *Store) SeriesIDs() []string {
	var out []string
	for i := range st.stripes {
		stripe := &st.stripes[i]
		stripe.mu.RLock()
		for id := range stripe.data {
			out = append(out, id)
		}
		stripe.mu.RUnlock()
	}
	return out
}

// Sweep drops chunks entirely older than the configured retention, relative
// to now. Intended to run on a schedule alongside the checkpoint worker.
func (st *Store) Sweep(now time.Time) (freedChunks int) {
	cutoff := now.Add(-st.retention).Unix()
	for _, id := range st.SeriesIDs() {
		s := st.seriesFor(id, false)
		if s == nil {
			continue
		}
		n := s.freeOlderThan(cutoff)
		if n > 0 {
			freedChunks += n
			log.Debugf("tsstore: freed %d chunk(s) for series %s", n, id)
		}
	}
	return freedChunks
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package statemachine

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const DefaultSweepInterval = 60 * time.Second

// StateStore is the subset of the streamstate repository the sweeper needs:
// enumerate known series and write back a transitioned state.
type StateStore interface {
	SeriesIDs() []string
	GetState(seriesID string, minReadingsForNormal int, now float64) schema.OperationalState
	PutState(state schema.OperationalState) error
}

// Sweeper periodically walks every known series and ages out ones that
// haven't produced a point within the configured stale timeout.
type Sweeper struct {
	store               StateStore
	staleTimeoutSeconds float64
	nowFn               func() float64
	scheduler           gocron.Scheduler
}

// NewSweeper builds a sweeper running every interval (DefaultSweepInterval
// if <= 0), using staleTimeoutSeconds (DefaultStaleTimeoutSeconds if <= 0).
func NewSweeper(store StateStore, interval time.Duration, staleTimeoutSeconds float64, nowFn func() float64) (*Sweeper, error) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sw := &Sweeper{store: store, staleTimeoutSeconds: staleTimeoutSeconds, nowFn: nowFn, scheduler: s}

	_, err = s.NewJob(gocron.DurationJob(interval), gocron.NewTask(sw.runOnce))
	if err != nil {
		return nil, err
	}
	return sw, nil
}

func (sw *Sweeper) Start() { sw.scheduler.Start() }

func (sw *Sweeper) Stop() error { return sw.scheduler.Shutdown() }

func (sw *Sweeper) runOnce() {
	now := sw.nowFn()
	staled := 0
	for _, seriesID := range sw.store.SeriesIDs() {
		state := sw.store.GetState(seriesID, schema.DefaultMinReadingsForNormal, now)
		next, changed := SweepStale(state, sw.staleTimeoutSeconds, now)
		if !changed {
			continue
		}
		if err := sw.store.PutState(next); err != nil {
			log.Warnf("statemachine: failed to persist STALE transition for %s: %v", seriesID, err)
			continue
		}
		staled++
	}
	if staled > 0 {
		log.Infof("statemachine: swept %d series into STALE", staled)
	}
}

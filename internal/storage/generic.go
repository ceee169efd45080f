// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package storage

import (
	"context"
	"sync"

	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/schema"
	"github.com/signalgate/ingestgw/pkg/tsstore"
)

const genericStripeCount = 256

// genericStore is the non-IoT half of the domain storage router: raw
// values land in pkg/tsstore, while the much rarer alert/warning
// lifecycle is tracked here, striped the same way internal/predictbus
// stripes its per-series throttle state.
type genericStore struct {
	values *tsstore.Store

	stripes [genericStripeCount]struct {
		mu     sync.Mutex
		alerts map[string]schema.Alert
		events map[string]schema.WarningEvent
	}
}

func newGenericStore(values *tsstore.Store) *genericStore {
	g := &genericStore{values: values}
	for i := range g.stripes {
		g.stripes[i].alerts = make(map[string]schema.Alert)
		g.stripes[i].events = make(map[string]schema.WarningEvent)
	}
	return g
}

func genericStripeFor(seriesID string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(seriesID); i++ {
		h ^= uint32(seriesID[i])
		h *= 16777619
	}
	return h % genericStripeCount
}

func (g *genericStore) stripeFor(seriesID string) *struct {
	mu     sync.Mutex
	alerts map[string]schema.Alert
	events map[string]schema.WarningEvent
} {
	return &g.stripes[genericStripeFor(seriesID)]
}

func (g *genericStore) PersistPoint(ctx context.Context, point schema.DataPoint) error {
	if err := g.values.Write(point.SeriesID, int64(point.Timestamp), point.Value); err != nil {
		return coreerr.Wrap(coreerr.KindInternal, "generic_write_failed", err)
	}
	return nil
}

func (g *genericStore) UpsertLatestValue(ctx context.Context, point schema.DataPoint) error {
	return g.PersistPoint(ctx, point)
}

func (g *genericStore) ResolveActiveAlert(ctx context.Context, seriesID string, now float64) error {
	stripe := g.stripeFor(seriesID)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	if alert, ok := stripe.alerts[seriesID]; ok {
		alert.IsActive = false
		resolvedAt := now
		alert.ResolvedAt = &resolvedAt
		alert.ResolvedReason = "superseded"
		stripe.alerts[seriesID] = alert
	}
	return nil
}

func (g *genericStore) CreateAlert(ctx context.Context, alert schema.Alert) error {
	stripe := g.stripeFor(alert.SeriesID)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	stripe.alerts[alert.SeriesID] = alert
	return nil
}

func (g *genericStore) ResolveActiveWarning(ctx context.Context, seriesID string, now float64) error {
	stripe := g.stripeFor(seriesID)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	if event, ok := stripe.events[seriesID]; ok {
		event.IsActive = false
		resolvedAt := now
		event.ResolvedAt = &resolvedAt
		stripe.events[seriesID] = event
	}
	return nil
}

func (g *genericStore) CreateWarningEvent(ctx context.Context, event schema.WarningEvent) error {
	stripe := g.stripeFor(event.SeriesID)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	stripe.events[event.SeriesID] = event
	return nil
}

func (g *genericStore) hasActive(seriesID string) bool {
	stripe := g.stripeFor(seriesID)
	stripe.mu.Lock()
	defer stripe.mu.Unlock()
	if alert, ok := stripe.alerts[seriesID]; ok && alert.IsActive {
		return true
	}
	if event, ok := stripe.events[seriesID]; ok && event.IsActive {
		return true
	}
	return false
}

func (g *genericStore) health() error {
	// In-process memory; always reachable while the router itself runs.
	return nil
}

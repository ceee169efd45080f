// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package router implements route(point), the single entry point into the
// ingestion core: guards, dedup, constraint/state load, classification,
// sub-pipeline dispatch wrapped in retry+breaker, and the state-machine
// transition. Every transport adapter calls the same Router instance;
// it is reentrant and safe for concurrent use.
package router

import (
	"context"
	"encoding/json"
	"time"

	"github.com/signalgate/ingestgw/internal/classifier"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/internal/dedup"
	"github.com/signalgate/ingestgw/internal/dlq"
	"github.com/signalgate/ingestgw/internal/guards"
	"github.com/signalgate/ingestgw/internal/metrics"
	"github.com/signalgate/ingestgw/internal/pipeline"
	"github.com/signalgate/ingestgw/internal/resilience"
	"github.com/signalgate/ingestgw/internal/statemachine"
	"github.com/signalgate/ingestgw/internal/streamstate"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

// ActiveRecordChecker reports whether a series still has an open alert or
// warning record. The router only needs this to decide the WARNING/ALERT ->
// NORMAL transition: a NORMAL point never itself touches the alert
// or warning tables, so that decision can't be read off a sub-pipeline's
// Outcome.
type ActiveRecordChecker interface {
	HasActiveAlertOrWarning(ctx context.Context, seriesID string) (bool, error)
}

// Router is the single entry point into the ingestion core.
type Router struct {
	dedup *dedup.Deduplicator
	repo  *streamstate.Repository
	dlq   *dlq.Queue

	alert      *pipeline.AlertPipeline
	warning    *pipeline.WarningPipeline
	prediction *pipeline.PredictionPipeline
	active     ActiveRecordChecker

	storageBreaker *resilience.Breaker
	retry          resilience.Policy

	suspiciousZeroThreshold float64
	locks                   stripedLocks

	nowFn func() float64
}

// Config bundles Router's dependencies.
type Config struct {
	Dedup      *dedup.Deduplicator
	Repo       *streamstate.Repository
	DLQ        *dlq.Queue
	Alert      *pipeline.AlertPipeline
	Warning    *pipeline.WarningPipeline
	Prediction *pipeline.PredictionPipeline
	Active     ActiveRecordChecker

	StorageBreaker *resilience.Breaker
	RetryPolicy    resilience.Policy

	// SuspiciousZeroThreshold <= 0 uses guards.DefaultSuspiciousZeroThreshold.
	SuspiciousZeroThreshold float64

	// NowFn overrides time.Now for tests; nil uses real wall-clock seconds.
	NowFn func() float64
}

func New(cfg Config) *Router {
	r := &Router{
		dedup:                   cfg.Dedup,
		repo:                    cfg.Repo,
		dlq:                     cfg.DLQ,
		alert:                   cfg.Alert,
		warning:                 cfg.Warning,
		prediction:              cfg.Prediction,
		active:                  cfg.Active,
		storageBreaker:          cfg.StorageBreaker,
		retry:                   cfg.RetryPolicy,
		suspiciousZeroThreshold: cfg.SuspiciousZeroThreshold,
		nowFn:                   cfg.NowFn,
	}
	return r
}

func (r *Router) now() float64 {
	if r.nowFn != nil {
		return r.nowFn()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// Route is the router's single entry point. transportName
// identifies the caller for DLQ bookkeeping.
func (r *Router) Route(ctx context.Context, point schema.DataPoint, transportName string) error {
	now := r.now()
	if point.ProcessedAt == 0 {
		point.ProcessedAt = now
	}

	// cfg is loaded before the first GetState call: GetState read-through
	// loads schema.NewOperationalState(seriesID, minReadingsForNormal, now)
	// on a cache miss and that threshold sticks for the cache entry's
	// lifetime, so the preliminary guard-stage read below must already
	// carry the series' real configured value instead of a placeholder.
	cfg := r.repo.GetConfig(point.SeriesID, point.Domain)

	priorState := r.repo.GetState(point.SeriesID, cfg.MinReadingsForNormal, now)
	havePrev := priorState.ValidReadingsCount > 0 || priorState.State != schema.StateInitializing
	guardResult, err := guards.Check(&point, now, priorState.LastValue, havePrev, r.suspiciousZeroThreshold)
	if err != nil {
		r.writeDLQ(transportName, point, dlq.CategoryGuards, err, 1)
		return err
	}
	if guardResult.Suspicious {
		log.Warnf("router: suspicious zero for series %s (previous=%v)", point.SeriesID, priorState.LastValue)
	}

	msgID := point.EffectiveMsgID()
	point.MsgID = msgID
	if r.dedup.IsDuplicate(ctx, msgID) {
		metrics.DedupChecks.WithLabelValues("duplicate").Inc()
		log.Debugf("router: duplicate msg_id %s, dropping", msgID)
		return nil
	}
	if r.dedup.Available() {
		metrics.DedupChecks.WithLabelValues("unique").Inc()
		metrics.DedupAvailable.Set(1)
	} else {
		metrics.DedupChecks.WithLabelValues("passthrough").Inc()
		metrics.DedupAvailable.Set(0)
	}

	lock := r.locks.lockFor(point.SeriesID)
	lock.Lock()
	defer lock.Unlock()

	state := r.repo.GetState(point.SeriesID, cfg.MinReadingsForNormal, now)

	classification := classifier.Classify(&point, cfg.Constraints, state)
	classification = classifier.ApplyWarmupSuppression(classification, state)

	reason, streak, live := classifier.Debounce(classification, state, cfg.Constraints.Normalized().ConsecutiveViolationsRequired)

	dispatchClass := classification
	if isViolation(classification.Kind) && !live {
		dispatchClass = schema.Classification{Kind: schema.ClassNormal, Reason: "debounced"}
	}

	reading := schema.UnifiedReading{Point: point, Classification: dispatchClass, State: state, Config: cfg}

	outcome, dispatchErr := r.dispatchWithResilience(ctx, reading, now)
	if dispatchErr != nil {
		if ctx.Err() != nil {
			r.writeDLQ(transportName, point, dlq.CategoryCancelled, dispatchErr, 1)
		} else {
			r.writeDLQ(transportName, point, dlq.CategoryPersist, dispatchErr, effectiveMaxAttempts(r.retry))
		}
		return dispatchErr
	}

	hasActive := false
	if needsActiveCheck(state.State, dispatchClass.Kind) && r.active != nil {
		hasActive, err = r.active.HasActiveAlertOrWarning(ctx, point.SeriesID)
		if err != nil {
			log.Warnf("router: active-record check failed for %s: %v", point.SeriesID, err)
		}
	}
	if outcome.Persisted && dispatchClass.Kind != schema.ClassNormal {
		// A brand-new alert/warning was just opened; it is active by
		// definition, regardless of what was open before.
		hasActive = true
	}

	next := statemachine.Next(state, dispatchClass.Kind, hasActive, now)
	next.ViolationReason = reason
	next.ViolationStreak = streak
	next.LastValue = point.Value
	next.LastTimestamp = point.Timestamp

	if err := r.repo.PutState(next); err != nil {
		log.Errorf("router: failed to persist state transition for %s: %v", point.SeriesID, err)
		return coreerr.Wrap(coreerr.KindInternal, "state_persist_failed", err)
	}

	return nil
}

func isViolation(kind schema.ClassificationKind) bool {
	return kind == schema.ClassWarningViolation || kind == schema.ClassCriticalViolation
}

// needsActiveCheck reports whether the upcoming state-machine transition
// could depend on whether an alert/warning record is still open: only the
// WARNING/ALERT -> NORMAL edge cares.
func needsActiveCheck(current schema.State, effectiveKind schema.ClassificationKind) bool {
	if effectiveKind != schema.ClassNormal {
		return false
	}
	return current == schema.StateWarning || current == schema.StateAlert
}

// dispatchWithResilience hands reading to exactly one sub-pipeline per the
// classification -> pipeline map, wrapped in retry+circuit-breaker.
func (r *Router) dispatchWithResilience(ctx context.Context, reading schema.UnifiedReading, now float64) (pipeline.Outcome, error) {
	var outcome pipeline.Outcome
	call := func(ctx context.Context) error {
		return resilience.WithBackoff(ctx, r.retry, func() error {
			var innerErr error
			outcome, innerErr = r.dispatch(ctx, reading, now)
			return innerErr
		})
	}

	var err error
	if r.storageBreaker != nil {
		err = r.storageBreaker.Call(ctx, call)
		metrics.BreakerState.WithLabelValues(storageBreakerName).Set(metrics.BreakerStateValue(r.storageBreaker.State()))
		if isCircuitOpen(err) {
			metrics.BreakerRejections.WithLabelValues(storageBreakerName).Inc()
		}
	} else {
		err = call(ctx)
	}
	return outcome, err
}

const storageBreakerName = "storage"

// isCircuitOpen reports whether err is the coreerr wrapping breaker.Call
// returns when it rejects a call outright (internal/resilience/breaker.go).
func isCircuitOpen(err error) bool {
	ce, ok := err.(*coreerr.Error)
	return ok && ce.Reason == "circuit_open"
}

func (r *Router) dispatch(ctx context.Context, reading schema.UnifiedReading, now float64) (pipeline.Outcome, error) {
	switch {
	case reading.Classification.Kind == schema.ClassCriticalViolation && reading.Classification.Reason == schema.ReasonPhysicalRange:
		return r.alert.Ingest(ctx, reading, now)
	case reading.Classification.Kind == schema.ClassWarningViolation || reading.Classification.Kind == schema.ClassAnomalyDetected:
		return r.warning.Ingest(ctx, reading, now)
	case reading.Classification.Kind == schema.ClassNormal:
		return r.prediction.Ingest(ctx, reading, now)
	default:
		return pipeline.Outcome{}, coreerr.New(coreerr.KindInternal, "unroutable_classification")
	}
}

func (r *Router) writeDLQ(transportName string, point schema.DataPoint, category dlq.Category, cause error, attempts int) {
	raw, _ := json.Marshal(point)
	r.dlq.Push(dlq.Entry{
		TransportName: transportName,
		Raw:           raw,
		Category:      category,
		Detail:        cause.Error(),
		FirstFailedAt: r.now(),
		Attempts:      attempts,
		MsgID:         point.MsgID,
	})
	metrics.DLQPushes.WithLabelValues(string(category)).Inc()
	metrics.DLQDepth.Set(float64(r.dlq.Len()))
	metrics.DLQDropped.Set(float64(r.dlq.Dropped()))
}

// ReplayDLQEntry implements dlq.Replayer: it reconstructs the original point
// and routes it again, preserving msg_id so the deduplicator behaves
// correctly on replay.
func (r *Router) ReplayDLQEntry(entry dlq.Entry) error {
	var point schema.DataPoint
	if err := json.Unmarshal(entry.Raw, &point); err != nil {
		return coreerr.Wrap(coreerr.KindInvalidInput, "dlq_entry_unmarshal_failed", err)
	}
	return r.Route(context.Background(), point, entry.TransportName)
}

var _ dlq.Replayer = (*Router)(nil)

// effectiveMaxAttempts mirrors resilience.Policy's own zero-value
// defaulting so DLQ entries record the attempt count that was actually
// used, without exporting resilience's private normalization.
func effectiveMaxAttempts(p resilience.Policy) int {
	if p.MaxAttempts <= 0 {
		return resilience.DefaultPolicy.MaxAttempts
	}
	return p.MaxAttempts
}

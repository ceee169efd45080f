// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package statemachine implements the operational state machine: the
// transition table between INITIALIZING/NORMAL/WARNING/ALERT/STALE, plus
// a periodic sweeper that ages live series into STALE.
package statemachine

import "github.com/signalgate/ingestgw/pkg/schema"

const DefaultStaleTimeoutSeconds = 2 * 60 * 60

// Next computes the post-transition state for a valid point just received.
// effectiveKind is the (already debounced) classification kind driving the
// transition; hasActiveAlertOrWarning reflects whether the sub-pipeline
// still has an open alert/warning record for this series after handling
// this point — the NORMAL, ALERT/WARNING -> NORMAL transition only fires
// once nothing is left open.
func Next(state schema.OperationalState, effectiveKind schema.ClassificationKind, hasActiveAlertOrWarning bool, now float64) schema.OperationalState {
	next := state

	switch state.State {
	case schema.StateInitializing:
		next.ValidReadingsCount++
		if next.ValidReadingsCount >= effectiveMinReadings(state) {
			next.State = schema.StateNormal
			next.StateChangedAt = now
		}

	case schema.StateNormal:
		switch effectiveKind {
		case schema.ClassCriticalViolation:
			next.State = schema.StateAlert
			next.StateChangedAt = now
		case schema.ClassWarningViolation:
			next.State = schema.StateWarning
			next.StateChangedAt = now
		}

	case schema.StateWarning:
		switch effectiveKind {
		case schema.ClassCriticalViolation:
			next.State = schema.StateAlert
			next.StateChangedAt = now
		case schema.ClassNormal:
			if !hasActiveAlertOrWarning {
				next.State = schema.StateNormal
				next.StateChangedAt = now
			}
		}

	case schema.StateAlert:
		if effectiveKind == schema.ClassNormal && !hasActiveAlertOrWarning {
			next.State = schema.StateNormal
			next.StateChangedAt = now
		}

	case schema.StateStale:
		// Any valid point pulls a stale series back to the beginning of
		// its lifecycle: it has not been observed long enough to trust.
		next.State = schema.StateInitializing
		next.ValidReadingsCount = 0
		next.StateChangedAt = now
	}

	return next
}

func effectiveMinReadings(state schema.OperationalState) int {
	if state.MinReadingsForNormal <= 0 {
		return schema.DefaultMinReadingsForNormal
	}
	return state.MinReadingsForNormal
}

// SweepStale transitions state to STALE if now - LastTimestamp exceeds
// staleTimeoutSeconds (default DefaultStaleTimeoutSeconds) and the series
// is in any live state (NORMAL, WARNING, ALERT). INITIALIZING and STALE are
// left alone — a series that never produced a reading has nothing to go
// stale from, and an already-stale series stays stale until a new point
// arrives.
func SweepStale(state schema.OperationalState, staleTimeoutSeconds float64, now float64) (schema.OperationalState, bool) {
	if staleTimeoutSeconds <= 0 {
		staleTimeoutSeconds = DefaultStaleTimeoutSeconds
	}
	switch state.State {
	case schema.StateNormal, schema.StateWarning, schema.StateAlert:
	default:
		return state, false
	}
	if now-state.LastTimestamp <= staleTimeoutSeconds {
		return state, false
	}
	next := state
	next.State = schema.StateStale
	next.StateChangedAt = now
	return next, true
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package classifier implements the pure classification function: given
// a value, its constraints, and the series' recent history, it returns
// exactly one Classification by strict precedence.
package classifier

import (
	"math"

	"github.com/signalgate/ingestgw/pkg/schema"
)

const deltaEpsilon = 1e-9

// Classify is a pure function: same inputs always produce the same output,
// with no side effects. state is the series' state BEFORE this point is
// applied (its LastValue/LastTimestamp/ValidReadingsCount reflect the
// previous reading).
func Classify(point *schema.DataPoint, constraints schema.ValueConstraints, state schema.OperationalState) schema.Classification {
	c := constraints.Normalized()
	v := point.Value

	if !c.Critical.InBounds(v) {
		return schema.Classification{
			Kind:   schema.ClassCriticalViolation,
			Reason: schema.ReasonPhysicalRange,
			Metadata: map[string]any{
				"band": "critical",
			},
		}
	}

	if !c.Operational.InBounds(v) {
		return schema.Classification{
			Kind:   schema.ClassWarningViolation,
			Reason: schema.ReasonOperationalRange,
			Metadata: map[string]any{
				"band": "operational",
			},
		}
	}

	if inWarningZone(c, v) {
		return schema.Classification{
			Kind:   schema.ClassWarningViolation,
			Reason: schema.ReasonWarningZone,
			Metadata: map[string]any{
				"band": "warning",
			},
		}
	}

	if spike, meta := deltaSpike(point, c, state); spike {
		return schema.Classification{
			Kind:     schema.ClassAnomalyDetected,
			Reason:   schema.ReasonDeltaSpike,
			Metadata: meta,
		}
	}

	return schema.Classification{Kind: schema.ClassNormal}
}

// inWarningZone reports whether v sits between the warning bound and the
// operational bound: inside the (looser) operational band — already
// checked above — but outside the (tighter) warning band.
func inWarningZone(c schema.ValueConstraints, v float64) bool {
	return !c.Warning.InBounds(v)
}

// deltaSpike implements the §4.C7 delta-spike criterion.
func deltaSpike(point *schema.DataPoint, c schema.ValueConstraints, state schema.OperationalState) (bool, map[string]any) {
	if state.ValidReadingsCount < c.MinReadings {
		return false, nil
	}

	dt := point.Timestamp - state.LastTimestamp
	if dt <= 0 || dt > c.SpikeWindowSeconds {
		return false, nil
	}

	dv := math.Abs(point.Value - state.LastValue)
	prevAbs := math.Max(math.Abs(state.LastValue), deltaEpsilon)

	fires := false
	if c.AbsDelta != nil && dv >= *c.AbsDelta {
		fires = true
	}
	if !fires && c.RelDelta != nil && dv/prevAbs >= *c.RelDelta {
		fires = true
	}
	if !fires && c.AbsSlope != nil && dv/dt >= *c.AbsSlope {
		fires = true
	}
	if !fires && c.RelSlope != nil && (dv/prevAbs)/dt >= *c.RelSlope {
		fires = true
	}
	if !fires {
		return false, nil
	}

	return true, map[string]any{
		"absolute_delta": dv,
		"relative_delta": dv / prevAbs,
		"elapsed_seconds": dt,
	}
}

// ApplyWarmupSuppression rewrites a classification to NORMAL/warmup when
// the series is still INITIALIZING, keeping the classifier itself pure:
// it always runs and its result is rewritten afterward rather than
// short-circuited.
func ApplyWarmupSuppression(c schema.Classification, state schema.OperationalState) schema.Classification {
	if state.State != schema.StateInitializing {
		return c
	}
	return schema.Classification{Kind: schema.ClassNormal, Reason: schema.ReasonWarmup}
}

// Debounce implements the consecutive-violation debounce (§4.C7): a
// same-reason violation only becomes "live" after ConsecutiveViolationsRequired
// back-to-back qualifying classifications. It returns the updated
// streak/reason to store back on OperationalState and whether the
// violation should be treated as live right now.
func Debounce(c schema.Classification, state schema.OperationalState, required int) (newReason string, newStreak int, live bool) {
	if required <= 0 {
		required = schema.DefaultConsecutiveViolationsRequired
	}

	isViolation := c.Kind == schema.ClassWarningViolation || c.Kind == schema.ClassCriticalViolation
	if !isViolation {
		return "", 0, false
	}

	if state.ViolationReason == c.Reason {
		newStreak = state.ViolationStreak + 1
	} else {
		newStreak = 1
	}
	return c.Reason, newStreak, newStreak >= required
}

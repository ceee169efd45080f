// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package guards implements the syntactic guards and suspicious-value
// filter the router runs before anything else touches a DataPoint.
package guards

import (
	"math"

	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const (
	maxPastSeconds   = 24 * 60 * 60
	maxFutureSkewSec = 60
	// DefaultSuspiciousZeroThreshold is how far from zero the previous
	// value must have been for an exact-zero reading to be flagged
	// suspicious rather than silently accepted.
	DefaultSuspiciousZeroThreshold = 5.0
)

// Result is the outcome of Check: either the point passes (possibly
// flagged), or it is rejected with a tagged error.
type Result struct {
	Suspicious bool
	Reason     string // set when Suspicious, e.g. "suspicious_zero"
}

// Check is a pure function. It rejects non-finite values, timestamps more
// than 24h in the past or more than 60s skewed into the future, and numeric
// series ids that are non-positive where the series is expected numeric
// (legacy IoT sensor ids). It never mutates p or prevValue.
// suspiciousZeroThreshold <= 0 uses DefaultSuspiciousZeroThreshold.
func Check(p *schema.DataPoint, now float64, prevValue float64, havePrev bool, suspiciousZeroThreshold float64) (Result, error) {
	if suspiciousZeroThreshold <= 0 {
		suspiciousZeroThreshold = DefaultSuspiciousZeroThreshold
	}
	if !p.IsFinite() {
		return Result{}, coreerr.New(coreerr.KindInvalidInput, schema.ReasonGuardsFailed)
	}

	age := now - p.Timestamp
	if age > maxPastSeconds {
		return Result{}, coreerr.New(coreerr.KindInvalidInput, schema.ReasonGuardsFailed)
	}
	if age < -maxFutureSkewSec {
		return Result{}, coreerr.New(coreerr.KindInvalidInput, schema.ReasonGuardsFailed)
	}

	if p.Domain == schema.DomainIoT {
		if sid, ok := parsePositiveSensorID(p.SeriesID); !ok {
			_ = sid
			return Result{}, coreerr.New(coreerr.KindInvalidInput, schema.ReasonGuardsFailed)
		}
	}

	res := Result{}
	if p.Value == 0 && havePrev && math.Abs(prevValue) >= suspiciousZeroThreshold {
		res.Suspicious = true
		res.Reason = "suspicious_zero"
	}
	return res, nil
}

// parsePositiveSensorID is only meaningful for legacy IoT points, whose
// SeriesID is expected to be a positive integer sensor id rendered as a
// string once resolved. A missing SeriesID is not itself a guard failure
// (it may still be resolving via device-key lookup); only a
// present-but-non-positive id fails.
func parsePositiveSensorID(seriesID string) (int64, bool) {
	if seriesID == "" {
		return 0, true
	}
	var n int64
	neg := false
	i := 0
	if seriesID[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(seriesID) {
		return 0, false
	}
	for ; i < len(seriesID); i++ {
		c := seriesID[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		n = -n
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

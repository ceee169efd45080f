// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

// Band is an optional, independently-checkable numeric bound. Nil Min/Max
// means that side of the band is not enforced.
type Band struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// InBounds reports whether v falls inside the band. A band with both
// bounds nil always reports true (unconstrained).
func (b *Band) InBounds(v float64) bool {
	if b == nil {
		return true
	}
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// ValueConstraints holds the four nested bands (tightest outermost) plus
// debounce/cooldown tuning for a single series.
type ValueConstraints struct {
	Critical    *Band `json:"critical,omitempty"`
	Operational *Band `json:"operational,omitempty"`
	Warning     *Band `json:"warning,omitempty"`
	RateOfChange *Band `json:"rate_of_change,omitempty"`

	// ConsecutiveViolationsRequired is how many back-to-back same-reason
	// qualifying classifications are needed before a violation is "live".
	ConsecutiveViolationsRequired int `json:"consecutive_violations_required,omitempty"`
	// CooldownSeconds suppresses a new alert/warning of the same kind for
	// this many seconds after the previous one resolves.
	CooldownSeconds int `json:"cooldown_seconds,omitempty"`

	// Delta-spike tuning, all optional; zero means "use component default".
	SpikeWindowSeconds float64  `json:"spike_window_seconds,omitempty"`
	MinReadings        int      `json:"min_readings,omitempty"`
	AbsDelta           *float64 `json:"abs_delta,omitempty"`
	RelDelta           *float64 `json:"rel_delta,omitempty"`
	AbsSlope           *float64 `json:"abs_slope,omitempty"`
	RelSlope           *float64 `json:"rel_slope,omitempty"`
}

const (
	DefaultConsecutiveViolationsRequired = 1
	DefaultCooldownSeconds               = 300
	DefaultSpikeWindowSeconds            = 10
	DefaultMinReadingsForSpike           = 5
)

// Normalized returns a copy of c with zero-valued tuning fields replaced by
// their component defaults. A nil receiver normalizes to an all-defaults,
// unconstrained record.
func (c *ValueConstraints) Normalized() ValueConstraints {
	var out ValueConstraints
	if c != nil {
		out = *c
	}
	if out.ConsecutiveViolationsRequired <= 0 {
		out.ConsecutiveViolationsRequired = DefaultConsecutiveViolationsRequired
	}
	if out.CooldownSeconds <= 0 {
		out.CooldownSeconds = DefaultCooldownSeconds
	}
	if out.SpikeWindowSeconds <= 0 {
		out.SpikeWindowSeconds = DefaultSpikeWindowSeconds
	}
	if out.MinReadings <= 0 {
		out.MinReadings = DefaultMinReadingsForSpike
	}
	return out
}

// StreamConfig is per-series configuration; identity is (SeriesID, Domain).
type StreamConfig struct {
	SeriesID             string           `json:"series_id"`
	Domain               Domain           `json:"domain"`
	DisplayName          string           `json:"display_name,omitempty"`
	AlertingEnabled      bool             `json:"alerting_enabled"`
	PredictionEnabled    bool             `json:"prediction_enabled"`
	MinReadingsForNormal int              `json:"min_readings_for_normal,omitempty"`
	Constraints          ValueConstraints `json:"constraints"`
}

// DefaultStreamConfig returns the domain-default configuration applied by
// the router (C11) when no StreamConfig has been registered for a series.
func DefaultStreamConfig(seriesID string, domain Domain) StreamConfig {
	return StreamConfig{
		SeriesID:             seriesID,
		Domain:               domain,
		AlertingEnabled:      true,
		PredictionEnabled:    true,
		MinReadingsForNormal: DefaultMinReadingsForNormal,
		Constraints:          (*ValueConstraints)(nil).Normalized(),
	}
}

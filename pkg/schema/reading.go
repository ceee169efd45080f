// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"fmt"
	"math"
)

// Domain tags a DataPoint for storage routing (I7). Only IoT goes to the
// legacy backend; everything else lands in the generic time-series store.
type Domain string

const (
	DomainIoT            Domain = "iot"
	DomainInfrastructure Domain = "infrastructure"
	DomainFinance        Domain = "finance"
	DomainHealth         Domain = "health"
	DomainGeneric        Domain = "generic"
)

func (d Domain) Valid() bool {
	switch d {
	case DomainIoT, DomainInfrastructure, DomainFinance, DomainHealth, DomainGeneric:
		return true
	default:
		return false
	}
}

// DataPoint is the universal unit flowing through the ingestion core.
type DataPoint struct {
	SeriesID    string         `json:"series_id"`
	Value       float64        `json:"value"`
	Timestamp   float64        `json:"timestamp"` // seconds since epoch, fractional
	IngestedAt  float64        `json:"ingested_at,omitempty"`
	ProcessedAt float64        `json:"processed_at,omitempty"`
	Domain      Domain         `json:"domain"`
	SourceID    string         `json:"source_id,omitempty"`
	StreamType  string         `json:"stream_type,omitempty"`
	Sequence    int64          `json:"sequence,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	MsgID       string         `json:"msg_id,omitempty"`
}

// DeriveSeriesID builds the canonical series_id for non-legacy domains
// ("{domain}/{source_id}/{stream_id}"). Legacy IoT points carry their
// integer sensor id rendered as a string instead; callers set SeriesID
// directly for that case.
func DeriveSeriesID(domain Domain, sourceID, streamID string) string {
	return fmt.Sprintf("%s/%s/%s", domain, sourceID, streamID)
}

// DeriveMsgID renders the fallback idempotency key for points that arrive
// without a producer-supplied msg_id: series_id, the timestamp rounded to
// microseconds, and the value rounded to a fixed precision.
func DeriveMsgID(seriesID string, timestamp, value float64) string {
	tsMicros := int64(math.Round(timestamp * 1e6))
	valRounded := math.Round(value*1e6) / 1e6
	return fmt.Sprintf("%s|%d|%.6f", seriesID, tsMicros, valRounded)
}

// EffectiveMsgID returns the producer-supplied msg_id if present, otherwise
// the derived one.
func (p *DataPoint) EffectiveMsgID() string {
	if p.MsgID != "" {
		return p.MsgID
	}
	return DeriveMsgID(p.SeriesID, p.Timestamp, p.Value)
}

// IsFinite reports whether Value is neither NaN nor ±Inf.
func (p *DataPoint) IsFinite() bool {
	return !math.IsNaN(p.Value) && !math.IsInf(p.Value, 0)
}

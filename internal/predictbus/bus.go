// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package predictbus

import (
	"sync"
	"sync/atomic"
	"time"

	lineprotocol "github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

// Publisher is the minimal surface Bus needs from the NATS client,
// satisfied by *pkg/nats.Client.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Bus is the throttled, fire-and-forget prediction publisher.
type Bus struct {
	nats         Publisher
	subjectRoot  string
	throttle     *throttle
	droppedCount atomic.Uint64

	lastLogMu sync.Mutex
	lastLog   map[string]time.Time
}

// New builds a Bus publishing under "{subjectRoot}.{series_id}", throttled
// to at most one publish per minIntervalSeconds per series.
func New(nats Publisher, subjectRoot string, minIntervalSeconds float64) *Bus {
	return &Bus{
		nats:        nats,
		subjectRoot: subjectRoot,
		throttle:    newThrottle(minIntervalSeconds),
		lastLog:     make(map[string]time.Time),
	}
}

// Publish sends point's current value if the per-series rate limit admits
// it; otherwise the publish is dropped silently (counted, never logged).
// Publish failures are fire-and-forget: logged at most once per minute per
// series, never retried, never escalated.
func (b *Bus) Publish(point schema.DataPoint) {
	if !b.throttle.allow(point.SeriesID) {
		b.droppedCount.Add(1)
		return
	}

	payload, err := encodeLineProtocol(point)
	if err != nil {
		log.Errorf("predictbus: failed to encode point for %s: %v", point.SeriesID, err)
		return
	}

	subject := b.subjectRoot + "." + point.SeriesID
	if err := b.nats.Publish(subject, payload); err != nil {
		b.logThrottledFailure(point.SeriesID, err)
	}
}

// DroppedCount returns the number of publishes dropped by the rate limiter
// since startup, for metrics.
func (b *Bus) DroppedCount() uint64 {
	return b.droppedCount.Load()
}

func (b *Bus) logThrottledFailure(seriesID string, err error) {
	b.lastLogMu.Lock()
	defer b.lastLogMu.Unlock()

	now := time.Now()
	if last, ok := b.lastLog[seriesID]; ok && now.Sub(last) < time.Minute {
		return
	}
	b.lastLog[seriesID] = now
	log.Warnf("predictbus: publish failed for %s: %v", seriesID, err)
}

func encodeLineProtocol(point schema.DataPoint) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	enc.StartLine("prediction")
	enc.AddTag("series_id", point.SeriesID)
	enc.AddField("value", lineprotocol.MustNewValue(point.Value))
	enc.AddField("timestamp", lineprotocol.MustNewValue(point.Timestamp))
	if point.IngestedAt != 0 {
		enc.AddField("ingested_at", lineprotocol.MustNewValue(point.IngestedAt))
	}
	enc.EndLine(time.Unix(0, int64(point.Timestamp*1e9)))
	if err := enc.Err(); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dedup implements the idempotency deduplicator: is_duplicate(msg_id)
// atomically records the id with a TTL using Redis' SETNX-with-expiry,
// falling back to passthrough mode when Redis is unreachable so ingestion
// never blocks on this dependency.
package dedup

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/signalgate/ingestgw/pkg/log"
)

const DefaultTTL = 60 * time.Second

const keyPrefix = "signalgate:dedup:"

// Deduplicator checks and records msg_ids against a Redis-backed set. When
// Redis is unreachable it enters passthrough mode: every call reports "not
// a duplicate" and a health flag is flipped so /resilience/health can report
// degraded dedup coverage.
type Deduplicator struct {
	client *redis.Client
	ttl    time.Duration

	// available is accessed atomically so Available never blocks on the
	// mutex-free read path used by IsDuplicate.
	available atomic.Bool
}

// New builds a Deduplicator against an already-constructed redis.Client. A
// nil client runs the deduplicator permanently in passthrough mode (no
// redis configured, e.g. dedup-store-url="memory://"), which is a valid
// deployment choice, not an error condition.
// ttl of zero uses DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	d := &Deduplicator{client: client, ttl: ttl}
	d.available.Store(true)
	return d
}

// IsDuplicate reports whether msgID was already seen within the TTL window.
// A false result means msgID has just been atomically recorded; the caller
// owns this id for the next ttl. On Redis error the deduplicator flips to
// passthrough and returns false so ingestion is never blocked by a dedup
// outage.
func (d *Deduplicator) IsDuplicate(ctx context.Context, msgID string) bool {
	if d.client == nil {
		d.available.Store(false)
		return false
	}
	ok, err := d.client.SetNX(ctx, keyPrefix+msgID, 1, d.ttl).Result()
	if err != nil {
		if d.available.Swap(false) {
			log.Warnf("dedup: redis unreachable, entering passthrough mode: %v", err)
		}
		return false
	}
	if !d.available.Swap(true) {
		log.Infof("dedup: redis reachable again, leaving passthrough mode")
	}
	// SetNX returns true when the key was newly set, i.e. NOT a duplicate.
	return !ok
}

// Available reports whether the last IsDuplicate call reached Redis
// successfully. Surfaced at GET /resilience/health.
func (d *Deduplicator) Available() bool {
	return d.available.Load()
}

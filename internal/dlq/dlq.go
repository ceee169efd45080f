// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dlq implements the dead-letter queue: an append-only, bounded,
// in-memory ring of failed messages. When full the oldest entry is
// dropped and counted. A replay reader drains entries back through the
// router at a configurable cadence, preserving each entry's original
// msg_id so the deduplicator behaves correctly on replay.
package dlq

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/signalgate/ingestgw/pkg/log"
)

const DefaultCapacity = 10_000

// Category is the DLQ failure category.
type Category string

const (
	CategoryParse          Category = "parse"
	CategoryGuards         Category = "guards"
	CategoryPersist        Category = "persist"
	CategoryCancelled      Category = "cancelled"
	CategoryClassifierBug  Category = "classifier_bug"
)

// Entry is one ordered dead-letter record.
type Entry struct {
	TransportName  string   `json:"transport"`
	Raw            []byte   `json:"raw"`
	Category       Category `json:"category"`
	Detail         string   `json:"detail"`
	FirstFailedAt  float64  `json:"ts_first_failed"`
	Attempts       int      `json:"attempts"`
	MsgID          string   `json:"msg_id,omitempty"`
}

// overflowCounterKey is the redis counter incremented every time an entry
// is dropped because the ring was full, so the count survives a process
// restart for the /resilience/health endpoint.
const overflowCounterKey = "signalgate:dlq:overflow_count"

// Queue is a bounded, ring-buffer dead-letter log. The ring itself lives
// only in memory; an optional redis client is used purely to keep the
// overflow counter observable across restarts.
type Queue struct {
	mu       sync.Mutex
	entries  []Entry
	start    int // index of the oldest entry
	size     int
	capacity int
	dropped  uint64

	redis *redis.Client
}

// New creates a Queue with the given capacity (DefaultCapacity if <= 0) and
// an optional redis client for the overflow counter (nil disables it).
func New(capacity int, redisClient *redis.Client) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		entries:  make([]Entry, capacity),
		capacity: capacity,
		redis:    redisClient,
	}
}

// Push appends entry, dropping the oldest entry if the ring is full.
func (q *Queue) Push(entry Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size == q.capacity {
		q.start = (q.start + 1) % q.capacity
		q.dropped++
		if q.redis != nil {
			// Best-effort; a failed INCR never blocks ingestion.
			if err := q.redis.Incr(context.Background(), overflowCounterKey).Err(); err != nil {
				log.Warnf("dlq: failed to record overflow counter: %v", err)
			}
		}
	} else {
		q.size++
	}
	idx := (q.start + q.size - 1) % q.capacity
	q.entries[idx] = entry
}

// Len returns the number of entries currently held.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Dropped returns how many entries have been evicted by overflow since the
// process started.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Drain removes and returns up to n entries, oldest first, for the replay
// worker to hand back to the router.
func (q *Queue) Drain(n int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n > q.size {
		n = q.size
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = q.entries[(q.start+i)%q.capacity]
	}
	q.start = (q.start + n) % q.capacity
	q.size -= n
	return out
}

// Snapshot copies every currently-held entry, oldest first, without
// removing them. Used by read-only inspection endpoints.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, q.size)
	for i := 0; i < q.size; i++ {
		out[i] = q.entries[(q.start+i)%q.capacity]
	}
	return out
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dlq

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/signalgate/ingestgw/internal/metrics"
	"github.com/signalgate/ingestgw/pkg/log"
)

// Replayer re-ingests a drained DLQ entry. Implemented by internal/router;
// kept as an interface here so this package stays free of the import cycle
// that a direct dependency on internal/router would create.
type Replayer interface {
	ReplayDLQEntry(Entry) error
}

// ReplayWorker periodically drains a batch of entries from a Queue and
// hands them to a Replayer, at a configurable cadence (default 60s),
// scheduled with gocron.
type ReplayWorker struct {
	queue     *Queue
	replayer  Replayer
	batchSize int
	scheduler gocron.Scheduler
}

const defaultReplayBatchSize = 100

// NewReplayWorker builds a worker that drains at most batchSize entries
// (defaultReplayBatchSize if <= 0) from queue every interval, handing each
// to replayer.ReplayDLQEntry.
func NewReplayWorker(queue *Queue, replayer Replayer, interval time.Duration, batchSize int) (*ReplayWorker, error) {
	if batchSize <= 0 {
		batchSize = defaultReplayBatchSize
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	w := &ReplayWorker{queue: queue, replayer: replayer, batchSize: batchSize, scheduler: s}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(w.runOnce),
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Start begins the scheduled replay cadence. Call Stop to halt it.
func (w *ReplayWorker) Start() { w.scheduler.Start() }

// Stop halts the scheduler, waiting for any in-flight replay to finish.
func (w *ReplayWorker) Stop() error { return w.scheduler.Shutdown() }

func (w *ReplayWorker) runOnce() {
	batch := w.queue.Drain(w.batchSize)
	if len(batch) == 0 {
		return
	}
	log.Debugf("dlq: replaying %d entries", len(batch))
	for _, entry := range batch {
		if err := w.replayer.ReplayDLQEntry(entry); err != nil {
			log.Warnf("dlq: replay of entry from transport %s failed, re-enqueueing: %v", entry.TransportName, err)
			w.queue.Push(entry)
			metrics.DLQReplayed.WithLabelValues("failed").Inc()
			continue
		}
		metrics.DLQReplayed.WithLabelValues("ok").Inc()
	}
	metrics.DLQDepth.Set(float64(w.queue.Len()))
	metrics.DLQDropped.Set(float64(w.queue.Dropped()))
}

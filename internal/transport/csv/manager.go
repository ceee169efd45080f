// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package csv implements the CSV upload transport adapter: chunked
// parsing of an uploaded file into DataPoints, one job id per upload,
// progress tracked for polling via GET /ingest/csv/jobs/{job_id}. Unlike
// the HTTP/WS transports, which reject excess load outright, a CSV job
// backpressures by pausing its own row consumption until the router has
// room, then resumes.
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const transportName = "csv"

// Router is the subset of internal/router.Router the adapter needs.
type Router interface {
	Route(ctx context.Context, point schema.DataPoint, transportName string) error
}

// Status is a CSV job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job tracks one upload's progress, served by GET /ingest/csv/jobs/{id}.
type Job struct {
	ID            string `json:"job_id"`
	Status        Status `json:"status"`
	ProcessedRows int    `json:"processed_rows"`
	InsertedRows  int    `json:"inserted_rows"`
	RejectedRows  int    `json:"rejected_rows"`
	Error         string `json:"error,omitempty"`
}

// Spec describes one upload: which columns hold the timestamp and the
// value(s), and the destination domain/source_id.
type Spec struct {
	Domain          schema.Domain
	SourceID        string
	TimestampColumn string
	ValueColumns    []string
}

// Manager runs and tracks CSV ingestion jobs.
type Manager struct {
	router Router

	mu   sync.Mutex
	jobs map[string]*Job

	// maxConcurrentRows bounds in-flight Route calls per job; when full,
	// Submit's parse loop pauses until a slot frees rather than rejecting
	// the row outright (unlike the HTTP/WS transports).
	maxConcurrentRows int
	nowFn             func() float64
}

const DefaultMaxConcurrentRows = 32

func NewManager(router Router, maxConcurrentRows int, nowFn func() float64) *Manager {
	if maxConcurrentRows <= 0 {
		maxConcurrentRows = DefaultMaxConcurrentRows
	}
	return &Manager{
		router:            router,
		jobs:              make(map[string]*Job),
		maxConcurrentRows: maxConcurrentRows,
		nowFn:             nowFn,
	}
}

func (m *Manager) now() float64 {
	if m.nowFn != nil {
		return m.nowFn()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// Submit starts a new job parsing r in the background, chunked and
// progress-tracked, and returns its id immediately. The caller
// retains ownership of r and must keep it open until the job either
// completes or fails; Submit itself never blocks on parsing.
func (m *Manager) Submit(ctx context.Context, spec Spec, r io.Reader) (string, error) {
	if !spec.Domain.Valid() {
		return "", coreerr.New(coreerr.KindInvalidInput, "invalid_domain")
	}
	if spec.Domain == schema.DomainIoT {
		return "", coreerr.New(coreerr.KindInvalidInput, "invalid_domain")
	}
	if spec.TimestampColumn == "" || len(spec.ValueColumns) == 0 {
		return "", coreerr.New(coreerr.KindInvalidInput, "missing_column_spec")
	}

	id := uuid.NewString()
	job := &Job{ID: id, Status: StatusPending}
	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	go m.run(ctx, job, spec, r)
	return id, nil
}

// Get returns a snapshot of a job's current progress.
func (m *Manager) Get(id string) (Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (m *Manager) run(ctx context.Context, job *Job, spec Spec, r io.Reader) {
	m.setStatus(job, StatusRunning, "")

	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		m.fail(job, err)
		return
	}
	cols, err := columnIndex(header, spec)
	if err != nil {
		m.fail(job, err)
		return
	}

	sem := make(chan struct{}, m.maxConcurrentRows)
	var wg sync.WaitGroup

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			m.fail(job, err)
			wg.Wait()
			return
		}

		// Pause-and-resume: block here instead of rejecting the row when
		// maxConcurrentRows in-flight Route calls are already running.
		sem <- struct{}{}
		wg.Add(1)
		go func(record []string) {
			defer wg.Done()
			defer func() { <-sem }()
			ok := m.routeRow(ctx, spec, cols, record)
			m.recordRowOutcome(job, ok)
		}(record)
	}
	wg.Wait()
	m.setStatus(job, StatusCompleted, "")
}

// routeRow converts one CSV record into one or more DataPoints (one per
// value column) and routes each; it reports false if every derived point
// was rejected.
func (m *Manager) routeRow(ctx context.Context, spec Spec, cols columns, record []string) bool {
	if cols.timestamp >= len(record) {
		return false
	}
	ts, err := strconv.ParseFloat(record[cols.timestamp], 64)
	if err != nil {
		return false
	}

	now := m.now()
	anyAccepted := false
	for streamID, idx := range cols.values {
		if idx >= len(record) {
			continue
		}
		value, err := strconv.ParseFloat(record[idx], 64)
		if err != nil {
			continue
		}
		point := schema.DataPoint{
			SeriesID:   schema.DeriveSeriesID(spec.Domain, spec.SourceID, streamID),
			Value:      value,
			Timestamp:  ts,
			IngestedAt: now,
			Domain:     spec.Domain,
			SourceID:   spec.SourceID,
		}
		if err := m.router.Route(ctx, point, transportName); err == nil {
			anyAccepted = true
		} else {
			log.Debugf("csv transport: row rejected for stream %s: %v", streamID, err)
		}
	}
	return anyAccepted
}

type columns struct {
	timestamp int
	values    map[string]int // stream_id -> column index
}

func columnIndex(header []string, spec Spec) (columns, error) {
	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[name] = i
	}
	cols := columns{values: make(map[string]int, len(spec.ValueColumns))}

	ts, ok := byName[spec.TimestampColumn]
	if !ok {
		return columns{}, coreerr.New(coreerr.KindInvalidInput, "timestamp_column_not_found")
	}
	cols.timestamp = ts

	for _, name := range spec.ValueColumns {
		idx, ok := byName[name]
		if !ok {
			return columns{}, coreerr.New(coreerr.KindInvalidInput, "value_column_not_found")
		}
		cols.values[name] = idx
	}
	return cols, nil
}

func (m *Manager) setStatus(job *Job, status Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = status
	job.Error = errMsg
}

func (m *Manager) fail(job *Job, err error) {
	log.Warnf("csv transport: job %s failed: %v", job.ID, err)
	m.setStatus(job, StatusFailed, err.Error())
}

// recordRowOutcome updates a job's row counters under the same lock Get
// uses, so progress polling never observes a torn read across concurrent
// row workers.
func (m *Manager) recordRowOutcome(job *Job, accepted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.ProcessedRows++
	if accepted {
		job.InsertedRows++
	} else {
		job.RejectedRows++
	}
}

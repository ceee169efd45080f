// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/linkedin/goavro/v2"
	"github.com/signalgate/ingestgw/pkg/log"
)

const checkpointSchema = `{
	"type": "record",
	"name": "SeriesCheckpoint",
	"fields": [
		{"name": "series_id", "type": "string"},
		{"name": "points", "type": {"type": "array", "items": {
			"type": "record",
			"name": "Point",
			"fields": [
				{"name": "ts", "type": "long"},
				{"name": "value", "type": "double"}
			]
		}}}
	]
}`

// CheckpointWriter periodically serializes every series' buffered points to
// an Avro file on disk so generic-domain history survives a restart, using
// a flat per-series model (no cluster/host hierarchy to walk).
type CheckpointWriter struct {
	dir   string
	codec *goavro.Codec
}

func NewCheckpointWriter(dir string) (*CheckpointWriter, error) {
	codec, err := goavro.NewCodec(checkpointSchema)
	if err != nil {
		return nil, fmt.Errorf("tsstore: build avro codec: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tsstore: create checkpoint dir: %w", err)
	}
	return &CheckpointWriter{dir: dir, codec: codec}, nil
}

// WriteAll snapshots every series in st and writes one avro file per series
// under dir/<series_id with '/' and ' ' replaced by '_'>.avro. Returns the
// number of series checkpointed.
func (w *CheckpointWriter) WriteAll(st *Store) (int, error) {
	n := 0
	for _, id := range st.SeriesIDs() {
		pts := st.Snapshot(id)
		if len(pts) == 0 {
			continue
		}
		if err := w.writeSeries(id, pts); err != nil {
			log.Errorf("tsstore: checkpoint series %s: %v", id, err)
			continue
		}
		n++
	}
	return n, nil
}

func (w *CheckpointWriter) writeSeries(seriesID string, pts []point) error {
	avroPoints := make([]interface{}, len(pts))
	for i, p := range pts {
		avroPoints[i] = map[string]interface{}{"ts": p.ts, "value": p.val}
	}
	record := map[string]interface{}{
		"series_id": seriesID,
		"points":    avroPoints,
	}

	binary, err := w.codec.BinaryFromNative(nil, record)
	if err != nil {
		return fmt.Errorf("encode avro record: %w", err)
	}

	path := filepath.Join(w.dir, checkpointFileName(seriesID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, binary, 0o644); err != nil {
		return fmt.Errorf("write checkpoint file: %w", err)
	}
	return os.Rename(tmp, path)
}

func checkpointFileName(seriesID string) string {
	safe := make([]byte, 0, len(seriesID))
	for i := 0; i < len(seriesID); i++ {
		c := seriesID[i]
		if c == '/' || c == ' ' {
			c = '_'
		}
		safe = append(safe, c)
	}
	return string(safe) + ".avro"
}

// RunCheckpointLoop writes a checkpoint every interval until stop is closed.
func (w *CheckpointWriter) RunCheckpointLoop(st *Store, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := w.WriteAll(st)
			if err != nil {
				log.Errorf("tsstore: checkpoint loop: %v", err)
				continue
			}
			log.Debugf("tsstore: checkpointed %d series", n)
		}
	}
}

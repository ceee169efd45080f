// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tsstore

// Health is the store's own condition as computed by HealthCheck. The store
// itself never goes "down" (it is in-process memory) but degrades when
// series count balloons unexpectedly, which usually signals a misbehaving
// producer. The HTTP health endpoints do not call HealthCheck; GET
// /health/generic reports the generic backend through internal/storage.
type Health struct {
	Status      string `json:"status"`
	SeriesCount int    `json:"series_count"`
}

const degradedSeriesThreshold = 200_000

func (st *Store) HealthCheck() Health {
	n := len(st.SeriesIDs())
	status := "ok"
	if n > degradedSeriesThreshold {
		status = "degraded"
	}
	return Health{Status: status, SeriesCount: n}
}

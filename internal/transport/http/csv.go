// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/internal/transport/csv"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const DefaultMaxUploadBytes = 256 << 20 // 256 MiB

type csvSubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Rows   int    `json:"rows,omitempty"`
}

// handleIngestCSV implements POST /ingest/csv: a multipart
// upload plus domain/source_id/timestamp_column/value_columns[] form
// fields, handed to the csv.Manager for background chunked parsing.
func (a *Adapter) handleIngestCSV(rw http.ResponseWriter, r *http.Request) {
	if a.csvManager == nil {
		writeError(rw, coreerr.New(coreerr.KindInternal, "csv_transport_unconfigured"))
		return
	}
	if err := r.ParseMultipartForm(DefaultMaxUploadBytes); err != nil {
		writeError(rw, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_multipart_body", err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(rw, coreerr.Wrap(coreerr.KindInvalidInput, "missing_file_field", err))
		return
	}
	defer file.Close()

	spec := csv.Spec{
		Domain:          schema.Domain(r.FormValue("domain")),
		SourceID:        r.FormValue("source_id"),
		TimestampColumn: r.FormValue("timestamp_column"),
		ValueColumns:    r.Form["value_columns[]"],
	}

	jobID, err := a.csvManager.Submit(r.Context(), spec, file)
	if err != nil {
		writeError(rw, err)
		return
	}
	writeJSON(rw, http.StatusAccepted, csvSubmitResponse{JobID: jobID, Status: string(csv.StatusPending)})
}

// handleCSVJobStatus implements GET /ingest/csv/jobs/{job_id}.
func (a *Adapter) handleCSVJobStatus(rw http.ResponseWriter, r *http.Request) {
	if a.csvManager == nil {
		writeError(rw, coreerr.New(coreerr.KindInternal, "csv_transport_unconfigured"))
		return
	}
	jobID := mux.Vars(r)["job_id"]
	job, ok := a.csvManager.Get(jobID)
	if !ok {
		writeError(rw, coreerr.New(coreerr.KindInvalidInput, "unknown_job_id"))
		return
	}
	writeJSON(rw, http.StatusOK, job)
}

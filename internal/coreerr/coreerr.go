// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package coreerr defines the five-kind error taxonomy that every
// boundary in the ingestion core (transports, storage router, prediction
// bus) wraps its failures into, so the router and HTTP layer can
// discriminate with errors.As instead of string-matching.
package coreerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the five error categories the core surfaces.
type Kind string

const (
	// KindInvalidInput means guards/validation rejected the message.
	// Non-retryable; DLQ category parse/guards.
	KindInvalidInput Kind = "invalid_input"
	// KindDuplicate means the dedup store already saw this msg_id. Silent
	// success; counted in metrics only.
	KindDuplicate Kind = "duplicate"
	// KindUnavailable means a downstream is down (circuit open, connection
	// refused). Retried per policy; exhaustion sinks to DLQ category persist.
	KindUnavailable Kind = "unavailable"
	// KindThrottled means per-series or transport backpressure. Surfaces to
	// the producer; never written to the DLQ.
	KindThrottled Kind = "throttled"
	// KindInternal means a programming invariant was violated. Logged with
	// full context; DLQ category classifier_bug.
	KindInternal Kind = "internal"
)

// httpStatus maps each kind to the HTTP status the transport layer returns.
var httpStatus = map[Kind]int{
	KindInvalidInput: http.StatusBadRequest,
	KindDuplicate:     http.StatusOK,
	KindUnavailable:   http.StatusServiceUnavailable,
	KindThrottled:     http.StatusTooManyRequests,
	KindInternal:      http.StatusInternalServerError,
}

// Error wraps an underlying cause with a Kind and a short machine-readable
// Reason code. It never carries credentials, connection strings, or raw
// stack traces in its message.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus returns the status code a producer-facing transport should
// return for this error's kind.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds a tagged Error with no wrapped cause.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap tags err with kind and reason, preserving it for errors.As/Unwrap.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *Error, defaulting to KindInternal otherwise — an un-tagged error reaching
// a boundary is itself a programming-invariant violation.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether an error of this kind should be retried by C5.
// Only KindUnavailable is transient; classification failures and constraint
// violations (invalid_input) must never be retried.
func (k Kind) Retryable() bool {
	return k == KindUnavailable
}

// WritesToDLQ reports whether an error of this kind results in a DLQ entry.
// Throttling is producer-facing backpressure, never a DLQ write; duplicates
// are silent successes.
func (k Kind) WritesToDLQ() bool {
	switch k {
	case KindInvalidInput, KindUnavailable, KindInternal:
		return true
	default:
		return false
	}
}

// ResponseBody is the envelope HTTP handlers serialize on failure.
type ResponseBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

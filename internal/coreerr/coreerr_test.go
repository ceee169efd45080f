// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package coreerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput: http.StatusBadRequest,
		KindDuplicate:     http.StatusOK,
		KindUnavailable:   http.StatusServiceUnavailable,
		KindThrottled:     http.StatusTooManyRequests,
		KindInternal:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		e := New(kind, "test")
		if got := e.HTTPStatus(); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", kind, got, want)
		}
	}
}

func TestKindOfUnwrapsWrappedError(t *testing.T) {
	base := errors.New("connection refused")
	wrapped := Wrap(KindUnavailable, "persist_failed", base)
	outer := fmt.Errorf("router: %w", wrapped)

	if got := KindOf(outer); got != KindUnavailable {
		t.Errorf("KindOf() = %s, want %s", got, KindUnavailable)
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("untagged")); got != KindInternal {
		t.Errorf("KindOf(untagged) = %s, want %s", got, KindInternal)
	}
}

func TestRetryableOnlyUnavailable(t *testing.T) {
	for _, k := range []Kind{KindInvalidInput, KindDuplicate, KindThrottled, KindInternal} {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
	if !KindUnavailable.Retryable() {
		t.Errorf("KindUnavailable should be retryable")
	}
}

func TestWritesToDLQ(t *testing.T) {
	dlq := map[Kind]bool{
		KindInvalidInput: true,
		KindDuplicate:     false,
		KindUnavailable:   true,
		KindThrottled:     false,
		KindInternal:      true,
	}
	for k, want := range dlq {
		if got := k.WritesToDLQ(); got != want {
			t.Errorf("%s.WritesToDLQ() = %v, want %v", k, got, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	e := Wrap(KindInternal, "classifier_bug", base)
	if errors.Unwrap(e) != base {
		t.Errorf("Unwrap() did not return the wrapped cause")
	}
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalgate/ingestgw/internal/coreerr"
)

func TestWithBackoffSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), DefaultPolicy, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithBackoffRetriesUnavailable(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: 5 * time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return coreerr.New(coreerr.KindUnavailable, "unavailable")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithBackoffDoesNotRetryInvalidInput(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), DefaultPolicy, func() error {
		calls++
		return coreerr.New(coreerr.KindInvalidInput, "guards_failed")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (invalid_input must not be retried)", calls)
	}
}

func TestWithBackoffExhaustsAttempts(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), Policy{MaxAttempts: 3, Base: time.Millisecond, Cap: 2 * time.Millisecond}, func() error {
		calls++
		return coreerr.New(coreerr.KindUnavailable, "unavailable")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithBackoffHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithBackoff(ctx, Policy{MaxAttempts: 3, Base: time.Second, Cap: time.Second}, func() error {
		calls++
		return coreerr.New(coreerr.KindUnavailable, "unavailable")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled to be joined in, got %v", err)
	}
}

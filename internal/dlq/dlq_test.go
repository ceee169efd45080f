// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package dlq

import "testing"

func TestPushAndLen(t *testing.T) {
	q := New(3, nil)
	q.Push(Entry{TransportName: "http", Category: CategoryParse})
	q.Push(Entry{TransportName: "mqtt", Category: CategoryGuards})
	if got := q.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

func TestPushDropsOldestWhenFull(t *testing.T) {
	q := New(2, nil)
	q.Push(Entry{Detail: "first"})
	q.Push(Entry{Detail: "second"})
	q.Push(Entry{Detail: "third"})

	if got := q.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}
	if got := q.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	snap := q.Snapshot()
	if snap[0].Detail != "second" || snap[1].Detail != "third" {
		t.Errorf("expected oldest entry to be dropped, got %+v", snap)
	}
}

func TestDrainRemovesOldestFirst(t *testing.T) {
	q := New(5, nil)
	q.Push(Entry{Detail: "a"})
	q.Push(Entry{Detail: "b"})
	q.Push(Entry{Detail: "c"})

	drained := q.Drain(2)
	if len(drained) != 2 || drained[0].Detail != "a" || drained[1].Detail != "b" {
		t.Errorf("unexpected drain result: %+v", drained)
	}
	if got := q.Len(); got != 1 {
		t.Errorf("Len() after drain = %d, want 1", got)
	}
}

func TestDrainCapsAtAvailableSize(t *testing.T) {
	q := New(5, nil)
	q.Push(Entry{Detail: "a"})
	drained := q.Drain(10)
	if len(drained) != 1 {
		t.Errorf("Drain(10) with 1 entry returned %d entries", len(drained))
	}
}

func TestSnapshotDoesNotRemoveEntries(t *testing.T) {
	q := New(5, nil)
	q.Push(Entry{Detail: "a"})
	_ = q.Snapshot()
	if got := q.Len(); got != 1 {
		t.Errorf("Snapshot() should not consume entries, Len() = %d", got)
	}
}

type fakeReplayer struct {
	replayed []Entry
	failFor  string
}

func (f *fakeReplayer) ReplayDLQEntry(e Entry) error {
	if e.Detail == f.failFor {
		return errTest
	}
	f.replayed = append(f.replayed, e)
	return nil
}

var errTest = &testError{"replay failed"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package predictbus

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/signalgate/ingestgw/pkg/schema"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []string
	failNext  bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("publish failed")
	}
	f.published = append(f.published, subject)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func TestPublishSendsFirstPointForSeries(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub, "predictions", 1.0)
	b.Publish(schema.DataPoint{SeriesID: "s1", Value: 1, Timestamp: 100})
	if pub.count() != 1 {
		t.Errorf("expected one publish, got %d", pub.count())
	}
}

func TestPublishDropsWithinThrottleWindow(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub, "predictions", 60.0)
	b.Publish(schema.DataPoint{SeriesID: "s1", Value: 1, Timestamp: 100})
	b.Publish(schema.DataPoint{SeriesID: "s1", Value: 2, Timestamp: 101})
	if pub.count() != 1 {
		t.Errorf("expected second publish to be throttled, got %d publishes", pub.count())
	}
	if b.DroppedCount() != 1 {
		t.Errorf("DroppedCount() = %d, want 1", b.DroppedCount())
	}
}

func TestPublishDoesNotThrottleDifferentSeries(t *testing.T) {
	pub := &fakePublisher{}
	b := New(pub, "predictions", 60.0)
	b.Publish(schema.DataPoint{SeriesID: "s1", Value: 1, Timestamp: 100})
	b.Publish(schema.DataPoint{SeriesID: "s2", Value: 2, Timestamp: 100})
	if pub.count() != 2 {
		t.Errorf("expected both series to publish independently, got %d", pub.count())
	}
}

func TestPublishFailureIsFireAndForget(t *testing.T) {
	pub := &fakePublisher{failNext: true}
	b := New(pub, "predictions", 0.001)
	// Must not panic or block; failure is logged and swallowed.
	b.Publish(schema.DataPoint{SeriesID: "s1", Value: 1, Timestamp: 100})
	time.Sleep(time.Millisecond)
	b.Publish(schema.DataPoint{SeriesID: "s1", Value: 2, Timestamp: 101})
	if pub.count() != 1 {
		t.Errorf("expected exactly one successful publish after the failure, got %d", pub.count())
	}
}

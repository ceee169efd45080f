// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/signalgate/ingestgw/pkg/schema"
)

type fakeRouter struct {
	mu     sync.Mutex
	routed []schema.DataPoint
	reject bool
}

func (f *fakeRouter) Route(ctx context.Context, point schema.DataPoint, transportName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return errRejected
	}
	f.routed = append(f.routed, point)
	return nil
}

func (f *fakeRouter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.routed)
}

var errRejected = rejectErr{}

type rejectErr struct{}

func (rejectErr) Error() string { return "guards_failed" }

func dialTestServer(t *testing.T, a *Adapter) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(a)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func TestHandshakeAdmitsValidConnect(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr, NowFn: func() float64 { return 1000 }})
	conn, cleanup := dialTestServer(t, a)
	defer cleanup()

	if err := conn.WriteJSON(connectFrame{Type: "connect", SourceID: "src-1", Domain: "infrastructure"}); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	var connected connectedFrame
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connected: %v", err)
	}
	if connected.Type != "connected" || connected.SessionID == "" {
		t.Errorf("unexpected connected frame: %+v", connected)
	}
}

func TestHandshakeRejectsInvalidDomain(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr})
	conn, cleanup := dialTestServer(t, a)
	defer cleanup()

	_ = conn.WriteJSON(connectFrame{Type: "connect", SourceID: "src-1", Domain: "not-a-real-domain"})
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok || closeErr.Code != closeCodeAuthFailed {
		t.Fatalf("expected close 1008, got %v", err)
	}
}

type denyAllAuth struct{}

func (denyAllAuth) ValidateAPIKey(ctx context.Context, apiKey, sourceID string) (bool, error) {
	return false, nil
}

func TestHandshakeRejectsInvalidAPIKey(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr, Auth: denyAllAuth{}})
	conn, cleanup := dialTestServer(t, a)
	defer cleanup()

	_ = conn.WriteJSON(connectFrame{Type: "connect", SourceID: "src-1", Domain: "infrastructure", APIKey: "bad"})
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok || closeErr.Code != closeCodeAuthFailed {
		t.Fatalf("expected close 1008, got %v", err)
	}
}

func TestDataFrameRoutesBatchAndAcks(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr, NowFn: func() float64 { return 1000 }})
	conn, cleanup := dialTestServer(t, a)
	defer cleanup()

	_ = conn.WriteJSON(connectFrame{Type: "connect", SourceID: "src-1", Domain: "infrastructure"})
	var connected connectedFrame
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connected: %v", err)
	}

	batch := dataFrame{Type: "data", Batch: []dataItem{
		{StreamID: "cpu_temp", Value: 42.0, Timestamp: 1000, Sequence: 1},
		{StreamID: "cpu_temp", Value: 43.0, Timestamp: 1001, Sequence: 2},
	}}
	if err := conn.WriteJSON(batch); err != nil {
		t.Fatalf("write data: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack ackFrame
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != "ack" || ack.SequenceUpTo != 2 || len(ack.Rejected) != 0 {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if fr.count() != 2 {
		t.Errorf("expected 2 points routed, got %d", fr.count())
	}
}

func TestDataFrameReportsRejectedItems(t *testing.T) {
	fr := &fakeRouter{reject: true}
	a := NewAdapter(Config{Router: fr, NowFn: func() float64 { return 1000 }})
	conn, cleanup := dialTestServer(t, a)
	defer cleanup()

	_ = conn.WriteJSON(connectFrame{Type: "connect", SourceID: "src-1", Domain: "infrastructure"})
	var connected connectedFrame
	_ = conn.ReadJSON(&connected)

	batch := dataFrame{Type: "data", Batch: []dataItem{{StreamID: "cpu_temp", Value: 1, Timestamp: 1000, Sequence: 1}}}
	_ = conn.WriteJSON(batch)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack ackFrame
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if len(ack.Rejected) != 1 || ack.Rejected[0].Index != 0 {
		t.Errorf("unexpected ack: %+v", ack)
	}
	if ack.SequenceUpTo != 0 {
		t.Errorf("SequenceUpTo = %d, want 0 since the only item was rejected", ack.SequenceUpTo)
	}
}

func TestBackpressureClosesWith1013WhenQueueSaturated(t *testing.T) {
	fr := &fakeRouter{}
	a := NewAdapter(Config{Router: fr, MaxInFlight: 1, NowFn: func() float64 { return 1000 }})
	conn, cleanup := dialTestServer(t, a)
	defer cleanup()

	_ = conn.WriteJSON(connectFrame{Type: "connect", SourceID: "src-1", Domain: "infrastructure"})
	var connected connectedFrame
	_ = conn.ReadJSON(&connected)

	// Flood frames without draining acks so the pending queue (capacity 1)
	// saturates and the server closes with 1013.
	batch := dataFrame{Type: "data", Batch: []dataItem{{StreamID: "s", Value: 1, Timestamp: 1}}}
	for i := 0; i < 10; i++ {
		if err := conn.WriteJSON(batch); err != nil {
			break
		}
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	sawClose := false
	for i := 0; i < 20; i++ {
		_, _, err := conn.ReadMessage()
		if closeErr, ok := err.(*websocket.CloseError); ok {
			if closeErr.Code == closeCodeTryAgainLater {
				sawClose = true
			}
			break
		}
		if err != nil {
			break
		}
	}
	if !sawClose {
		t.Fatalf("expected eventual close with code %d", closeCodeTryAgainLater)
	}
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package websocket implements the WebSocket transport adapter:
// ws://.../ingest/stream, a connect handshake followed by
// {type:data,batch:[...]} frames acknowledged with {type:ack,
// sequence_up_to,rejected}. Built on gorilla/websocket.
package websocket

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const transportName = "websocket"

// Router is the subset of internal/router.Router the adapter needs.
type Router interface {
	Route(ctx context.Context, point schema.DataPoint, transportName string) error
}

// AuthValidator checks a connect handshake's api_key against source_id.
type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, apiKey, sourceID string) (bool, error)
}

const (
	// DefaultMaxInFlight is the queued-frame backpressure threshold: above
	// it the server closes the connection with 1013.
	DefaultMaxInFlight = 100

	closeCodeAuthFailed    = 1008
	closeCodeTryAgainLater = 1013
)

type connectFrame struct {
	Type     string `json:"type"`
	SourceID string `json:"source_id"`
	Domain   string `json:"domain"`
	APIKey   string `json:"api_key"`
}

type connectedFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

type dataItem struct {
	StreamID  string         `json:"stream_id"`
	Value     float64        `json:"value"`
	Timestamp float64        `json:"timestamp"`
	Sequence  int64          `json:"sequence,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type dataFrame struct {
	Type  string     `json:"type"`
	Batch []dataItem `json:"batch"`
}

type rejectedItem struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type ackFrame struct {
	Type         string         `json:"type"`
	SequenceUpTo int64          `json:"sequence_up_to"`
	Rejected     []rejectedItem `json:"rejected"`
}

// Config bundles an Adapter's dependencies.
type Config struct {
	Router      Router
	Auth        AuthValidator
	MaxInFlight int
	NowFn       func() float64
}

// Adapter is the WebSocket transport.
type Adapter struct {
	router      Router
	auth        AuthValidator
	upgrader    websocket.Upgrader
	maxInFlight int
	nowFn       func() float64

	activeConnections atomic.Int64
}

func NewAdapter(cfg Config) *Adapter {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Adapter{
		router:      cfg.Router,
		auth:        cfg.Auth,
		maxInFlight: maxInFlight,
		nowFn:       cfg.NowFn,
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

func (a *Adapter) now() float64 {
	if a.nowFn != nil {
		return a.nowFn()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// MountRoutes registers GET /ingest/stream.
func (a *Adapter) MountRoutes(r *mux.Router) {
	r.HandleFunc("/ingest/stream", a.ServeHTTP).Methods(http.MethodGet)
}

// ActiveConnections reports the number of currently upgraded connections.
func (a *Adapter) ActiveConnections() int64 {
	return a.activeConnections.Load()
}

// ServeHTTP upgrades the request and runs the connection's frame loop.
func (a *Adapter) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Warnf("websocket transport: upgrade failed: %v", err)
		return
	}
	a.activeConnections.Add(1)
	defer a.activeConnections.Add(-1)
	defer conn.Close()

	session, ok := a.handshake(r.Context(), conn)
	if !ok {
		return
	}
	a.frameLoop(r.Context(), conn, session)
}

type session struct {
	id       string
	sourceID string
	domain   schema.Domain
}

// handshake reads the connect frame and either admits the connection or
// closes it with 1008.
func (a *Adapter) handshake(ctx context.Context, conn *websocket.Conn) (session, bool) {
	var connect connectFrame
	if err := conn.ReadJSON(&connect); err != nil || connect.Type != "connect" {
		closeWith(conn, closeCodeAuthFailed, "expected connect frame")
		return session{}, false
	}

	domain := schema.Domain(connect.Domain)
	if !domain.Valid() {
		closeWith(conn, closeCodeAuthFailed, "invalid domain")
		return session{}, false
	}

	if a.auth != nil {
		valid, err := a.auth.ValidateAPIKey(ctx, connect.APIKey, connect.SourceID)
		if err != nil || !valid {
			closeWith(conn, closeCodeAuthFailed, "invalid api_key")
			return session{}, false
		}
	}

	sess := session{id: uuid.NewString(), sourceID: connect.SourceID, domain: domain}
	if err := conn.WriteJSON(connectedFrame{Type: "connected", SessionID: sess.id}); err != nil {
		return session{}, false
	}
	return sess, true
}

// frameLoop reads {type:data,batch} frames until the connection closes,
// routing each batch item and acking it. A queue of
// maxInFlight pending frames backpressures the client: once full, the
// connection is closed with 1013 rather than buffering unboundedly.
func (a *Adapter) frameLoop(ctx context.Context, conn *websocket.Conn, sess session) {
	pending := make(chan dataFrame, a.maxInFlight)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for frame := range pending {
			ack := a.processFrame(ctx, sess, frame)
			if err := conn.WriteJSON(ack); err != nil {
				return
			}
		}
	}()

	for {
		var frame dataFrame
		if err := conn.ReadJSON(&frame); err != nil {
			break
		}
		if frame.Type != "data" {
			continue
		}
		select {
		case pending <- frame:
		default:
			closeWith(conn, closeCodeTryAgainLater, "too many in-flight frames")
			close(pending)
			<-done
			return
		}
	}
	close(pending)
	<-done
}

func (a *Adapter) processFrame(ctx context.Context, sess session, frame dataFrame) ackFrame {
	ack := ackFrame{Type: "ack", Rejected: []rejectedItem{}}
	for i, item := range frame.Batch {
		point := schema.DataPoint{
			SeriesID:   schema.DeriveSeriesID(sess.domain, sess.sourceID, item.StreamID),
			Value:      item.Value,
			Timestamp:  item.Timestamp,
			IngestedAt: a.now(),
			Domain:     sess.domain,
			SourceID:   sess.sourceID,
			Sequence:   item.Sequence,
			Metadata:   item.Metadata,
		}
		if err := a.router.Route(ctx, point, transportName); err != nil {
			ack.Rejected = append(ack.Rejected, rejectedItem{Index: i, Reason: reasonOf(err)})
			continue
		}
		if item.Sequence > ack.SequenceUpTo {
			ack.SequenceUpTo = item.Sequence
		}
	}
	return ack
}

func reasonOf(err error) string {
	if ce, ok := err.(*coreerr.Error); ok {
		return ce.Reason
	}
	return "internal_error"
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

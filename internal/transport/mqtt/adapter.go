// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mqtt implements the MQTT transport adapter: subscribes to the
// IoT-legacy topic and the generic per-stream topic pattern, decodes each
// retained payload into a DataPoint, and hands it to the router from a
// bounded worker pool — never from the broker client's own network-loop
// callback.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/signalgate/ingestgw/internal/coreerr"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

const (
	TopicIoTFilter     = "iot/sensors/+/readings"
	TopicGenericFilter = "+/+/+/data"

	DefaultQueueCapacity = 10_000
	DefaultWorkerCount    = 8

	qos = byte(1)
)

// Router is the subset of internal/router.Router the adapter needs.
type Router interface {
	Route(ctx context.Context, point schema.DataPoint, transportName string) error
}

// Client is the minimal surface the adapter needs from an MQTT broker
// connection, satisfied by eclipse/paho.mqtt.golang's Client.
type Client interface {
	Subscribe(topic string, qos byte, callback mqttlib.MessageHandler) mqttlib.Token
	Unsubscribe(topics ...string) mqttlib.Token
	Disconnect(quiesceMs uint)
	IsConnected() bool
}

// Stats is a snapshot of the adapter's counters.
type Stats struct {
	Received  int64
	Processed int64
	Dropped   int64
	Rejected  int64
}

// Config bundles an Adapter's dependencies.
type Config struct {
	Client        Client
	Router        Router
	QueueCapacity int
	WorkerCount   int
	NowFn         func() float64
}

type rawMessage struct {
	topic   string
	payload []byte
}

// Adapter is the MQTT transport.
type Adapter struct {
	client Client
	router Router
	nowFn  func() float64

	queue   chan rawMessage
	workers int

	wg     sync.WaitGroup
	cancel context.CancelFunc

	received  atomic.Int64
	processed atomic.Int64
	dropped   atomic.Int64
	rejected  atomic.Int64
}

func NewAdapter(cfg Config) *Adapter {
	capacity := cfg.QueueCapacity
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &Adapter{
		client:  cfg.Client,
		router:  cfg.Router,
		nowFn:   cfg.NowFn,
		queue:   make(chan rawMessage, capacity),
		workers: workers,
	}
}

func (a *Adapter) now() float64 {
	if a.nowFn != nil {
		return a.nowFn()
	}
	return float64(time.Now().UnixNano()) / 1e9
}

// Start subscribes to both topic filters and launches the worker pool. The
// broker callback only enqueues — it must not perform persistence on its
// network-loop callback — and never blocks on the router.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	for i := 0; i < a.workers; i++ {
		a.wg.Add(1)
		go a.worker(ctx)
	}

	if token := a.client.Subscribe(TopicIoTFilter, qos, a.onMessage); token.Wait() && token.Error() != nil {
		cancel()
		return coreerr.Wrap(coreerr.KindUnavailable, "mqtt_subscribe_failed", token.Error())
	}
	if token := a.client.Subscribe(TopicGenericFilter, qos, a.onMessage); token.Wait() && token.Error() != nil {
		cancel()
		return coreerr.Wrap(coreerr.KindUnavailable, "mqtt_subscribe_failed", token.Error())
	}
	return nil
}

// Stop unsubscribes, disconnects, and waits for in-flight workers to drain.
func (a *Adapter) Stop() {
	if a.client.IsConnected() {
		a.client.Unsubscribe(TopicIoTFilter, TopicGenericFilter)
		a.client.Disconnect(250)
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

// onMessage is the paho network-loop callback: enqueue-only, non-blocking.
func (a *Adapter) onMessage(_ mqttlib.Client, msg mqttlib.Message) {
	a.received.Add(1)
	select {
	case a.queue <- rawMessage{topic: msg.Topic(), payload: msg.Payload()}:
	default:
		a.dropped.Add(1)
		log.Warnf("mqtt transport: queue full, dropping message on topic %s", msg.Topic())
	}
}

func (a *Adapter) worker(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case raw := <-a.queue:
			a.handle(ctx, raw)
		}
	}
}

func (a *Adapter) handle(ctx context.Context, raw rawMessage) {
	point, err := parse(raw.topic, raw.payload, a.now())
	if err != nil {
		a.rejected.Add(1)
		log.Warnf("mqtt transport: %v", err)
		return
	}
	if err := a.router.Route(ctx, point, "mqtt"); err != nil {
		a.rejected.Add(1)
		return
	}
	a.processed.Add(1)
}

// Stats returns a snapshot of the adapter's counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Received:  a.received.Load(),
		Processed: a.processed.Load(),
		Dropped:   a.dropped.Load(),
		Rejected:  a.rejected.Load(),
	}
}

type iotPayload struct {
	SensorID   string  `json:"sensor_id"`
	Value      float64 `json:"value"`
	Timestamp  string  `json:"timestamp"`
	DeviceUUID string  `json:"device_uuid,omitempty"`
}

type genericPayload struct {
	Value     float64        `json:"value"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Sequence  int64          `json:"sequence,omitempty"`
}

// parse is a pure function: topic + payload + now -> a DataPoint or an
// error, with no side effects, so it can be table-tested without a broker.
func parse(topic string, payload []byte, now float64) (schema.DataPoint, error) {
	segments := strings.Split(topic, "/")

	if len(segments) == 4 && segments[0] == "iot" && segments[1] == "sensors" && segments[3] == "readings" {
		var p iotPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return schema.DataPoint{}, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_payload", err)
		}
		sensorID := segments[2]
		ts, err := parseISO8601(p.Timestamp, now)
		if err != nil {
			return schema.DataPoint{}, err
		}
		return schema.DataPoint{
			SeriesID:   sensorID,
			Value:      p.Value,
			Timestamp:  ts,
			IngestedAt: now,
			Domain:     schema.DomainIoT,
			SourceID:   p.DeviceUUID,
		}, nil
	}

	if len(segments) == 4 && segments[3] == "data" {
		domain := schema.Domain(segments[0])
		if domain == schema.DomainIoT {
			return schema.DataPoint{}, coreerr.New(coreerr.KindInvalidInput, "invalid_domain")
		}
		if !domain.Valid() {
			return schema.DataPoint{}, coreerr.New(coreerr.KindInvalidInput, "invalid_domain")
		}
		sourceID, streamID := segments[1], segments[2]
		var p genericPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return schema.DataPoint{}, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_payload", err)
		}
		ts, err := parseISO8601(p.Timestamp, now)
		if err != nil {
			return schema.DataPoint{}, err
		}
		return schema.DataPoint{
			SeriesID:   schema.DeriveSeriesID(domain, sourceID, streamID),
			Value:      p.Value,
			Timestamp:  ts,
			IngestedAt: now,
			Domain:     domain,
			SourceID:   sourceID,
			Sequence:   p.Sequence,
			Metadata:   p.Metadata,
		}, nil
	}

	return schema.DataPoint{}, coreerr.New(coreerr.KindInvalidInput, fmt.Sprintf("unrecognized_topic:%s", topic))
}

func parseISO8601(s string, fallback float64) (float64, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, coreerr.Wrap(coreerr.KindInvalidInput, "malformed_timestamp", err)
	}
	return float64(t.UnixNano()) / 1e9, nil
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command ingestgw is the data-ingestion gateway binary: it loads
// config.json, wires the ingestion components together, and starts
// whichever transports the Features toggles enable.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/redis/go-redis/v9"
	"github.com/signalgate/ingestgw/internal/auth"
	"github.com/signalgate/ingestgw/internal/config"
	"github.com/signalgate/ingestgw/internal/dedup"
	"github.com/signalgate/ingestgw/internal/dlq"
	"github.com/signalgate/ingestgw/internal/metrics"
	"github.com/signalgate/ingestgw/internal/pipeline"
	"github.com/signalgate/ingestgw/internal/predictbus"
	"github.com/signalgate/ingestgw/internal/repository"
	"github.com/signalgate/ingestgw/internal/resilience"
	"github.com/signalgate/ingestgw/internal/router"
	"github.com/signalgate/ingestgw/internal/storage"
	"github.com/signalgate/ingestgw/internal/streamstate"
	"github.com/signalgate/ingestgw/internal/transport/csv"
	httptransport "github.com/signalgate/ingestgw/internal/transport/http"
	mqtttransport "github.com/signalgate/ingestgw/internal/transport/mqtt"
	websockettransport "github.com/signalgate/ingestgw/internal/transport/websocket"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/nats"
	"github.com/signalgate/ingestgw/pkg/schema"
	"github.com/signalgate/ingestgw/pkg/tsstore"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cliInit()
	log.SetLogLevel(flagLogLevel)
	log.SetLogDateTime(flagLogDateTime)

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg := config.Keys

	legacy := initLegacyStore(cfg)
	genericValues := tsstore.New(time.Duration(cfg.Tuning.StaleTimeoutSeconds) * time.Second)
	startSweeper(genericValues)

	store := storage.New(legacy, genericValues)

	repo := streamstate.New(0, time.Duration(cfg.Tuning.CacheTTLSeconds)*time.Second,
		noStreamConfigRegistry, noOpStatePersister)

	dedupClient := initRedisClient(cfg.DedupStoreURL, "dedup")
	deduplicator := dedup.New(dedupClient, time.Duration(cfg.Tuning.DedupTTLSeconds)*time.Second)

	dlqRedisClient := initRedisClient(cfg.DedupStoreURL, "dlq overflow counter")
	deadLetters := dlq.New(cfg.Tuning.DLQMaxLength, dlqRedisClient)

	var bus *predictbus.Bus
	if natsClient := initNatsClient(cfg); natsClient != nil {
		bus = predictbus.New(natsClient, "predictions", cfg.Tuning.BusIntervalSeconds)
	}

	alertPipeline := pipeline.NewAlertPipeline(store, nil)
	warningPipeline := pipeline.NewWarningPipeline(store)
	predictionPipeline := pipeline.NewPredictionPipeline(store, busOrNil(bus))

	storageBreaker := resilience.NewBreaker("storage",
		uint32(cfg.Tuning.BreakerThreshold), time.Duration(cfg.Tuning.BreakerOpenSeconds)*time.Second)

	r := router.New(router.Config{
		Dedup:      deduplicator,
		Repo:       repo,
		DLQ:        deadLetters,
		Alert:      alertPipeline,
		Warning:    warningPipeline,
		Prediction: predictionPipeline,
		Active:     store,

		StorageBreaker: storageBreaker,
		RetryPolicy: resilience.Policy{
			MaxAttempts: cfg.Tuning.RetryMaxAttempts,
			Base:        time.Duration(cfg.Tuning.RetryBaseDelayMs) * time.Millisecond,
		},
	})

	replayWorker, err := dlq.NewReplayWorker(deadLetters, r, 60*time.Second, 0)
	if err != nil {
		log.Fatalf("dlq: failed to build replay worker: %v", err)
	}
	replayWorker.Start()
	defer replayWorker.Stop()

	var validator *auth.Validator
	if cfg.Features.DeviceAuthEnabled {
		validator = auth.New(auth.Config{
			GlobalKeys: globalKeysFromEnv(),
			JWTSecret:  []byte(os.Getenv("INGESTGW_JWT_SECRET")),
		})
	}

	reporter := metrics.NewReporter(deduplicator, deadLetters, map[string]metrics.NamedBreaker{
		"storage": storageBreaker,
	})

	var csvManager *csv.Manager
	if cfg.Features.CSVEnabled {
		csvManager = csv.NewManager(r, 0, nil)
	}

	httpAdapter := httptransport.NewAdapter(httptransport.Config{
		Router:     r,
		Devices:    store,
		Health:     store,
		Resilience: reporter,
		Auth:       authOrNil(validator),
		CSV:        csvManager,
	})

	muxRouter := buildRoutes(httpAdapter, validator, r, cfg)

	var mqttAdapter *mqtttransport.Adapter
	if cfg.Features.MQTTIngestEnabled || cfg.Features.GenericMQTTEnabled {
		mqttAdapter = startMQTT(cfg, r)
	}

	srv := buildServer(cfg, muxRouter)
	runAndWait(srv, mqttAdapter)
}

// initLegacyStore connects to the legacy relational backend
// when legacy-backend.host is configured; a deployment ingesting only
// generic-domain data can leave it empty, and every legacy-backend call
// then fails closed per internal/storage's design.
func initLegacyStore(cfg config.ProgramConfig) *repository.LegacyStore {
	if cfg.LegacyBackend.Host == "" {
		log.Infof("legacy backend not configured (legacy-backend.host empty), domain=\"iot\" ingestion will fail closed")
		return nil
	}
	driver := "mysql"
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
		cfg.LegacyBackend.User, cfg.LegacyBackend.Password,
		cfg.LegacyBackend.Host, cfg.LegacyBackend.Port, cfg.LegacyBackend.Database)
	repository.Connect(driver, dsn)
	return repository.NewLegacyStore(repository.GetConnection(), nil)
}

// initRedisClient parses a "redis://" URL into a client, or returns nil for
// "memory://" (or an empty URL), letting dedup/dlq's existing nil-client
// passthrough/best-effort paths take over rather than connecting to a
// service that was never configured.
func initRedisClient(url, purpose string) *redis.Client {
	if url == "" || url == "memory://" {
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Warnf("%s: invalid redis URL %q, running without it: %v", purpose, url, err)
		return nil
	}
	return redis.NewClient(opts)
}

// initNatsClient builds the prediction bus' publisher when bus-url-override
// names a NATS server; a deployment that never enables prediction
// publishing can leave it unset, and the prediction pipeline then simply
// skips publishing (see busOrNil).
func initNatsClient(cfg config.ProgramConfig) *nats.Client {
	if cfg.BusURLOverride == "" {
		return nil
	}
	client, err := nats.NewClient(&nats.NatsConfig{Address: cfg.BusURLOverride})
	if err != nil {
		log.Warnf("prediction bus: failed to connect to %q, predictions will not be published: %v", cfg.BusURLOverride, err)
		return nil
	}
	return client
}

func busOrNil(b *predictbus.Bus) pipeline.Publisher {
	if b == nil {
		return nil
	}
	return b
}

func wsAuthOrNil(v *auth.Validator) websockettransport.AuthValidator {
	if v == nil {
		return nil
	}
	return v
}

func authOrNil(v *auth.Validator) httptransport.DeviceAuthValidator {
	if v == nil {
		return nil
	}
	return v
}

// noStreamConfigRegistry is the default streamstate.ConfigLoader: no
// management surface for registering per-series StreamConfig exists yet,
// so every lookup reports "not found" and streamstate.Repository applies
// schema.DefaultStreamConfig, exactly the fallback path it documents.
func noStreamConfigRegistry(seriesID string, domain schema.Domain) (schema.StreamConfig, bool, error) {
	return schema.StreamConfig{}, false, nil
}

// noOpStatePersister: OperationalState durability beyond the in-process
// read-through cache is out of scope (the state machine already tolerates
// starting from STATE_INITIALIZING after a restart via its warm-up rule).
func noOpStatePersister(state schema.OperationalState) error {
	return nil
}

// globalKeysFromEnv loads the device-auth global key pool from
// INGESTGW_GLOBAL_KEYS, a comma-separated list, so operators can configure
// credentials without putting them in config.json.
func globalKeysFromEnv() map[string]struct{} {
	raw := os.Getenv("INGESTGW_GLOBAL_KEYS")
	if raw == "" {
		return nil
	}
	keys := make(map[string]struct{})
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys[k] = struct{}{}
		}
	}
	return keys
}

func startMQTT(cfg config.ProgramConfig, r *router.Router) *mqtttransport.Adapter {
	opts := mqttlib.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port)).
		SetClientID("signalgate-ingestgw").
		SetUsername(cfg.MQTT.Username).
		SetPassword(cfg.MQTT.Password).
		SetAutoReconnect(true)
	client := mqttlib.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Warnf("mqtt: failed to connect to %s:%d, MQTT ingestion disabled: %v", cfg.MQTT.Host, cfg.MQTT.Port, token.Error())
		return nil
	}

	adapter := mqtttransport.NewAdapter(mqtttransport.Config{Client: client, Router: r})
	if err := adapter.Start(context.Background()); err != nil {
		log.Warnf("mqtt: failed to subscribe, MQTT ingestion disabled: %v", err)
		return nil
	}
	log.Infof("mqtt: subscribed to %s and %s", mqtttransport.TopicIoTFilter, mqtttransport.TopicGenericFilter)
	return adapter
}

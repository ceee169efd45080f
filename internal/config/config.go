// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads the program configuration: a JSON file validated
// against pkg/schema's embedded config.schema.json, with
// environment-variable overrides for local development layered on top
// via godotenv.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/schema"
)

type LegacyBackend struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
}

type MQTT struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type Features struct {
	MQTTIngestEnabled      bool `json:"mqtt-ingest-enabled"`
	ModularReceiverEnabled bool `json:"modular-receiver-enabled"`
	GenericMQTTEnabled     bool `json:"generic-mqtt-enabled"`
	WebsocketEnabled       bool `json:"websocket-enabled"`
	CSVEnabled             bool `json:"csv-enabled"`
	DeviceAuthEnabled      bool `json:"device-auth-enabled"`
}

type Tuning struct {
	DedupTTLSeconds     int     `json:"dedup-ttl-seconds"`
	DLQMaxLength        int     `json:"dlq-max-length"`
	BreakerThreshold    int     `json:"breaker-threshold"`
	BreakerOpenSeconds  int     `json:"breaker-open-seconds"`
	RetryMaxAttempts    int     `json:"retry-max-attempts"`
	RetryBaseDelayMs    int     `json:"retry-base-delay-ms"`
	BusIntervalSeconds  float64 `json:"bus-interval-seconds"`
	CacheTTLSeconds     int     `json:"cache-ttl-seconds"`
	WarmupReadings      int     `json:"warmup-readings"`
	StaleTimeoutSeconds int     `json:"stale-timeout-seconds"`
}

// ProgramConfig is the full set of §6.6 recognized keys, plus Addr (the
// ambient HTTP listen address every transport's server is mounted on).
type ProgramConfig struct {
	Addr string `json:"addr"`

	LegacyBackend     LegacyBackend `json:"legacy-backend"`
	GenericBackendURL string        `json:"generic-backend-url"`
	DedupStoreURL     string        `json:"dedup-store-url"`
	MQTT              MQTT          `json:"mqtt"`
	Features          Features      `json:"features"`
	Tuning            Tuning        `json:"tuning"`
	BusURLOverride    string        `json:"bus-url-override"`
}

// Keys holds the process-wide configuration, populated by Init.
var Keys = ProgramConfig{
	Addr:              ":8080",
	GenericBackendURL: "memory://",
	DedupStoreURL:     "memory://",
	Tuning: Tuning{
		DedupTTLSeconds:     300,
		DLQMaxLength:        10000,
		BreakerThreshold:    5,
		BreakerOpenSeconds:  30,
		RetryMaxAttempts:    3,
		RetryBaseDelayMs:    100,
		BusIntervalSeconds:  1,
		CacheTTLSeconds:     300,
		WarmupReadings:      3,
		StaleTimeoutSeconds: 3600,
	},
	Features: Features{
		MQTTIngestEnabled:      true,
		ModularReceiverEnabled: true,
		GenericMQTTEnabled:     true,
		WebsocketEnabled:       true,
		CSVEnabled:             true,
		DeviceAuthEnabled:      true,
	},
}

// Init reads flagConfigFile (if it exists), validates it against the
// embedded config JSON Schema and decodes it over the defaults in Keys,
// then layers ApplyEnvOverrides on top.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
	} else {
		if err := schema.Validate(schema.ProgramConfig, bytes.NewReader(raw)); err != nil {
			return err
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&Keys); err != nil {
			return err
		}
	}

	ApplyEnvOverrides()
	return nil
}

// envKeys maps the connection, credential and URL keys (legacy backend,
// generic backend URL, dedup store URL, MQTT broker, bus-URL override) to
// the environment variable that overrides each. Feature toggles and tuning
// values are not read from the environment; they come only from the JSON
// file and the defaults. godotenv.Load is tried first (local-development
// .env file, missing in production is not an error) before os.Getenv reads.
var envKeys = struct {
	legacyHost, legacyPort, legacyUser, legacyPassword, legacyDatabase string
	genericBackendURL, dedupStoreURL                                  string
	mqttHost, mqttPort, mqttUsername, mqttPassword                    string
	busURLOverride                                                    string
}{
	legacyHost:        "INGESTGW_LEGACY_BACKEND_HOST",
	legacyPort:        "INGESTGW_LEGACY_BACKEND_PORT",
	legacyUser:        "INGESTGW_LEGACY_BACKEND_USER",
	legacyPassword:    "INGESTGW_LEGACY_BACKEND_PASSWORD",
	legacyDatabase:    "INGESTGW_LEGACY_BACKEND_DATABASE",
	genericBackendURL: "INGESTGW_GENERIC_BACKEND_URL",
	dedupStoreURL:     "INGESTGW_DEDUP_STORE_URL",
	mqttHost:          "INGESTGW_MQTT_HOST",
	mqttPort:          "INGESTGW_MQTT_PORT",
	mqttUsername:      "INGESTGW_MQTT_USERNAME",
	mqttPassword:      "INGESTGW_MQTT_PASSWORD",
	busURLOverride:    "INGESTGW_BUS_URL_OVERRIDE",
}

// ApplyEnvOverrides layers environment variables (and a local .env file,
// if present) on top of whatever Init already loaded from JSON.
func ApplyEnvOverrides() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: .env file present but unreadable: %v", err)
	}

	overrideString(&Keys.LegacyBackend.Host, envKeys.legacyHost)
	overrideInt(&Keys.LegacyBackend.Port, envKeys.legacyPort)
	overrideString(&Keys.LegacyBackend.User, envKeys.legacyUser)
	overrideString(&Keys.LegacyBackend.Password, envKeys.legacyPassword)
	overrideString(&Keys.LegacyBackend.Database, envKeys.legacyDatabase)
	overrideString(&Keys.GenericBackendURL, envKeys.genericBackendURL)
	overrideString(&Keys.DedupStoreURL, envKeys.dedupStoreURL)
	overrideString(&Keys.MQTT.Host, envKeys.mqttHost)
	overrideInt(&Keys.MQTT.Port, envKeys.mqttPort)
	overrideString(&Keys.MQTT.Username, envKeys.mqttUsername)
	overrideString(&Keys.MQTT.Password, envKeys.mqttPassword)
	overrideString(&Keys.BusURLOverride, envKeys.busURLOverride)
}

func overrideString(dst *string, envVar string) {
	if v, ok := os.LookupEnv(envVar); ok {
		*dst = v
	}
}

func overrideInt(dst *int, envVar string) {
	v, ok := os.LookupEnv(envVar)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("config: %s=%q is not an integer, ignoring", envVar, v)
		return
	}
	*dst = n
}

// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package auth validates the device-key / API-key / bearer credentials
// the §6.6 "device-auth enabled" toggle gates: a shared-secret key per
// source (falling back to a pool of operator-level keys when no source
// is known yet), or a bearer JWT carrying a "sub" claim naming the
// source. It never authenticates a human user or a browser session —
// every caller here is a machine producer.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/signalgate/ingestgw/internal/coreerr"
)

// KeyStore resolves the shared-secret key a given source is expected to
// present, scoping one key per device/source instead of one key for the
// whole deployment. Implementations may back this with the legacy
// device/sensor table, a config file, or a KV store.
type KeyStore interface {
	Lookup(ctx context.Context, sourceID string) (key string, ok bool, err error)
}

// Config bundles a Validator's credential sources. At least one of
// GlobalKeys, Store, or JWTSecret should be set or every request is
// rejected.
type Config struct {
	// Store resolves a per-source key, checked first when sourceID is known.
	Store KeyStore

	// GlobalKeys is a fallback pool of operator-level keys valid regardless
	// of source — the only option available to endpoints that have no
	// source identifier before the credential is checked (e.g.
	// /ingest/readings, keyed directly by sensor_id).
	GlobalKeys map[string]struct{}

	// JWTSecret, when set, additionally accepts an HS256 bearer token
	// whose "sub" claim names the source: a single shared HMAC secret
	// suited to machine-to-machine credentials.
	JWTSecret []byte
}

// Validator implements internal/transport/websocket.AuthValidator and the
// HTTP transport's request-level credential check.
type Validator struct {
	store      KeyStore
	globalKeys map[string]struct{}
	jwtSecret  []byte
}

func New(cfg Config) *Validator {
	return &Validator{
		store:      cfg.Store,
		globalKeys: cfg.GlobalKeys,
		jwtSecret:  cfg.JWTSecret,
	}
}

// ValidateAPIKey implements internal/transport/websocket.AuthValidator:
// checks apiKey against the per-source key (if sourceID is known and a
// Store is configured) or the global key pool otherwise.
func (v *Validator) ValidateAPIKey(ctx context.Context, apiKey, sourceID string) (bool, error) {
	if apiKey == "" {
		return false, nil
	}
	if sourceID != "" && v.store != nil {
		want, ok, err := v.store.Lookup(ctx, sourceID)
		if err != nil {
			return false, coreerr.Wrap(coreerr.KindUnavailable, "key_store_lookup_failed", err)
		}
		if ok {
			return constantTimeEqual(apiKey, want), nil
		}
	}
	return v.inGlobalPool(apiKey), nil
}

func (v *Validator) inGlobalPool(apiKey string) bool {
	if len(v.globalKeys) == 0 {
		return false
	}
	for want := range v.globalKeys {
		if constantTimeEqual(apiKey, want) {
			return true
		}
	}
	return false
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ValidateBearerToken parses an HS256 JWT and returns the source id
// carried in its "sub" claim: parse, check the signing method, extract
// "sub".
func (v *Validator) ValidateBearerToken(tokenString string) (sourceID string, err error) {
	if len(v.jwtSecret) == 0 {
		return "", coreerr.New(coreerr.KindInvalidInput, "bearer_auth_not_configured")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, coreerr.New(coreerr.KindInvalidInput, "unsupported_signing_method")
		}
		return v.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", coreerr.Wrap(coreerr.KindInvalidInput, "invalid_bearer_token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", coreerr.New(coreerr.KindInvalidInput, "invalid_bearer_claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", coreerr.New(coreerr.KindInvalidInput, "missing_sub_claim")
	}
	return sub, nil
}

// ValidateRequest implements internal/transport/http's device-auth check:
// X-Device-Key / X-API-Key are checked against the global key pool (no
// source id is known before the body is decoded for every ingest
// endpoint), falling back to a "Bearer <jwt>" Authorization header.
func (v *Validator) ValidateRequest(r *http.Request) error {
	if key := r.Header.Get("X-Device-Key"); key != "" {
		if v.inGlobalPool(key) {
			return nil
		}
		return coreerr.New(coreerr.KindInvalidInput, "invalid_device_key")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		if v.inGlobalPool(key) {
			return nil
		}
		return coreerr.New(coreerr.KindInvalidInput, "invalid_api_key")
	}

	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(authz, "Bearer ") {
		if _, err := v.ValidateBearerToken(strings.TrimPrefix(authz, "Bearer ")); err != nil {
			return err
		}
		return nil
	}

	return coreerr.New(coreerr.KindInvalidInput, "missing_device_credentials")
}

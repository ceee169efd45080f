// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of signalgate.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/signalgate/ingestgw/internal/auth"
	"github.com/signalgate/ingestgw/internal/config"
	"github.com/signalgate/ingestgw/internal/router"
	httptransport "github.com/signalgate/ingestgw/internal/transport/http"
	mqtttransport "github.com/signalgate/ingestgw/internal/transport/mqtt"
	websockettransport "github.com/signalgate/ingestgw/internal/transport/websocket"
	"github.com/signalgate/ingestgw/pkg/log"
	"github.com/signalgate/ingestgw/pkg/runtimeEnv"
	"github.com/signalgate/ingestgw/pkg/tsstore"
)

// buildRoutes mounts the HTTP batch transport (always on: it carries
// /health, /resilience/health, /metrics alongside the ingest endpoints)
// and, when enabled, the WebSocket transport onto one mux.Router, then
// wraps it in a compress/recover/CORS middleware stack.
func buildRoutes(httpAdapter *httptransport.Adapter, validator *auth.Validator, r *router.Router, cfg config.ProgramConfig) *mux.Router {
	mr := mux.NewRouter()
	httpAdapter.MountRoutes(mr)

	if cfg.Features.WebsocketEnabled {
		wsAdapter := websockettransport.NewAdapter(websockettransport.Config{
			Router: r,
			Auth:   wsAuthOrNil(validator),
		})
		wsAdapter.MountRoutes(mr)
	}

	mr.Use(handlers.CompressHandler)
	mr.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	mr.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization", "X-Device-Key", "X-API-Key"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))
	return mr
}

// buildServer wraps routes in a CustomLoggingHandler and a plain
// http.Server; it does not start listening.
func buildServer(cfg config.ProgramConfig, routes *mux.Router) *http.Server {
	logged := handlers.CustomLoggingHandler(io.Discard, routes, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %.02fkb, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, float32(params.Size)/1024,
			time.Since(params.TimeStamp).Milliseconds())
	})
	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      logged,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}
}

// startSweeper periodically evicts expired chunks from the generic
// time-series store via a time.Tick-driven background loop.
func startSweeper(store *tsstore.Store) {
	go func() {
		for range time.Tick(5 * time.Minute) {
			freed := store.Sweep(time.Now())
			if freed > 0 {
				log.Debugf("tsstore: swept %d expired chunks", freed)
			}
		}
	}()
}

// runAndWait starts srv, blocks until SIGINT/SIGTERM, then shuts
// everything down gracefully.
func runAndWait(srv *http.Server, mqttAdapter *mqtttransport.Adapter) {
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		log.Fatalf("starting http listener failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	runtimeEnv.SystemdNotifiy(true, "running")
	log.Infof("ingestgw listening at %s", strings.TrimPrefix(srv.Addr, ":"))

	<-sigs
	runtimeEnv.SystemdNotifiy(false, "shutting down")

	if mqttAdapter != nil {
		mqttAdapter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("graceful shutdown: %v", err)
	}
	<-done
	log.Infof("graceful shutdown complete")
}

// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// JobSync Ingestion Service
//
// Entry point for the inbound email webhook. It:
//  1. Loads configuration from .env, config.yaml and the environment
//  2. Connects the document store (memory, PostgreSQL or Firestore) and Redis
//  3. Wires the rate limiter, extraction model and dashboard notifiers
//  4. Serves the relay webhook and a health endpoint
//  5. On SIGTERM/SIGINT stops accepting mail and waits for in-flight
//     classification before closing connections
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jobsync/ingestion/internal/app"
	"github.com/jobsync/ingestion/internal/config"
	"github.com/jobsync/ingestion/internal/logger"
	"github.com/jobsync/ingestion/internal/webhook"
)

func main() {
	if err := run(); err != nil {
		zap.L().Error("ingestion service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run() error {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		// The level is unknown until the config loads.
		_, _ = logger.New("info")
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting JobSync ingestion service",
		zap.String("store", cfg.Store.Backend),
		zap.String("rate_limit_backend", cfg.RateLimit.Backend),
		zap.Int("daily_limit", cfg.RateLimit.MaxPerDay),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// --- Backends and pipeline ---
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	handler := webhook.NewHandler(a.Ingestor, a.Classifier, a.Limiter.Limit(), log)
	router := handler.Router()
	router.GET("/ready", func(c *gin.Context) {
		if err := a.Check(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	g, gctx := errgroup.WithContext(ctx)

	ready, err := webhook.Serve(gctx, cfg.Server.Port, router, log)
	if err != nil {
		return err
	}
	<-ready

	// --- Graceful Shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		log.Info("received shutdown signal, waiting for classification tasks",
			zap.Duration("timeout", cfg.Server.ShutdownTimeout),
		)

		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.Classifier.Wait(waitCtx); err != nil {
			log.Warn("classification tasks still running at shutdown", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("ingestion service stopped")
	return nil
}

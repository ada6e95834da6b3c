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

// Package app wires configuration into a running pipeline: the document
// store, Redis, the rate limiter, the extraction model and the notifiers.
// Both commands build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	firebase "firebase.google.com/go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/jobsync/ingestion/internal/config"
	"github.com/jobsync/ingestion/internal/dedup"
	"github.com/jobsync/ingestion/internal/extract"
	"github.com/jobsync/ingestion/internal/notify"
	"github.com/jobsync/ingestion/internal/pipeline"
	"github.com/jobsync/ingestion/internal/ratelimit"
	"github.com/jobsync/ingestion/internal/sender"
	"github.com/jobsync/ingestion/internal/store"
	fsstore "github.com/jobsync/ingestion/internal/store/firestore"
	"github.com/jobsync/ingestion/internal/store/memory"
	"github.com/jobsync/ingestion/internal/store/postgres"
)

// Backend is a document store that can also keep the rate counter.
type Backend interface {
	store.Store
	ratelimit.CounterStore
}

// App holds the wired pipeline and the resources behind it.
type App struct {
	Store      Backend
	Limiter    *ratelimit.Limiter
	Ingestor   *pipeline.Ingestor
	Classifier *pipeline.Classifier

	checks  map[string]func(context.Context) error
	closers []func() error
}

// New connects every configured backend. On error, anything already
// opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{checks: make(map[string]func(context.Context) error)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var fb *firebase.App
	firebaseApp := func() (*firebase.App, error) {
		if fb != nil {
			return fb, nil
		}
		created, ferr := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Store.FirestoreProject}, googleOptions(cfg)...)
		if ferr != nil {
			return nil, fmt.Errorf("init firebase app: %w", ferr)
		}
		fb = created
		return fb, nil
	}

	// --- Document store ---
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("create postgres pool: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		pg, err := postgres.New(ctx, pool, logger)
		if err != nil {
			return nil, err
		}
		a.Store = pg
		a.checks["postgres"] = pg.Ping
		logger.Info("connected to PostgreSQL")

	case config.BackendFirestore:
		client, err := firestoreClient(ctx, cfg, firebaseApp)
		if err != nil {
			return nil, err
		}
		fs := fsstore.New(client, logger)
		a.Store = fs
		a.closers = append(a.closers, fs.Close)
		logger.Info("connected to Firestore", zap.String("project", cfg.Store.FirestoreProject))

	default:
		a.Store = memory.New()
		logger.Warn("using in-memory store, data is lost on restart")
	}

	// --- Redis ---
	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		a.closers = append(a.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("connected to Redis")
	}

	// --- Rate limiter ---
	var counter ratelimit.CounterStore = a.Store
	if cfg.RateLimit.Backend == config.BackendRedis {
		if rdb == nil {
			return nil, errors.New("redis rate limiter needs a redis url")
		}
		counter = ratelimit.NewRedisCounter(rdb)
	}
	a.Limiter = ratelimit.New(counter, cfg.RateLimit.MaxPerDay, logger)

	// Without Redis there is no redelivery filter.
	var deduper pipeline.Deduper
	if rdb != nil {
		deduper = dedup.NewFilter(rdb, cfg.Redis.DedupTTL, logger)
	}

	// --- Extraction ---
	gen, err := extract.NewGenerator(ctx, extract.Config{
		Provider:     cfg.AI.Provider,
		APIKey:       cfg.AI.APIKey,
		Model:        cfg.AI.Model,
		BaseURL:      cfg.AI.BaseURL,
		Temperature:  cfg.AI.Temperature,
		MaxTokens:    cfg.AI.MaxTokens,
		ClientID:     cfg.AI.ClientID,
		ClientSecret: cfg.AI.ClientSecret,
		TokenURL:     cfg.AI.TokenURL,
		Scopes:       cfg.AI.Scopes,
	})
	if err != nil {
		return nil, err
	}
	var extractor pipeline.Extractor
	if gen != nil {
		if c, ok := gen.(io.Closer); ok {
			a.closers = append(a.closers, c.Close)
		}
		extractor = extract.NewClient(gen, logger)
		logger.Info("extraction enabled", zap.String("provider", cfg.AI.Provider))
	} else {
		logger.Warn("no extraction credentials, emails will stay pending")
	}

	// --- Notifiers ---
	var notifiers []notify.Notifier
	if cfg.Notify.RedisQueue != "" && rdb != nil {
		notifiers = append(notifiers, notify.NewRedisPublisher(rdb, cfg.Notify.RedisQueue, logger))
	}
	if cfg.Notify.FCM {
		fbApp, err := firebaseApp()
		if err != nil {
			return nil, err
		}
		mc, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, fmt.Errorf("init firebase messaging: %w", err)
		}
		notifiers = append(notifiers, notify.NewFCMPublisher(mc, logger))
	}
	if cfg.Notify.PubSubTopic != "" {
		ps, err := pubsub.NewClient(ctx, cfg.Store.FirestoreProject, googleOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub := notify.NewPubSubPublisher(ps, cfg.Notify.PubSubTopic, logger)
		a.closers = append(a.closers, func() error { pub.Stop(); return ps.Close() })
		notifiers = append(notifiers, pub)
	}

	resolver := sender.NewResolver(sender.Options{
		InboundDomain:    cfg.Inbound.Domain,
		RelayDomain:      cfg.Inbound.RelayDomain,
		ForwarderMarkers: cfg.Inbound.ForwarderMarkers,
		PersonalDomains:  cfg.Inbound.PersonalDomains,
	})
	a.Ingestor = pipeline.NewIngestor(resolver, a.Store, a.Store, a.Limiter, deduper, logger)
	a.Classifier = pipeline.NewClassifier(extractor, a.Store, a.Store, a.Store, notify.NewMulti(logger, notifiers...), logger)
	return a, nil
}

// Check runs every health check and reports the first failure by name.
func (a *App) Check(ctx context.Context) error {
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s unhealthy: %w", name, err)
		}
	}
	return nil
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func googleOptions(cfg *config.Config) []option.ClientOption {
	if cfg.Store.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.Store.CredentialsFile)}
}

// firestoreClient uses the Firebase app for the default database and a
// direct client for a named one.
func firestoreClient(ctx context.Context, cfg *config.Config, firebaseApp func() (*firebase.App, error)) (*firestore.Client, error) {
	if db := cfg.Store.FirestoreDatabase; db != "" && db != firestore.DefaultDatabaseID {
		client, err := firestore.NewClientWithDatabase(ctx, cfg.Store.FirestoreProject, db, googleOptions(cfg)...)
		if err != nil {
			return nil, fmt.Errorf("create firestore client: %w", err)
		}
		return client, nil
	}
	fbApp, err := firebaseApp()
	if err != nil {
		return nil, err
	}
	client, err := fbApp.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return client, nil
}

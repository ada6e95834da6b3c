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

package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/jobsync/ingestion/internal/config"
	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/notify"
	"github.com/jobsync/ingestion/internal/pipeline"
	"github.com/jobsync/ingestion/internal/sender"
	"github.com/jobsync/ingestion/internal/store/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: 8080},
		Inbound:   config.InboundConfig{Domain: "jobsync.fyi"},
		RateLimit: config.RateLimitConfig{MaxPerDay: 2, Backend: config.BackendStore},
		Store:     config.StoreConfig{Backend: config.BackendMemory},
		AI:        config.AIConfig{Provider: "gemini"},
	}
}

func testInput(messageID string) sender.Input {
	return sender.Input{
		Envelope: sender.Envelope{From: "maihe88@gmail.com", To: "abc123@jobsync.fyi"},
		Headers:  map[string]string{"Subject": "Fwd: Hello", "Message-ID": messageID},
		Plain:    "---------- Forwarded message ---------\nFrom: HR <hr@acme.com>\n\nHello",
	}
}

func TestNew_MemoryWithoutRedis(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Limiter.Limit() != 2 {
		t.Errorf("limit = %d", a.Limiter.Limit())
	}
	if err := a.Check(ctx); err != nil {
		t.Errorf("Check: %v", err)
	}

	mem := a.Store.(*memory.Store)
	mem.AddUser("ABC123", "user-1")

	for i, want := range []pipeline.Status{pipeline.Accepted, pipeline.Accepted, pipeline.RateLimited} {
		out, err := a.Ingestor.Ingest(ctx, testInput("<same@x>"))
		if err != nil || out.Status != want {
			t.Fatalf("ingest %d = %s, %v; want %s", i, out.Status, err, want)
		}
	}

	// No extraction credentials: the email stays pending.
	email := mem.RawEmails()[0]
	if err := a.Classifier.Classify(ctx, &email, "user-1"); !errors.Is(err, pipeline.ErrNotConfigured) {
		t.Errorf("Classify err = %v", err)
	}
}

func TestNew_RedisBackedLimiterAndDedup(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	cfg := testConfig()
	cfg.Redis = config.RedisConfig{URL: "redis://" + mr.Addr() + "/0"}
	cfg.RateLimit.Backend = config.BackendRedis
	cfg.Notify.RedisQueue = notify.DefaultQueue

	ctx := context.Background()
	a, err := New(ctx, cfg, zaptest.NewLogger(t))
	if err != nil {
		mr.Close()
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	a.Store.(*memory.Store).AddUser("ABC123", "user-1")

	if err := a.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}

	out, err := a.Ingestor.Ingest(ctx, testInput("<m1@x>"))
	if err != nil || out.Status != pipeline.Accepted {
		t.Fatalf("first = %s, %v", out.Status, err)
	}
	out, err = a.Ingestor.Ingest(ctx, testInput("<m1@x>"))
	if err != nil || out.Status != pipeline.Duplicate {
		t.Fatalf("redelivery = %s, %v", out.Status, err)
	}

	key := "jobsync:rate:" + models.RateCounterKey("maihe88@gmail.com", time.Now())
	if got := mr.HGet(key, "count"); got != "1" {
		t.Errorf("redis count = %q, want 1", got)
	}

	mr.Close()
	if err := a.Check(ctx); err == nil {
		t.Error("Check passed with redis down")
	}
}

func TestNew_RejectsBadRedisURL(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.URL = "not-a-url"
	if _, err := New(context.Background(), cfg, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error")
	}
}

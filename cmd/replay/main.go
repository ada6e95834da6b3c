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

// JobSync Payload Replay Command
//
// Standalone CLI tool that feeds saved relay payloads (CloudMailin JSON or
// raw .eml files) through ingestion and classification using the same
// configuration as the server. Intended for seeding data on new
// deployments and for reproducing parsing issues.
//
// Usage:
//
//	go run ./cmd/replay/ [--concurrency 4] [--user ABC123=uid] <file-or-dir>...
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/app"
	"github.com/jobsync/ingestion/internal/config"
	"github.com/jobsync/ingestion/internal/logger"
	"github.com/jobsync/ingestion/internal/replay"
	"github.com/jobsync/ingestion/internal/store/memory"
)

func main() {
	// --- CLI Flags ---
	concurrencyFlag := flag.Int("concurrency", 4, "Number of payloads processed at once")
	usersFlag := flag.String("user", "", "Comma-separated CODE=userID pairs to seed (memory store only)")
	noClassifyFlag := flag.Bool("no-classify", false, "Store emails without calling the extraction model")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one payload file or directory is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	paths, err := replay.Expand(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialise pipeline", zap.Error(err))
		os.Exit(1)
	}
	defer a.Close()

	if *usersFlag != "" {
		mem, ok := a.Store.(*memory.Store)
		if !ok {
			log.Error("--user only applies to the memory store", zap.String("store", cfg.Store.Backend))
			os.Exit(1)
		}
		for _, pair := range strings.Split(*usersFlag, ",") {
			code, userID, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || code == "" || userID == "" {
				log.Error("invalid --user pair", zap.String("pair", pair))
				os.Exit(1)
			}
			mem.AddUser(code, userID)
		}
	}

	runnerCfg := replay.RunnerConfig{
		Ingester:    a.Ingestor,
		Concurrency: *concurrencyFlag,
		Logger:      log,
	}
	if !*noClassifyFlag {
		runnerCfg.Classifier = a.Classifier
	}

	log.Info("starting replay", zap.Int("files", len(paths)))

	// --- Run Replay ---
	result, err := replay.NewRunner(runnerCfg).Run(ctx, paths)
	if err != nil {
		log.Error("replay failed", zap.Error(err))
		os.Exit(1)
	}

	// --- Summary ---
	for _, fr := range result.Files {
		fields := []zap.Field{
			zap.String("path", fr.Path),
			zap.String("status", fr.Status),
			zap.String("email_id", fr.EmailID),
			zap.Bool("classified", fr.Classified),
		}
		if fr.Err != nil {
			fields = append(fields, zap.Error(fr.Err))
		}
		log.Info("file result", fields...)
	}

	if result.Errors > 0 {
		os.Exit(2)
	}
}

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

// Package replay pushes saved relay payloads through the pipeline without
// the webhook, classifying each accepted email before moving on. It is
// used to seed new deployments and to reproduce parsing issues locally.
package replay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/pipeline"
	"github.com/jobsync/ingestion/internal/sender"
	"github.com/jobsync/ingestion/internal/webhook"
)

// Ingester is the synchronous half of the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, in sender.Input) (pipeline.Outcome, error)
}

// Classifier classifies one stored email in the foreground.
type Classifier interface {
	Classify(ctx context.Context, email *models.RawEmail, userID string) error
}

// FileResult is the outcome of one payload file.
type FileResult struct {
	Path       string
	Status     string // ingestion status, or "error"
	EmailID    string
	Classified bool
	Err        error
}

// Result summarises a replay run.
type Result struct {
	Files      []FileResult
	Accepted   int
	Skipped    int // unknown user or duplicate
	Limited    int
	Classified int
	Errors     int
	Elapsed    time.Duration
}

// Runner replays payload files.
type Runner struct {
	ingester    Ingester
	classifier  Classifier
	concurrency int
	logger      *zap.Logger
}

// RunnerConfig holds dependencies for the replay runner.
type RunnerConfig struct {
	Ingester    Ingester
	Classifier  Classifier // nil skips classification
	Concurrency int
	Logger      *zap.Logger
}

// NewRunner creates a replay runner.
func NewRunner(cfg RunnerConfig) *Runner {
	n := cfg.Concurrency
	if n <= 0 {
		n = 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		ingester:    cfg.Ingester,
		classifier:  cfg.Classifier,
		concurrency: n,
		logger:      logger,
	}
}

// Run replays every file. A failing file is recorded and does not stop
// the run; only context cancellation does.
func (r *Runner) Run(ctx context.Context, paths []string) (*Result, error) {
	start := time.Now()
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.replayFile(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Files: results, Elapsed: time.Since(start)}
	for _, fr := range results {
		switch {
		case fr.Err != nil:
			res.Errors++
		case fr.Status == pipeline.Accepted.String():
			res.Accepted++
		case fr.Status == pipeline.RateLimited.String():
			res.Limited++
		default:
			res.Skipped++
		}
		if fr.Classified {
			res.Classified++
		}
	}

	r.logger.Info("replay complete",
		zap.Int("files", len(paths)),
		zap.Int("accepted", res.Accepted),
		zap.Int("classified", res.Classified),
		zap.Int("skipped", res.Skipped),
		zap.Int("rate_limited", res.Limited),
		zap.Int("errors", res.Errors),
		zap.Duration("elapsed", res.Elapsed),
	)
	return res, nil
}

func (r *Runner) replayFile(ctx context.Context, path string) FileResult {
	fr := FileResult{Path: path, Status: "error"}

	in, err := LoadPayload(path)
	if err != nil {
		fr.Err = err
		r.logger.Warn("replay: could not load payload", zap.String("path", path), zap.Error(err))
		return fr
	}

	out, err := r.ingester.Ingest(ctx, in)
	if err != nil {
		fr.Err = err
		r.logger.Warn("replay: ingestion failed", zap.String("path", path), zap.Error(err))
		return fr
	}
	fr.Status = out.Status.String()
	if out.Status != pipeline.Accepted {
		return fr
	}
	fr.EmailID = out.Email.ID

	if r.classifier == nil {
		return fr
	}
	if err := r.classifier.Classify(ctx, out.Email, out.UserID); err != nil {
		// The email is stored; its status records what went wrong.
		r.logger.Warn("replay: classification did not complete",
			zap.String("path", path),
			zap.String("email_id", out.Email.ID),
			zap.Error(err),
		)
		return fr
	}
	fr.Classified = true
	return fr
}

// LoadPayload reads a saved payload. Files ending in .eml are raw RFC 822
// messages; anything else is CloudMailin JSON.
func LoadPayload(path string) (sender.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return sender.Input{}, fmt.Errorf("read payload: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".eml") {
		return webhook.ParseMIME(data, url.Values{})
	}
	return webhook.ParseJSON(data)
}

// Expand turns files and directories into a sorted list of payload files.
func Expand(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".json" && ext != ".eml") {
				continue
			}
			out = append(out, filepath.Join(arg, e.Name()))
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no payload files found")
	}
	sort.Strings(out)
	return out, nil
}

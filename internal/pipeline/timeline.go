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

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/extract"
	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/store"
)

// summaryFallbackChars is how much of the body stands in for a missing
// model summary.
const summaryFallbackChars = 200

// TimelineWriter appends history entries, retrying a failed write once.
type TimelineWriter struct {
	store      store.TimelineStore
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewTimelineWriter creates a TimelineWriter.
func NewTimelineWriter(ts store.TimelineStore, logger *zap.Logger) *TimelineWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimelineWriter{store: ts, retryDelay: 500 * time.Millisecond, logger: logger}
}

// Write appends entry. The entry ID is reused on retry so a store that
// honours it cannot end up with two copies.
func (w *TimelineWriter) Write(ctx context.Context, entry *models.TimelineEntry) error {
	err := w.store.AppendTimeline(ctx, entry)
	if err == nil {
		return nil
	}

	w.logger.Warn("timeline write failed, retrying",
		zap.String("job_id", entry.JobID),
		zap.String("email_id", entry.EmailID),
		zap.Error(err),
	)

	select {
	case <-ctx.Done():
		return fmt.Errorf("append timeline: %w", err)
	case <-time.After(w.retryDelay):
	}

	if err := w.store.AppendTimeline(ctx, entry); err != nil {
		return fmt.Errorf("append timeline after retry: %w", err)
	}
	return nil
}

// timelineSummary prefers the model's summary and falls back to the start
// of the body.
func timelineSummary(res *extract.Result, body string) string {
	if res.EmailSummary != nil {
		if s := strings.TrimSpace(*res.EmailSummary); s != "" {
			return s
		}
	}
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= summaryFallbackChars {
		return body
	}
	return string([]rune(body)[:summaryFallbackChars])
}

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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/extract"
	"github.com/jobsync/ingestion/internal/jobs"
	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/notify"
	"github.com/jobsync/ingestion/internal/stage"
	"github.com/jobsync/ingestion/internal/store"
)

// ErrNotConfigured is returned by Classify when no extractor is wired.
var ErrNotConfigured = errors.New("extraction not configured")

// Extractor turns email content into structured fields.
type Extractor interface {
	Extract(ctx context.Context, req extract.Request) (*extract.Result, error)
}

// Classifier performs the asynchronous half of the pipeline.
type Classifier struct {
	extractor Extractor
	jobs      store.JobStore
	emails    store.RawEmailStore
	timeline  *TimelineWriter
	notifier  notify.Notifier
	logger    *zap.Logger

	now   func() time.Time
	newID func() string

	wg sync.WaitGroup
}

// NewClassifier wires a Classifier. A nil extractor leaves every email
// pending; a nil notifier disables refresh events.
func NewClassifier(extractor Extractor, js store.JobStore, emails store.RawEmailStore, ts store.TimelineStore, notifier notify.Notifier, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Classifier{
		extractor: extractor,
		jobs:      js,
		emails:    emails,
		timeline:  NewTimelineWriter(ts, logger),
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Spawn classifies email in the background. The task is detached from
// any request context and recovers from panics.
func (c *Classifier) Spawn(email *models.RawEmail, userID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("classification panicked",
					zap.String("email_id", email.ID),
					zap.Any("panic", r),
				)
			}
		}()
		if err := c.Classify(context.Background(), email, userID); err != nil {
			c.logger.Warn("classification did not complete",
				zap.String("email_id", email.ID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until every spawned task has finished or ctx is done.
func (c *Classifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Classify extracts fields from email, upserts the matching application,
// appends a timeline entry and marks the email completed.
//
// When the extractor is missing or unreachable the email is left pending.
// A malformed answer or a store failure marks it failed. A timeline entry
// that cannot be written after one retry is recorded on the email, which
// still completes.
func (c *Classifier) Classify(ctx context.Context, email *models.RawEmail, userID string) error {
	log := c.logger.With(zap.String("email_id", email.ID), zap.String("user_id", userID))

	if c.extractor == nil {
		log.Info("extraction not configured, leaving email pending")
		return ErrNotConfigured
	}

	res, err := c.extractor.Extract(ctx, extract.Request{
		Sender:  email.Sender(),
		Subject: email.Subject,
		SentAt:  email.OriginalSentAt,
		Body:    email.BodyContent,
	})
	if errors.Is(err, extract.ErrUnavailable) {
		log.Warn("extraction unavailable, leaving email pending", zap.Error(err))
		return err
	}
	if err != nil {
		return c.fail(ctx, email.ID, err)
	}

	now := c.now().UTC()
	job, created, err := jobs.Upsert(ctx, c.jobs, jobs.Incoming{
		UserID:       userID,
		TrackingCode: email.TrackingCode,
		EmailID:      email.ID,
		Company:      res.Company,
		Title:        res.JobTitle,
		Stage:        res.CurrentStage,
		Salary:       res.Salary,
		Location:     res.Location,
		Contact:      res.Contact,
		Notes:        res.Notes,
	}, now)
	if err != nil {
		return c.fail(ctx, email.ID, fmt.Errorf("upsert job: %w", err))
	}

	entry := &models.TimelineEntry{
		ID:           c.newID(),
		JobID:        job.ID,
		UserID:       userID,
		TrackingCode: email.TrackingCode,
		EmailID:      email.ID,
		Stage:        entryStage(res.CurrentStage, job.CurrentStage),
		Subject:      email.Subject,
		Sender:       email.Sender(),
		SentAt:       email.OriginalSentAt,
		Summary:      timelineSummary(res, email.BodyContent),
		Notes:        res.Notes,
		CreatedAt:    now,
	}
	var timelineErr *string
	if err := c.timeline.Write(ctx, entry); err != nil {
		log.Error("timeline entry lost", zap.String("job_id", job.ID), zap.Error(err))
		timelineErr = models.StringPtr(err.Error())
	}

	jobID := job.ID
	if err := c.emails.UpdateRawEmailStatus(ctx, email.ID, models.StatusUpdate{
		Status:      models.StatusCompleted,
		Processed:   true,
		LinkedJobID: &jobID,
		Error:       timelineErr,
	}); err != nil {
		return c.fail(ctx, email.ID, fmt.Errorf("mark email completed: %w", err))
	}

	log.Info("classified email",
		zap.String("job_id", job.ID),
		zap.Bool("created", created),
		zap.String("company", job.Company),
		zap.String("stage", job.CurrentStage.String()),
	)

	c.publish(ctx, job, email.ID, created, now)
	return nil
}

// fail records cause on the email and returns it.
func (c *Classifier) fail(ctx context.Context, emailID string, cause error) error {
	c.logger.Warn("classification failed",
		zap.String("email_id", emailID),
		zap.Error(cause),
	)
	msg := cause.Error()
	if err := c.emails.UpdateRawEmailStatus(ctx, emailID, models.StatusUpdate{
		Status: models.StatusFailed,
		Error:  &msg,
	}); err != nil {
		return errors.Join(cause, fmt.Errorf("mark email failed: %w", err))
	}
	return cause
}

func (c *Classifier) publish(ctx context.Context, job models.JobApplication, emailID string, created bool, now time.Time) {
	typ := models.JobUpdated
	if created {
		typ = models.JobCreated
	}
	ev := models.JobEvent{
		ID:           c.newID(),
		Type:         typ,
		JobID:        job.ID,
		UserID:       job.UserID,
		TrackingCode: job.TrackingCode,
		EmailID:      emailID,
		Company:      job.Company,
		Title:        job.Title,
		Stage:        job.CurrentStage,
		OccurredAt:   now,
	}
	if err := c.notifier.JobUpdated(ctx, ev); err != nil {
		c.logger.Warn("job refresh notification failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}

// entryStage is the stage the email itself reported, or the application's
// stage after the update when the model gave none.
func entryStage(detected *stage.Stage, current stage.Stage) stage.Stage {
	if detected != nil && detected.Valid() {
		return *detected
	}
	return current
}

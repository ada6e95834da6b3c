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

// Package postgres provides a Postgres-backed implementation of the
// ingestion stores and the daily rate counter.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/ratelimit"
	"github.com/jobsync/ingestion/internal/stage"
	"github.com/jobsync/ingestion/internal/store"
)

// Store persists raw emails, job applications, timeline entries, users and
// rate counters in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a store backed by the given pool and ensures its tables exist.
func New(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{pool: pool, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("postgres store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			tracking_code TEXT PRIMARY KEY,
			user_id       TEXT NOT NULL,
			created_at    TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS raw_emails (
			id                TEXT PRIMARY KEY,
			original_sender   TEXT,
			forwarder_email   TEXT NOT NULL DEFAULT '',
			receiver_address  TEXT NOT NULL DEFAULT '',
			tracking_code     TEXT NOT NULL DEFAULT '',
			original_sent_at  TEXT NOT NULL DEFAULT '',
			subject           TEXT NOT NULL DEFAULT '',
			body_content      TEXT NOT NULL DEFAULT '',
			message_id        TEXT NOT NULL DEFAULT '',
			received_at       TIMESTAMPTZ NOT NULL,
			processed         BOOLEAN NOT NULL DEFAULT FALSE,
			processing_status TEXT NOT NULL DEFAULT 'pending',
			linked_job_id     TEXT,
			processing_error  TEXT,
			updated_at        TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_raw_emails_status ON raw_emails(processing_status);

		CREATE TABLE IF NOT EXISTS job_applications (
			id               TEXT PRIMARY KEY,
			seq              BIGSERIAL,
			user_id          TEXT NOT NULL,
			tracking_code    TEXT NOT NULL,
			company          TEXT NOT NULL,
			title            TEXT NOT NULL,
			current_stage    TEXT NOT NULL,
			salary           TEXT,
			location         TEXT,
			contact          TEXT,
			notes            TEXT,
			applied_at       TIMESTAMPTZ NOT NULL,
			last_updated_at  TIMESTAMPTZ NOT NULL,
			linked_email_ids TEXT[] NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_scope ON job_applications(user_id, tracking_code, seq);

		CREATE TABLE IF NOT EXISTS timeline_entries (
			id            TEXT PRIMARY KEY,
			seq           BIGSERIAL,
			job_id        TEXT NOT NULL,
			user_id       TEXT NOT NULL,
			tracking_code TEXT NOT NULL,
			email_id      TEXT NOT NULL,
			stage         TEXT NOT NULL,
			subject       TEXT NOT NULL DEFAULT '',
			sender        TEXT NOT NULL DEFAULT '',
			sent_at       TEXT NOT NULL DEFAULT '',
			summary       TEXT NOT NULL DEFAULT '',
			notes         TEXT,
			created_at    TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_timeline_job ON timeline_entries(job_id, seq);

		CREATE TABLE IF NOT EXISTS rate_counters (
			key             TEXT PRIMARY KEY,
			forwarder_email TEXT NOT NULL,
			user_id         TEXT NOT NULL,
			day             TEXT NOT NULL,
			count           INTEGER NOT NULL,
			rejected_count  INTEGER NOT NULL DEFAULT 0,
			last_limited    BOOLEAN NOT NULL DEFAULT FALSE,
			window_start    TIMESTAMPTZ NOT NULL,
			last_email_at   TIMESTAMPTZ NOT NULL,
			last_rejected   TIMESTAMPTZ
		);
	`)
	return err
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// AddUser registers or re-points a tracking code.
func (s *Store) AddUser(ctx context.Context, trackingCode, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (tracking_code, user_id)
		VALUES ($1, $2)
		ON CONFLICT (tracking_code) DO UPDATE SET user_id = EXCLUDED.user_id
	`, strings.ToUpper(trackingCode), userID)
	return err
}

// LookupUserByTrackingCode implements store.UserDirectory.
func (s *Store) LookupUserByTrackingCode(ctx context.Context, code string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `
		SELECT user_id FROM users WHERE tracking_code = $1
	`, strings.ToUpper(code)).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup tracking code: %w", err)
	}
	return userID, nil
}

// CreateRawEmail implements store.RawEmailStore.
func (s *Store) CreateRawEmail(ctx context.Context, e *models.RawEmail) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO raw_emails
			(id, original_sender, forwarder_email, receiver_address, tracking_code,
			 original_sent_at, subject, body_content, message_id, received_at,
			 processed, processing_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.OriginalSender, e.ForwarderEmail, e.ReceiverAddress, e.TrackingCode,
		e.OriginalSentAt, e.Subject, e.BodyContent, e.MessageID, e.ReceivedAt,
		e.Processed, string(e.ProcessingStatus))
	if err != nil {
		return fmt.Errorf("insert raw email: %w", err)
	}
	return nil
}

// GetRawEmail implements store.RawEmailStore.
func (s *Store) GetRawEmail(ctx context.Context, id string) (*models.RawEmail, error) {
	var (
		e      models.RawEmail
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, original_sender, forwarder_email, receiver_address, tracking_code,
		       original_sent_at, subject, body_content, message_id, received_at,
		       processed, processing_status, linked_job_id, processing_error
		FROM raw_emails
		WHERE id = $1
	`, id).Scan(
		&e.ID, &e.OriginalSender, &e.ForwarderEmail, &e.ReceiverAddress, &e.TrackingCode,
		&e.OriginalSentAt, &e.Subject, &e.BodyContent, &e.MessageID, &e.ReceivedAt,
		&e.Processed, &status, &e.LinkedJobID, &e.ProcessingError,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get raw email: %w", err)
	}
	e.ProcessingStatus = models.ProcessingStatus(status)
	return &e, nil
}

// UpdateRawEmailStatus implements store.RawEmailStore.
func (s *Store) UpdateRawEmailStatus(ctx context.Context, id string, u models.StatusUpdate) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE raw_emails
		SET processing_status = $1,
		    processed         = $2,
		    linked_job_id     = COALESCE($3, linked_job_id),
		    processing_error  = $4,
		    updated_at        = NOW()
		WHERE id = $5
	`, string(u.Status), u.Processed, u.LinkedJobID, u.Error, id)
	if err != nil {
		return fmt.Errorf("update raw email status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertJob implements store.JobStore. The scope is serialized with a
// transaction-scoped advisory lock, so concurrent classifications for the
// same user and tracking code see each other's writes.
func (s *Store) UpsertJob(ctx context.Context, userID, trackingCode string, fn store.UpsertFunc) (models.JobApplication, bool, error) {
	var (
		job     models.JobApplication
		created bool
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			"jobs:"+userID+"/"+trackingCode); err != nil {
			return fmt.Errorf("lock scope: %w", err)
		}

		existing, err := listJobs(ctx, tx, userID, trackingCode)
		if err != nil {
			return err
		}

		job, created, err = fn(existing)
		if err != nil {
			return err
		}

		if created {
			if job.ID == "" {
				job.ID = uuid.NewString()
			}
			return insertJob(ctx, tx, job)
		}
		return updateJob(ctx, tx, job)
	})
	if err != nil {
		return models.JobApplication{}, false, err
	}
	return job, created, nil
}

// ListJobs implements store.JobStore.
func (s *Store) ListJobs(ctx context.Context, userID, trackingCode string) ([]models.JobApplication, error) {
	return listJobs(ctx, s.pool, userID, trackingCode)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listJobs(ctx context.Context, q querier, userID, trackingCode string) ([]models.JobApplication, error) {
	rows, err := q.Query(ctx, `
		SELECT id, user_id, tracking_code, company, title, current_stage,
		       salary, location, contact, notes, applied_at, last_updated_at,
		       linked_email_ids
		FROM job_applications
		WHERE user_id = $1 AND tracking_code = $2
		ORDER BY seq
	`, userID, trackingCode)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.JobApplication
	for rows.Next() {
		var (
			j         models.JobApplication
			stageName string
		)
		if err := rows.Scan(
			&j.ID, &j.UserID, &j.TrackingCode, &j.Company, &j.Title, &stageName,
			&j.Salary, &j.Location, &j.Contact, &j.Notes, &j.AppliedAt, &j.LastUpdatedAt,
			&j.LinkedEmailIDs,
		); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.CurrentStage = stage.Stage(stageName)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func insertJob(ctx context.Context, tx pgx.Tx, j models.JobApplication) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO job_applications
			(id, user_id, tracking_code, company, title, current_stage,
			 salary, location, contact, notes, applied_at, last_updated_at,
			 linked_email_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, j.ID, j.UserID, j.TrackingCode, j.Company, j.Title, string(j.CurrentStage),
		j.Salary, j.Location, j.Contact, j.Notes, j.AppliedAt, j.LastUpdatedAt,
		emailIDs(j.LinkedEmailIDs))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func updateJob(ctx context.Context, tx pgx.Tx, j models.JobApplication) error {
	tag, err := tx.Exec(ctx, `
		UPDATE job_applications
		SET company          = $2,
		    title            = $3,
		    current_stage    = $4,
		    salary           = $5,
		    location         = $6,
		    contact          = $7,
		    notes            = $8,
		    last_updated_at  = $9,
		    linked_email_ids = $10
		WHERE id = $1
	`, j.ID, j.Company, j.Title, string(j.CurrentStage),
		j.Salary, j.Location, j.Contact, j.Notes, j.LastUpdatedAt,
		emailIDs(j.LinkedEmailIDs))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", j.ID, store.ErrNotFound)
	}
	return nil
}

// emailIDs keeps NOT NULL array columns from receiving a nil slice.
func emailIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// AppendTimeline implements store.TimelineStore.
func (s *Store) AppendTimeline(ctx context.Context, e *models.TimelineEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO timeline_entries
			(id, job_id, user_id, tracking_code, email_id, stage, subject,
			 sender, sent_at, summary, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.JobID, e.UserID, e.TrackingCode, e.EmailID, string(e.Stage), e.Subject,
		e.Sender, e.SentAt, e.Summary, e.Notes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert timeline entry: %w", err)
	}
	return nil
}

// ListTimeline implements store.TimelineStore.
func (s *Store) ListTimeline(ctx context.Context, jobID string) ([]models.TimelineEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, user_id, tracking_code, email_id, stage, subject,
		       sender, sent_at, summary, notes, created_at
		FROM timeline_entries
		WHERE job_id = $1
		ORDER BY seq
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	defer rows.Close()

	var entries []models.TimelineEntry
	for rows.Next() {
		var (
			e         models.TimelineEntry
			stageName string
		)
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.UserID, &e.TrackingCode, &e.EmailID, &stageName, &e.Subject,
			&e.Sender, &e.SentAt, &e.Summary, &e.Notes, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan timeline entry: %w", err)
		}
		e.Stage = stage.Stage(stageName)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IncrementCapped implements ratelimit.CounterStore as one upsert. The
// conflicting row is locked for the statement, so the check and increment
// cannot interleave with another request.
func (s *Store) IncrementCapped(ctx context.Context, forwarder, userID string, limit int, now time.Time) (ratelimit.Result, error) {
	key := models.RateCounterKey(forwarder, now)

	var (
		count   int
		limited bool
	)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rate_counters
			(key, forwarder_email, user_id, day, count, window_start, last_email_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (key) DO UPDATE SET
			count          = CASE WHEN rate_counters.count >= $6
			                      THEN rate_counters.count ELSE rate_counters.count + 1 END,
			rejected_count = CASE WHEN rate_counters.count >= $6
			                      THEN rate_counters.rejected_count + 1 ELSE rate_counters.rejected_count END,
			last_limited   = rate_counters.count >= $6,
			last_email_at  = CASE WHEN rate_counters.count >= $6
			                      THEN rate_counters.last_email_at ELSE $5 END,
			last_rejected  = CASE WHEN rate_counters.count >= $6
			                      THEN $5 ELSE rate_counters.last_rejected END
		RETURNING count, last_limited
	`, key, forwarder, userID, now.UTC().Format("2006-01-02"), now, limit).Scan(&count, &limited)
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("increment rate counter %s: %w", key, err)
	}
	return ratelimit.Result{Limited: limited, Count: count}, nil
}

var (
	_ store.Store            = (*Store)(nil)
	_ ratelimit.CounterStore = (*Store)(nil)
)

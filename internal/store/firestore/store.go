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

// Package firestore stores ingestion records in the Firestore collections
// the JobSync dashboard reads: mailin, jobs, job_details, users and
// rate_limits.
package firestore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/moby/locker"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/ratelimit"
	"github.com/jobsync/ingestion/internal/store"
)

const (
	colMailin     = "mailin"
	colJobs       = "jobs"
	colJobDetails = "job_details"
	colUsers      = "users"
	colRateLimits = "rate_limits"
)

// Store implements the ingestion stores on a Firestore client.
type Store struct {
	client *firestore.Client
	scopes *locker.Locker
	logger *zap.Logger
}

// New wraps an existing Firestore client.
func New(client *firestore.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, scopes: locker.New(), logger: logger}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// LookupUserByTrackingCode implements store.UserDirectory. The user id is
// the id of the users document whose emailCode matches.
func (s *Store) LookupUserByTrackingCode(ctx context.Context, code string) (string, error) {
	docs, err := s.client.Collection(colUsers).
		Where("emailCode", "==", strings.ToUpper(code)).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return "", fmt.Errorf("lookup tracking code: %w", err)
	}
	if len(docs) == 0 {
		return "", store.ErrNotFound
	}
	return docs[0].Ref.ID, nil
}

// CreateRawEmail implements store.RawEmailStore.
func (s *Store) CreateRawEmail(ctx context.Context, e *models.RawEmail) error {
	if _, err := s.client.Collection(colMailin).Doc(e.ID).Create(ctx, toMailinDoc(e)); err != nil {
		return fmt.Errorf("create mailin %s: %w", e.ID, err)
	}
	return nil
}

// GetRawEmail implements store.RawEmailStore.
func (s *Store) GetRawEmail(ctx context.Context, id string) (*models.RawEmail, error) {
	snap, err := s.client.Collection(colMailin).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mailin %s: %w", id, err)
	}
	var d mailinDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("decode mailin %s: %w", id, err)
	}
	return d.model(id), nil
}

// UpdateRawEmailStatus implements store.RawEmailStore.
func (s *Store) UpdateRawEmailStatus(ctx context.Context, id string, u models.StatusUpdate) error {
	updates := []firestore.Update{
		{Path: "Processing_Status", Value: string(u.Status)},
		{Path: "Processed", Value: u.Processed},
		{Path: "Processing_Error", Value: u.Error},
		{Path: "Update_Time", Value: firestore.ServerTimestamp},
	}
	if u.LinkedJobID != nil {
		updates = append(updates, firestore.Update{Path: "Job_ID", Value: *u.LinkedJobID})
	}

	_, err := s.client.Collection(colMailin).Doc(id).Update(ctx, updates)
	if isNotFound(err) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update mailin %s: %w", id, err)
	}
	return nil
}

func (s *Store) jobsQuery(userID, trackingCode string) firestore.Query {
	return s.client.Collection(colJobs).
		Where("User_ID", "==", userID).
		Where("Tracking_Code", "==", trackingCode)
}

// UpsertJob implements store.JobStore. Queries inside a Firestore
// transaction do not lock the absence of a match, so the scope is also
// serialized in process.
func (s *Store) UpsertJob(ctx context.Context, userID, trackingCode string, fn store.UpsertFunc) (models.JobApplication, bool, error) {
	scope := userID + "/" + trackingCode
	s.scopes.Lock(scope)
	defer s.scopes.Unlock(scope)

	var (
		job     models.JobApplication
		created bool
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.Documents(s.jobsQuery(userID, trackingCode)).GetAll()
		if err != nil {
			return fmt.Errorf("query jobs: %w", err)
		}
		existing := make([]models.JobApplication, 0, len(snaps))
		for _, snap := range snaps {
			var d jobDoc
			if err := snap.DataTo(&d); err != nil {
				return fmt.Errorf("decode job %s: %w", snap.Ref.ID, err)
			}
			existing = append(existing, d.model(snap.Ref.ID))
		}

		job, created, err = fn(existing)
		if err != nil {
			return err
		}
		if created && job.ID == "" {
			job.ID = uuid.NewString()
		}

		ref := s.client.Collection(colJobs).Doc(job.ID)
		if created {
			return tx.Create(ref, toJobDoc(job))
		}
		return tx.Set(ref, toJobDoc(job))
	})
	if err != nil {
		return models.JobApplication{}, false, err
	}
	s.logger.Debug("job written",
		zap.String("job_id", job.ID),
		zap.Bool("created", created),
	)
	return job, created, nil
}

// ListJobs implements store.JobStore.
func (s *Store) ListJobs(ctx context.Context, userID, trackingCode string) ([]models.JobApplication, error) {
	snaps, err := s.jobsQuery(userID, trackingCode).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]models.JobApplication, 0, len(snaps))
	for _, snap := range snaps {
		var d jobDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", snap.Ref.ID, err)
		}
		jobs = append(jobs, d.model(snap.Ref.ID))
	}
	return jobs, nil
}

// AppendTimeline implements store.TimelineStore.
func (s *Store) AppendTimeline(ctx context.Context, e *models.TimelineEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, err := s.client.Collection(colJobDetails).Doc(e.ID).Create(ctx, toJobDetailDoc(e)); err != nil {
		return fmt.Errorf("create job detail: %w", err)
	}
	return nil
}

// ListTimeline implements store.TimelineStore.
func (s *Store) ListTimeline(ctx context.Context, jobID string) ([]models.TimelineEntry, error) {
	snaps, err := s.client.Collection(colJobDetails).Where("Job_ID", "==", jobID).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list job details: %w", err)
	}
	entries := make([]models.TimelineEntry, 0, len(snaps))
	for _, snap := range snaps {
		var d jobDetailDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("decode job detail %s: %w", snap.Ref.ID, err)
		}
		entries = append(entries, d.model(snap.Ref.ID))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// IncrementCapped implements ratelimit.CounterStore with a Firestore
// transaction on the rate_limits document for the day.
func (s *Store) IncrementCapped(ctx context.Context, forwarder, userID string, limit int, now time.Time) (ratelimit.Result, error) {
	key := models.RateCounterKey(forwarder, now)
	ref := s.client.Collection(colRateLimits).Doc(key)

	var res ratelimit.Result
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			res = ratelimit.Result{Count: 1}
			return tx.Create(ref, rateLimitDoc{
				ForwarderEmail: forwarder,
				UserID:         userID,
				Count:          1,
				Date:           now.UTC().Format("2006-01-02"),
				WindowStart:    now,
				LastEmail:      now,
			})
		}
		if err != nil {
			return err
		}

		var d rateLimitDoc
		if err := snap.DataTo(&d); err != nil {
			return fmt.Errorf("decode counter: %w", err)
		}

		if d.Count >= int64(limit) {
			res = ratelimit.Result{Limited: true, Count: int(d.Count)}
			return tx.Update(ref, []firestore.Update{
				{Path: "rejected_count", Value: firestore.Increment(1)},
				{Path: "last_rejected", Value: now},
			})
		}

		res = ratelimit.Result{Count: int(d.Count) + 1}
		return tx.Update(ref, []firestore.Update{
			{Path: "count", Value: firestore.Increment(1)},
			{Path: "last_email", Value: now},
		})
	})
	if err != nil {
		return ratelimit.Result{}, fmt.Errorf("rate counter %s: %w", key, err)
	}
	return res, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var (
	_ store.Store            = (*Store)(nil)
	_ ratelimit.CounterStore = (*Store)(nil)
)

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

// Package memory is an in-process store used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moby/locker"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/ratelimit"
	"github.com/jobsync/ingestion/internal/store"
)

// Store keeps every record in maps guarded by a single mutex. Job upserts
// are additionally serialized per (user, tracking code) scope.
type Store struct {
	mu       sync.Mutex
	users    map[string]string // tracking code -> user id
	emails   map[string]models.RawEmail
	jobs     []models.JobApplication // insertion order
	timeline []models.TimelineEntry
	counters map[string]*models.RateCounter

	scopes *locker.Locker
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]string),
		emails:   make(map[string]models.RawEmail),
		counters: make(map[string]*models.RateCounter),
		scopes:   locker.New(),
	}
}

// AddUser registers a tracking code for a user.
func (s *Store) AddUser(trackingCode, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToUpper(trackingCode)] = userID
}

// LookupUserByTrackingCode implements store.UserDirectory.
func (s *Store) LookupUserByTrackingCode(_ context.Context, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.users[strings.ToUpper(code)]; ok {
		return id, nil
	}
	return "", store.ErrNotFound
}

// CreateRawEmail implements store.RawEmailStore.
func (s *Store) CreateRawEmail(_ context.Context, e *models.RawEmail) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.emails[e.ID]; exists {
		return fmt.Errorf("raw email %s already exists", e.ID)
	}
	s.emails[e.ID] = *e
	return nil
}

// GetRawEmail implements store.RawEmailStore.
func (s *Store) GetRawEmail(_ context.Context, id string) (*models.RawEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

// UpdateRawEmailStatus implements store.RawEmailStore.
func (s *Store) UpdateRawEmailStatus(_ context.Context, id string, u models.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emails[id]
	if !ok {
		return store.ErrNotFound
	}
	e.ProcessingStatus = u.Status
	e.Processed = u.Processed
	if u.LinkedJobID != nil {
		e.LinkedJobID = u.LinkedJobID
	}
	e.ProcessingError = u.Error
	s.emails[id] = e
	return nil
}

// RawEmails returns all stored emails.
func (s *Store) RawEmails() []models.RawEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.RawEmail, 0, len(s.emails))
	for _, e := range s.emails {
		out = append(out, e)
	}
	return out
}

// UpsertJob implements store.JobStore.
func (s *Store) UpsertJob(_ context.Context, userID, trackingCode string, fn store.UpsertFunc) (models.JobApplication, bool, error) {
	scope := userID + "/" + trackingCode
	s.scopes.Lock(scope)
	defer s.scopes.Unlock(scope)

	existing := s.scope(userID, trackingCode)
	job, created, err := fn(existing)
	if err != nil {
		return models.JobApplication{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if created {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		s.jobs = append(s.jobs, cloneJob(job))
		return job, true, nil
	}
	for i := range s.jobs {
		if s.jobs[i].ID == job.ID {
			s.jobs[i] = cloneJob(job)
			return job, false, nil
		}
	}
	return models.JobApplication{}, false, fmt.Errorf("update job %s: %w", job.ID, store.ErrNotFound)
}

// ListJobs implements store.JobStore.
func (s *Store) ListJobs(_ context.Context, userID, trackingCode string) ([]models.JobApplication, error) {
	return s.scope(userID, trackingCode), nil
}

func (s *Store) scope(userID, trackingCode string) []models.JobApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.JobApplication
	for _, j := range s.jobs {
		if j.UserID == userID && j.TrackingCode == trackingCode {
			out = append(out, cloneJob(j))
		}
	}
	return out
}

// AppendTimeline implements store.TimelineStore.
func (s *Store) AppendTimeline(_ context.Context, entry *models.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.timeline = append(s.timeline, *entry)
	return nil
}

// ListTimeline implements store.TimelineStore.
func (s *Store) ListTimeline(_ context.Context, jobID string) ([]models.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimelineEntry
	for _, e := range s.timeline {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// IncrementCapped implements ratelimit.CounterStore.
func (s *Store) IncrementCapped(_ context.Context, forwarder, userID string, limit int, now time.Time) (ratelimit.Result, error) {
	key := models.RateCounterKey(forwarder, now)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		s.counters[key] = &models.RateCounter{
			ForwarderEmail: forwarder,
			UserID:         userID,
			Date:           now.UTC().Format("2006-01-02"),
			Count:          1,
			WindowStart:    now,
			LastEmailAt:    now,
		}
		return ratelimit.Result{Count: 1}, nil
	}
	if c.Count >= limit {
		c.RejectedCount++
		return ratelimit.Result{Limited: true, Count: c.Count}, nil
	}
	c.Count++
	c.LastEmailAt = now
	return ratelimit.Result{Count: c.Count}, nil
}

// Counter returns a copy of the counter stored under key.
func (s *Store) Counter(key string) (models.RateCounter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[key]
	if !ok {
		return models.RateCounter{}, false
	}
	return *c, true
}

func cloneJob(j models.JobApplication) models.JobApplication {
	j.LinkedEmailIDs = append([]string(nil), j.LinkedEmailIDs...)
	return j
}

var (
	_ store.Store            = (*Store)(nil)
	_ ratelimit.CounterStore = (*Store)(nil)
)

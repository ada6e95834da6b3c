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

package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/stage"
	"github.com/jobsync/ingestion/internal/store"
)

// newTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	s, err := New(ctx, pool, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestRawEmailRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &models.RawEmail{
		ID:               uuid.NewString(),
		OriginalSender:   models.StringPtr("talent@acme.com"),
		ForwarderEmail:   "maihe88@gmail.com",
		TrackingCode:     "ABC123",
		Subject:          "Interview",
		ReceivedAt:       time.Now().UTC().Truncate(time.Microsecond),
		ProcessingStatus: models.StatusPending,
	}
	if err := s.CreateRawEmail(ctx, e); err != nil {
		t.Fatal(err)
	}

	msg := "extraction failed"
	if err := s.UpdateRawEmailStatus(ctx, e.ID, models.StatusUpdate{Status: models.StatusFailed, Error: &msg}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRawEmail(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ProcessingStatus != models.StatusFailed || got.ProcessingError == nil || *got.ProcessingError != msg {
		t.Errorf("got %+v", got)
	}
	if got.Sender() != "talent@acme.com" {
		t.Errorf("sender = %q", got.Sender())
	}

	if _, err := s.GetRawEmail(ctx, uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing email err = %v", err)
	}
}

func TestUpsertJobAndTimeline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user, code := uuid.NewString(), "T"+uuid.NewString()[:6]
	now := time.Now().UTC().Truncate(time.Microsecond)

	job, created, err := s.UpsertJob(ctx, user, code, func(existing []models.JobApplication) (models.JobApplication, bool, error) {
		return models.JobApplication{
			UserID: user, TrackingCode: code, Company: "Acme", Title: "SWE",
			CurrentStage: stage.Applied, AppliedAt: now, LastUpdatedAt: now,
			LinkedEmailIDs: []string{"e1"},
		}, true, nil
	})
	if err != nil || !created {
		t.Fatalf("create: %v %v", created, err)
	}

	_, _, err = s.UpsertJob(ctx, user, code, func(existing []models.JobApplication) (models.JobApplication, bool, error) {
		if len(existing) != 1 {
			t.Fatalf("existing = %d", len(existing))
		}
		j := existing[0]
		j.CurrentStage = stage.Screening
		j.AddEmail("e2")
		return j, false, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	jobs, err := s.ListJobs(ctx, user, code)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("jobs = %v, %v", jobs, err)
	}
	if jobs[0].CurrentStage != stage.Screening || len(jobs[0].LinkedEmailIDs) != 2 {
		t.Errorf("job = %+v", jobs[0])
	}

	for _, id := range []string{"e1", "e2"} {
		if err := s.AppendTimeline(ctx, &models.TimelineEntry{JobID: job.ID, UserID: user, TrackingCode: code, EmailID: id, Stage: stage.Applied, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.ListTimeline(ctx, job.ID)
	if err != nil || len(entries) != 2 || entries[0].EmailID != "e1" {
		t.Errorf("entries = %+v, %v", entries, err)
	}
}

func TestIncrementCapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fwd := uuid.NewString() + "@example.org"
	now := time.Now()

	for i := 1; i <= 2; i++ {
		res, err := s.IncrementCapped(ctx, fwd, "u", 2, now)
		if err != nil || res.Limited || res.Count != i {
			t.Fatalf("call %d = %+v, %v", i, res, err)
		}
	}
	res, err := s.IncrementCapped(ctx, fwd, "u", 2, now)
	if err != nil || !res.Limited || res.Count != 2 {
		t.Errorf("3rd call = %+v, %v", res, err)
	}
}

func TestLookupUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	code := "U" + uuid.NewString()[:7]

	if err := s.AddUser(ctx, code, "user-9"); err != nil {
		t.Fatal(err)
	}
	id, err := s.LookupUserByTrackingCode(ctx, code)
	if err != nil || id != "user-9" {
		t.Errorf("lookup = %q, %v", id, err)
	}
	if _, err := s.LookupUserByTrackingCode(ctx, "NOPE-"+code); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown code err = %v", err)
	}
}

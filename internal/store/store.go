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

// Package store defines the persistence contracts of the ingestion pipeline.
// Backends live in the postgres, firestore and memory subpackages.
package store

import (
	"context"
	"errors"

	"github.com/jobsync/ingestion/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RawEmailStore persists inbound emails before classification.
type RawEmailStore interface {
	CreateRawEmail(ctx context.Context, e *models.RawEmail) error
	GetRawEmail(ctx context.Context, id string) (*models.RawEmail, error)
	UpdateRawEmailStatus(ctx context.Context, id string, u models.StatusUpdate) error
}

// UpsertFunc decides what to write for one (user, tracking code) scope.
// It receives the scope's applications in store order and returns the
// application to persist and whether it is a new record.
type UpsertFunc func(existing []models.JobApplication) (job models.JobApplication, created bool, err error)

// JobStore persists job applications.
type JobStore interface {
	// UpsertJob runs fn while no other UpsertJob for the same scope can
	// interleave, then writes its result. A new record gets an ID when fn
	// leaves it empty.
	UpsertJob(ctx context.Context, userID, trackingCode string, fn UpsertFunc) (models.JobApplication, bool, error)
	ListJobs(ctx context.Context, userID, trackingCode string) ([]models.JobApplication, error)
}

// TimelineStore persists the append-only per-job history.
type TimelineStore interface {
	AppendTimeline(ctx context.Context, entry *models.TimelineEntry) error
	// ListTimeline returns a job's entries in creation order.
	ListTimeline(ctx context.Context, jobID string) ([]models.TimelineEntry, error)
}

// UserDirectory maps tracking codes to user ids.
type UserDirectory interface {
	// LookupUserByTrackingCode returns ErrNotFound for unknown codes.
	LookupUserByTrackingCode(ctx context.Context, code string) (string, error)
}

// Store is the full set of persistence operations a backend provides.
type Store interface {
	RawEmailStore
	JobStore
	TimelineStore
	UserDirectory
}

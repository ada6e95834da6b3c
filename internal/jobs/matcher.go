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

// Package jobs keeps one JobApplication per role by matching each newly
// classified email against the user's existing applications.
//
// Two applications are the same role when their companies are equal after
// trimming and case-folding and one title contains the other, so
// "Software Engineer" and "Software Engineer II" at Acme merge while the
// same title at another company does not.
package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/stage"
	"github.com/jobsync/ingestion/internal/store"
)

const (
	UnknownCompany  = "Unknown Company"
	UnknownPosition = "Unknown Position"
)

// Incoming is what one classified email says about an application.
type Incoming struct {
	UserID       string
	TrackingCode string
	EmailID      string
	Company      string
	Title        string
	Stage        *stage.Stage
	Salary       *string
	Location     *string
	Contact      *string
	Notes        *string
}

// Normalize trims and case-folds a company or title for comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Matches reports whether candidate is the same role as company/title.
// Both arguments must already be normalized and non-empty.
func Matches(candidate models.JobApplication, company, title string) bool {
	if Normalize(candidate.Company) != company {
		return false
	}
	ct := Normalize(candidate.Title)
	if ct == "" {
		return false
	}
	return ct == title || strings.Contains(ct, title) || strings.Contains(title, ct)
}

// FindMatch returns the index of the first matching application, or -1.
// An email missing either company or title never matches.
func FindMatch(existing []models.JobApplication, company, title string) int {
	company, title = Normalize(company), Normalize(title)
	if company == "" || title == "" {
		return -1
	}
	for i, j := range existing {
		if Matches(j, company, title) {
			return i
		}
	}
	return -1
}

// Reconcile decides the application to write for in, given the scope's
// existing applications in store order. It reports true when the result is
// a new application.
func Reconcile(existing []models.JobApplication, in Incoming, now time.Time) (models.JobApplication, bool) {
	if i := FindMatch(existing, in.Company, in.Title); i >= 0 {
		return merge(existing[i], in, now), false
	}
	return create(in, now), true
}

func create(in Incoming, now time.Time) models.JobApplication {
	st := stage.Applied
	if in.Stage != nil && in.Stage.Valid() {
		st = *in.Stage
	}
	return models.JobApplication{
		UserID:         in.UserID,
		TrackingCode:   in.TrackingCode,
		Company:        orDefault(in.Company, UnknownCompany),
		Title:          orDefault(in.Title, UnknownPosition),
		CurrentStage:   st,
		Salary:         in.Salary,
		Location:       in.Location,
		Contact:        in.Contact,
		Notes:          in.Notes,
		AppliedAt:      now,
		LastUpdatedAt:  now,
		LinkedEmailIDs: []string{in.EmailID},
	}
}

func merge(job models.JobApplication, in Incoming, now time.Time) models.JobApplication {
	job.CurrentStage = stage.Next(job.CurrentStage, in.Stage)
	job.Salary = prefer(in.Salary, job.Salary)
	job.Location = prefer(in.Location, job.Location)
	job.Contact = prefer(in.Contact, job.Contact)
	job.Notes = prefer(in.Notes, job.Notes)
	job.LinkedEmailIDs = append([]string(nil), job.LinkedEmailIDs...)
	job.AddEmail(in.EmailID)
	job.LastUpdatedAt = now
	return job
}

// Upsert matches or creates the application for in inside the store's
// per-scope critical section.
func Upsert(ctx context.Context, js store.JobStore, in Incoming, now time.Time) (models.JobApplication, bool, error) {
	return js.UpsertJob(ctx, in.UserID, in.TrackingCode, func(existing []models.JobApplication) (models.JobApplication, bool, error) {
		job, created := Reconcile(existing, in, now)
		return job, created, nil
	})
}

func prefer(incoming, current *string) *string {
	if incoming != nil && strings.TrimSpace(*incoming) != "" {
		return incoming
	}
	return current
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

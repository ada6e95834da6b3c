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

package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/stage"
	"github.com/jobsync/ingestion/internal/store/memory"
)

func stagePtr(s stage.Stage) *stage.Stage { return &s }

func TestFindMatch(t *testing.T) {
	existing := []models.JobApplication{
		{ID: "1", Company: "Globex", Title: "Software Engineer"},
		{ID: "2", Company: " Acme Inc ", Title: "Software Engineer"},
		{ID: "3", Company: "Acme Inc", Title: "Product Manager"},
	}

	tests := []struct {
		name, company, title string
		want                 int
	}{
		{"exact", "Acme Inc", "Software Engineer", 1},
		{"case and space", "  ACME INC", "software engineer ", 1},
		{"incoming contains candidate", "acme inc", "Software Engineer II", 1},
		{"candidate contains incoming", "acme inc", "Engineer", 1},
		{"other company", "Initech", "Software Engineer", -1},
		{"unrelated title", "Acme Inc", "Designer", -1},
		{"missing company", "", "Software Engineer", -1},
		{"missing title", "Acme Inc", "", -1},
		{"first in store order wins", "Acme Inc", "e", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindMatch(existing, tt.company, tt.title); got != tt.want {
				t.Errorf("FindMatch = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReconcile_Create(t *testing.T) {
	now := time.Date(2025, 10, 18, 8, 0, 0, 0, time.UTC)

	job, created := Reconcile(nil, Incoming{
		UserID: "u", TrackingCode: "ABC", EmailID: "e1",
		Company: "Acme", Title: "SWE", Stage: stagePtr(stage.Interview1),
	}, now)
	if !created {
		t.Fatal("expected a new application")
	}
	if job.CurrentStage != stage.Interview1 || job.AppliedAt != now || len(job.LinkedEmailIDs) != 1 {
		t.Errorf("job = %+v", job)
	}

	job, _ = Reconcile(nil, Incoming{EmailID: "e2"}, now)
	if job.Company != UnknownCompany || job.Title != UnknownPosition || job.CurrentStage != stage.Applied {
		t.Errorf("defaults = %q/%q/%q", job.Company, job.Title, job.CurrentStage)
	}
}

func TestReconcile_MissingFieldsAlwaysCreate(t *testing.T) {
	existing := []models.JobApplication{{ID: "1", Company: UnknownCompany, Title: UnknownPosition}}
	_, created := Reconcile(existing, Incoming{EmailID: "e2"}, time.Now())
	if !created {
		t.Error("email without company/title merged into an existing application")
	}
}

func TestReconcile_Merge(t *testing.T) {
	applied := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	now := applied.Add(72 * time.Hour)
	existing := []models.JobApplication{{
		ID: "1", Company: "Acme", Title: "SWE", CurrentStage: stage.Screening,
		Salary: models.StringPtr("$100k"), Location: models.StringPtr("Remote"),
		AppliedAt: applied, LastUpdatedAt: applied, LinkedEmailIDs: []string{"e1"},
	}}

	job, created := Reconcile(existing, Incoming{
		EmailID: "e2", Company: "ACME", Title: "swe",
		Salary: models.StringPtr("$120k"), Contact: models.StringPtr("jane@acme.com"),
	}, now)
	if created {
		t.Fatal("expected merge")
	}
	if job.CurrentStage != stage.Interview1 {
		t.Errorf("stage = %q, want interview1", job.CurrentStage)
	}
	if *job.Salary != "$120k" || *job.Location != "Remote" || *job.Contact != "jane@acme.com" || job.Notes != nil {
		t.Errorf("fields = %v %v %v %v", *job.Salary, *job.Location, *job.Contact, job.Notes)
	}
	if job.AppliedAt != applied || job.LastUpdatedAt != now {
		t.Errorf("timestamps = %v / %v", job.AppliedAt, job.LastUpdatedAt)
	}
	if len(job.LinkedEmailIDs) != 2 || job.LinkedEmailIDs[1] != "e2" {
		t.Errorf("linked = %v", job.LinkedEmailIDs)
	}
	if *existing[0].Salary != "$100k" {
		t.Errorf("input slice modified: salary = %q", *existing[0].Salary)
	}

	job, _ = Reconcile([]models.JobApplication{job}, Incoming{EmailID: "e2", Company: "Acme", Title: "SWE", Stage: stagePtr(stage.Rejected)}, now)
	if job.CurrentStage != stage.Rejected || len(job.LinkedEmailIDs) != 2 {
		t.Errorf("replayed email = %q %v", job.CurrentStage, job.LinkedEmailIDs)
	}
}

func TestUpsert_AcmeVariants(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now()

	first, created, err := Upsert(ctx, s, Incoming{UserID: "u", TrackingCode: "ABC", EmailID: "e1", Company: "Acme Inc", Title: "Software Engineer"}, now)
	if err != nil || !created {
		t.Fatalf("first = %v, %v", created, err)
	}
	second, created, err := Upsert(ctx, s, Incoming{UserID: "u", TrackingCode: "ABC", EmailID: "e2", Company: "acme inc", Title: "Software Engineer II"}, now)
	if err != nil || created {
		t.Fatalf("second = %v, %v", created, err)
	}
	if first.ID != second.ID {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}

	jobs, _ := s.ListJobs(ctx, "u", "ABC")
	if len(jobs) != 1 || len(jobs[0].LinkedEmailIDs) != 2 {
		t.Errorf("jobs = %+v", jobs)
	}
}

func TestUpsert_ConcurrentFirstEmails(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := Incoming{UserID: "u", TrackingCode: "ABC", EmailID: string(rune('a' + i)), Company: "Acme", Title: "SWE"}
			if _, _, err := Upsert(ctx, s, in, time.Now()); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	jobs, _ := s.ListJobs(ctx, "u", "ABC")
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	if len(jobs[0].LinkedEmailIDs) != 10 {
		t.Errorf("linked = %d, want 10", len(jobs[0].LinkedEmailIDs))
	}
}

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

package models

import (
	"time"

	"github.com/jobsync/ingestion/internal/stage"
)

// JobApplication is the deduplicated record for one role a user applied to.
type JobApplication struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	TrackingCode   string      `json:"tracking_code"`
	Company        string      `json:"company"`
	Title          string      `json:"title"`
	CurrentStage   stage.Stage `json:"current_stage"`
	Salary         *string     `json:"salary"`
	Location       *string     `json:"location"`
	Contact        *string     `json:"contact"`
	Notes          *string     `json:"notes"`
	AppliedAt      time.Time   `json:"applied_at"`
	LastUpdatedAt  time.Time   `json:"last_updated_at"`
	LinkedEmailIDs []string    `json:"linked_email_ids"`
}

// AddEmail links an email id, ignoring ids that are already linked.
func (j *JobApplication) AddEmail(emailID string) {
	for _, id := range j.LinkedEmailIDs {
		if id == emailID {
			return
		}
	}
	j.LinkedEmailIDs = append(j.LinkedEmailIDs, emailID)
}

// TimelineEntry is one immutable history item, written once per classified email.
type TimelineEntry struct {
	ID           string      `json:"id"`
	JobID        string      `json:"job_id"`
	UserID       string      `json:"user_id"`
	TrackingCode string      `json:"tracking_code"`
	EmailID      string      `json:"email_id"`
	Stage        stage.Stage `json:"stage"`
	Subject      string      `json:"subject"`
	Sender       string      `json:"sender"`
	SentAt       string      `json:"sent_at"`
	Summary      string      `json:"summary"`
	Notes        *string     `json:"notes"`
	CreatedAt    time.Time   `json:"created_at"`
}

// JobEventType distinguishes new applications from updates.
type JobEventType string

const (
	JobCreated JobEventType = "job.created"
	JobUpdated JobEventType = "job.updated"
)

// JobEvent tells the dashboard that an application changed and should be refreshed.
type JobEvent struct {
	ID           string       `json:"id"`
	Type         JobEventType `json:"type"`
	JobID        string       `json:"job_id"`
	UserID       string       `json:"user_id"`
	TrackingCode string       `json:"tracking_code"`
	EmailID      string       `json:"email_id"`
	Company      string       `json:"company"`
	Title        string       `json:"title"`
	Stage        stage.Stage  `json:"stage"`
	OccurredAt   time.Time    `json:"occurred_at"`
}

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

package firestore

import (
	"time"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/stage"
)

// Field names match the documents the dashboard already reads.

type mailinDoc struct {
	OriginalSender   *string   `firestore:"Original_Sender"`
	ForwarderEmail   string    `firestore:"Forwarder_Email"`
	ReceiverEmail    string    `firestore:"Receiver_Email"`
	TrackingCode     string    `firestore:"Tracking_Code"`
	OriginalSentAt   string    `firestore:"Original_Sent_At"`
	Subject          string    `firestore:"Subject"`
	ContentDetails   string    `firestore:"Content_Details"`
	MessageID        string    `firestore:"Message_ID,omitempty"`
	ReceivedAt       time.Time `firestore:"Received_At"`
	Processed        bool      `firestore:"Processed"`
	ProcessingStatus string    `firestore:"Processing_Status"`
	JobID            *string   `firestore:"Job_ID"`
	ProcessingError  *string   `firestore:"Processing_Error"`
	UpdateTime       time.Time `firestore:"Update_Time"`
}

func toMailinDoc(e *models.RawEmail) mailinDoc {
	return mailinDoc{
		OriginalSender:   e.OriginalSender,
		ForwarderEmail:   e.ForwarderEmail,
		ReceiverEmail:    e.ReceiverAddress,
		TrackingCode:     e.TrackingCode,
		OriginalSentAt:   e.OriginalSentAt,
		Subject:          e.Subject,
		ContentDetails:   e.BodyContent,
		MessageID:        e.MessageID,
		ReceivedAt:       e.ReceivedAt,
		Processed:        e.Processed,
		ProcessingStatus: string(e.ProcessingStatus),
		JobID:            e.LinkedJobID,
		ProcessingError:  e.ProcessingError,
		UpdateTime:       e.ReceivedAt,
	}
}

func (d mailinDoc) model(id string) *models.RawEmail {
	return &models.RawEmail{
		ID:               id,
		OriginalSender:   d.OriginalSender,
		ForwarderEmail:   d.ForwarderEmail,
		ReceiverAddress:  d.ReceiverEmail,
		TrackingCode:     d.TrackingCode,
		OriginalSentAt:   d.OriginalSentAt,
		Subject:          d.Subject,
		BodyContent:      d.ContentDetails,
		MessageID:        d.MessageID,
		ReceivedAt:       d.ReceivedAt,
		Processed:        d.Processed,
		ProcessingStatus: models.ProcessingStatus(d.ProcessingStatus),
		LinkedJobID:      d.JobID,
		ProcessingError:  d.ProcessingError,
	}
}

type jobDoc struct {
	UserID       string    `firestore:"User_ID"`
	TrackingCode string    `firestore:"Tracking_Code"`
	Company      string    `firestore:"Company"`
	JobTitle     string    `firestore:"Job_Title"`
	CurrentStage string    `firestore:"Current_Stage"`
	Salary       *string   `firestore:"Salary"`
	Location     *string   `firestore:"Location"`
	Contact      *string   `firestore:"Contact"`
	Notes        *string   `firestore:"Notes"`
	AppliedDate  time.Time `firestore:"Applied_Date"`
	LastUpdated  time.Time `firestore:"Last_Updated"`
	EmailIDs     []string  `firestore:"Email_IDs"`
}

func toJobDoc(j models.JobApplication) jobDoc {
	ids := j.LinkedEmailIDs
	if ids == nil {
		ids = []string{}
	}
	return jobDoc{
		UserID:       j.UserID,
		TrackingCode: j.TrackingCode,
		Company:      j.Company,
		JobTitle:     j.Title,
		CurrentStage: string(j.CurrentStage),
		Salary:       j.Salary,
		Location:     j.Location,
		Contact:      j.Contact,
		Notes:        j.Notes,
		AppliedDate:  j.AppliedAt,
		LastUpdated:  j.LastUpdatedAt,
		EmailIDs:     ids,
	}
}

func (d jobDoc) model(id string) models.JobApplication {
	return models.JobApplication{
		ID:             id,
		UserID:         d.UserID,
		TrackingCode:   d.TrackingCode,
		Company:        d.Company,
		Title:          d.JobTitle,
		CurrentStage:   stage.Stage(d.CurrentStage),
		Salary:         d.Salary,
		Location:       d.Location,
		Contact:        d.Contact,
		Notes:          d.Notes,
		AppliedAt:      d.AppliedDate,
		LastUpdatedAt:  d.LastUpdated,
		LinkedEmailIDs: d.EmailIDs,
	}
}

type jobDetailDoc struct {
	JobID          string    `firestore:"Job_ID"`
	UserID         string    `firestore:"User_ID"`
	TrackingCode   string    `firestore:"Tracking_Code"`
	EmailID        string    `firestore:"Email_ID"`
	Stage          string    `firestore:"Stage"`
	Subject        string    `firestore:"Subject"`
	Sender         string    `firestore:"Sender"`
	SentDate       string    `firestore:"Sent_Date"`
	ContentSummary string    `firestore:"Content_Summary"`
	Notes          *string   `firestore:"Notes"`
	UpdateTime     time.Time `firestore:"Update_Time"`
}

func toJobDetailDoc(e *models.TimelineEntry) jobDetailDoc {
	return jobDetailDoc{
		JobID:          e.JobID,
		UserID:         e.UserID,
		TrackingCode:   e.TrackingCode,
		EmailID:        e.EmailID,
		Stage:          string(e.Stage),
		Subject:        e.Subject,
		Sender:         e.Sender,
		SentDate:       e.SentAt,
		ContentSummary: e.Summary,
		Notes:          e.Notes,
		UpdateTime:     e.CreatedAt,
	}
}

func (d jobDetailDoc) model(id string) models.TimelineEntry {
	return models.TimelineEntry{
		ID:           id,
		JobID:        d.JobID,
		UserID:       d.UserID,
		TrackingCode: d.TrackingCode,
		EmailID:      d.EmailID,
		Stage:        stage.Stage(d.Stage),
		Subject:      d.Subject,
		Sender:       d.Sender,
		SentAt:       d.SentDate,
		Summary:      d.ContentSummary,
		Notes:        d.Notes,
		CreatedAt:    d.UpdateTime,
	}
}

// rateLimitDoc keeps the snake_case field names of the rate_limits collection.
type rateLimitDoc struct {
	ForwarderEmail string     `firestore:"forwarder_email"`
	UserID         string     `firestore:"user_id"`
	Count          int64      `firestore:"count"`
	RejectedCount  int64      `firestore:"rejected_count"`
	Date           string     `firestore:"date"`
	WindowStart    time.Time  `firestore:"window_start"`
	LastEmail      time.Time  `firestore:"last_email"`
	LastRejected   *time.Time `firestore:"last_rejected,omitempty"`
}

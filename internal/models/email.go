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

// Package models defines the data structures shared across the ingestion service.
package models

import "time"

// ProcessingStatus tracks where a RawEmail is in the classification pipeline.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
)

// RawEmail is the parsed-but-unclassified form of one inbound email. It is
// written before any AI work and only its processing fields change afterwards.
type RawEmail struct {
	ID               string           `json:"id"`
	OriginalSender   *string          `json:"original_sender"`
	ForwarderEmail   string           `json:"forwarder_email"`
	ReceiverAddress  string           `json:"receiver_address"`
	TrackingCode     string           `json:"tracking_code"`
	OriginalSentAt   string           `json:"original_sent_at"`
	Subject          string           `json:"subject"`
	BodyContent      string           `json:"body_content"`
	MessageID        string           `json:"message_id,omitempty"`
	ReceivedAt       time.Time        `json:"received_at"`
	Processed        bool             `json:"processed"`
	ProcessingStatus ProcessingStatus `json:"processing_status"`
	LinkedJobID      *string          `json:"linked_job_id,omitempty"`
	ProcessingError  *string          `json:"processing_error,omitempty"`
}

// Sender returns the original sender or an empty string when none was found.
func (e *RawEmail) Sender() string {
	if e.OriginalSender == nil {
		return ""
	}
	return *e.OriginalSender
}

// StatusUpdate is the only mutation applied to a stored RawEmail.
type StatusUpdate struct {
	Status      ProcessingStatus
	Processed   bool
	LinkedJobID *string
	Error       *string
}

// RateCounter is the per-forwarder, per-day email tally.
type RateCounter struct {
	ForwarderEmail string    `json:"forwarder_email"`
	UserID         string    `json:"user_id"`
	Date           string    `json:"date"`
	Count          int       `json:"count"`
	RejectedCount  int       `json:"rejected_count"`
	WindowStart    time.Time `json:"window_start"`
	LastEmailAt    time.Time `json:"last_email_at"`
}

// RateCounterKey builds the document key for a forwarder on a given day.
// The date is taken in UTC.
func RateCounterKey(forwarderEmail string, day time.Time) string {
	return forwarderEmail + "_" + day.UTC().Format("2006-01-02")
}

// StringPtr returns nil for an empty string and a pointer otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

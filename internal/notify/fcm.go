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

package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/models"
)

// messageSender is the part of *messaging.Client the publisher uses.
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPublisher sends a data message to the user's topic. Dashboard clients
// subscribe their FCM tokens to "jobs-<userID>".
type FCMPublisher struct {
	client messageSender
	logger *zap.Logger
}

// NewFCMPublisher creates a publisher over a Firebase messaging client.
func NewFCMPublisher(client *messaging.Client, logger *zap.Logger) *FCMPublisher {
	return newFCMPublisher(client, logger)
}

func newFCMPublisher(client messageSender, logger *zap.Logger) *FCMPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FCMPublisher{client: client, logger: logger}
}

// Topic returns the FCM topic for a user.
func Topic(userID string) string {
	return "jobs-" + userID
}

// JobUpdated implements Notifier.
func (p *FCMPublisher) JobUpdated(ctx context.Context, ev models.JobEvent) error {
	title := "Application updated"
	if ev.Type == models.JobCreated {
		title = "New application tracked"
	}

	msg := &messaging.Message{
		Topic: Topic(ev.UserID),
		Data: map[string]string{
			"event_id": ev.ID,
			"type":     string(ev.Type),
			"job_id":   ev.JobID,
			"email_id": ev.EmailID,
			"stage":    ev.Stage.String(),
		},
		Notification: &messaging.Notification{
			Title: title,
			Body:  fmt.Sprintf("%s · %s: %s", ev.Company, ev.Title, ev.Stage),
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: title,
				Body:  fmt.Sprintf("%s · %s: %s", ev.Company, ev.Title, ev.Stage),
				Icon:  "/icon-192.svg",
			},
		},
	}

	id, err := p.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	p.logger.Debug("fcm message sent", zap.String("message", id), zap.String("topic", msg.Topic))
	return nil
}

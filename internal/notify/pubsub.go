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
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/models"
)

// PubSubPublisher publishes events to a Google Cloud Pub/Sub topic.
type PubSubPublisher struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSubPublisher publishes to topicID on client. The topic must exist.
func NewPubSubPublisher(client *pubsub.Client, topicID string, logger *zap.Logger) *PubSubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSubPublisher{topic: client.Topic(topicID), logger: logger}
}

// JobUpdated implements Notifier. It waits for the server to acknowledge
// the message.
func (p *PubSubPublisher) JobUpdated(ctx context.Context, ev models.JobEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"type":    string(ev.Type),
			"user_id": ev.UserID,
			"job_id":  ev.JobID,
		},
	})
	id, err := res.Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub publish: %w", err)
	}
	p.logger.Debug("pubsub message published", zap.String("message", id), zap.String("topic", p.topic.ID()))
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.topic.Stop()
}

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
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/models"
)

const (
	// DefaultQueue is the Redis list dashboards and workers consume.
	DefaultQueue = "jobsync:job-events"

	// maxQueueLen bounds the list when nothing is consuming it.
	maxQueueLen = 10000

	channelPrefix = "jobsync:jobs:"
)

// envelope wraps an event for Redis transport.
type envelope struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	ContentType string          `json:"content-type"`
	Body        models.JobEvent `json:"body"`
	SentAt      time.Time       `json:"sent_at"`
}

// RedisPublisher pushes events onto a Redis list and publishes them on a
// per-user channel for live listeners.
type RedisPublisher struct {
	rdb       *redis.Client
	queueName string
	logger    *zap.Logger
}

// NewRedisPublisher creates a publisher targeting queueName.
func NewRedisPublisher(rdb *redis.Client, queueName string, logger *zap.Logger) *RedisPublisher {
	if queueName == "" {
		queueName = DefaultQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, queueName: queueName, logger: logger}
}

// UserChannel is the pub/sub channel carrying one user's events.
func UserChannel(userID string) string {
	return channelPrefix + userID
}

// JobUpdated implements Notifier.
func (p *RedisPublisher) JobUpdated(ctx context.Context, ev models.JobEvent) error {
	msg, err := json.Marshal(envelope{
		ID:          ev.ID,
		Type:        string(ev.Type),
		ContentType: "application/json",
		Body:        ev,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}

	pipe := p.rdb.TxPipeline()
	pipe.LPush(ctx, p.queueName, msg)
	pipe.LTrim(ctx, p.queueName, 0, maxQueueLen-1)
	pipe.Publish(ctx, UserChannel(ev.UserID), msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish job event: %w", err)
	}

	p.logger.Info("published job event",
		zap.String("event_id", ev.ID),
		zap.String("job_id", ev.JobID),
		zap.String("queue", p.queueName),
	)
	return nil
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

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

// Package dedup drops relay redeliveries. The mail relay retries a POST
// whenever it does not see a timely 2xx, so the same Message-ID can arrive
// more than once.
package dedup

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultTTL covers the relay's retry window with plenty of margin.
	DefaultTTL = 72 * time.Hour

	keyPrefix = "jobsync:seen:"
)

// Filter remembers which Message-IDs have already been accepted.
type Filter struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewFilter creates a dedup filter backed by Redis. A non-positive ttl
// selects DefaultTTL.
func NewFilter(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Filter{rdb: rdb, ttl: ttl, logger: logger}
}

// IsNew reports whether messageID has not been seen before and marks it as
// seen in the same SETNX. Emails without a Message-ID are always new, and a
// Redis failure lets the email through.
func (f *Filter) IsNew(ctx context.Context, messageID string) bool {
	id := normalizeID(messageID)
	if id == "" {
		return true
	}

	set, err := f.rdb.SetNX(ctx, keyPrefix+id, 1, f.ttl).Result()
	if err != nil {
		f.logger.Warn("dedup check failed, accepting email",
			zap.String("message_id", id),
			zap.Error(err),
		)
		return true
	}
	return set
}

// Forget clears a Message-ID so a later redelivery is accepted again. It is
// used when an email was marked seen but could not be stored.
func (f *Filter) Forget(ctx context.Context, messageID string) {
	id := normalizeID(messageID)
	if id == "" {
		return
	}
	if err := f.rdb.Del(ctx, keyPrefix+id).Err(); err != nil {
		f.logger.Warn("dedup forget failed", zap.String("message_id", id), zap.Error(err))
	}
}

func normalizeID(messageID string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(messageID), "<>"))
}

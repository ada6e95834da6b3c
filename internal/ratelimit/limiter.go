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

// Package ratelimit caps how many emails a single forwarding address may
// submit per UTC calendar day.
//
// The check and the increment happen in one atomic step inside the counter
// backend, so concurrent webhooks for the same forwarder can never both slip
// past the cap.
package ratelimit

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultDailyLimit is the number of emails accepted per forwarder per day.
const DefaultDailyLimit = 100

// Result is the outcome of one rate check.
type Result struct {
	Limited bool
	Count   int // emails accepted today, including this one when not limited
}

// CounterStore performs the atomic read-modify-write on the day's counter:
//   - no counter for (forwarder, day): create it with count 1
//   - count >= limit: bump rejected_count and report Limited
//   - otherwise: increment count
type CounterStore interface {
	IncrementCapped(ctx context.Context, forwarder, userID string, limit int, now time.Time) (Result, error)
}

// Limiter applies the daily cap on top of a CounterStore.
type Limiter struct {
	store  CounterStore
	limit  int
	now    func() time.Time
	logger *zap.Logger
}

// New creates a Limiter. A non-positive limit selects DefaultDailyLimit.
func New(store CounterStore, limit int, logger *zap.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		now:    time.Now,
		logger: logger,
	}
}

// Limit returns the configured daily cap.
func (l *Limiter) Limit() int { return l.limit }

// CheckAndIncrement counts one email for forwarder and reports whether it is
// over today's cap. Backend failures fail open: the email is allowed.
func (l *Limiter) CheckAndIncrement(ctx context.Context, forwarder, userID string) Result {
	forwarder = strings.ToLower(strings.TrimSpace(forwarder))

	res, err := l.store.IncrementCapped(ctx, forwarder, userID, l.limit, l.now().UTC())
	if err != nil {
		l.logger.Warn("rate limit check failed, allowing email",
			zap.String("forwarder_email", forwarder),
			zap.Error(err),
		)
		return Result{}
	}

	if res.Limited {
		l.logger.Info("forwarder over daily limit",
			zap.String("forwarder_email", forwarder),
			zap.String("user_id", userID),
			zap.Int("count", res.Count),
			zap.Int("limit", l.limit),
		)
	}
	return res
}

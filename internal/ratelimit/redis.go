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

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobsync/ingestion/internal/models"
)

const (
	// counterTTL keeps a day's hash around long enough to inspect it after
	// the UTC day rolls over.
	counterTTL = 48 * time.Hour

	keyPrefix = "jobsync:rate:"
)

// incrementScript runs the capped increment server-side.
//
//	KEYS[1] counter hash
//	ARGV    limit, now (RFC3339), forwarder, user id, ttl seconds
//	returns {limited (0|1), count}
var incrementScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count') or '0')
local limit = tonumber(ARGV[1])

if count == 0 then
	redis.call('HSET', KEYS[1],
		'count', '1',
		'rejected_count', '0',
		'window_start', ARGV[2],
		'last_email', ARGV[2],
		'forwarder_email', ARGV[3],
		'user_id', ARGV[4])
	redis.call('EXPIRE', KEYS[1], ARGV[5])
	return {0, 1}
end

if count >= limit then
	redis.call('HINCRBY', KEYS[1], 'rejected_count', '1')
	redis.call('HSET', KEYS[1], 'last_rejected', ARGV[2])
	return {1, count}
end

count = redis.call('HINCRBY', KEYS[1], 'count', '1')
redis.call('HSET', KEYS[1], 'last_email', ARGV[2])
return {0, count}
`)

// RedisCounter keeps daily counters as Redis hashes.
type RedisCounter struct {
	rdb redis.Scripter
	ttl time.Duration
}

// NewRedisCounter creates a counter backed by rdb.
func NewRedisCounter(rdb redis.Scripter) *RedisCounter {
	return &RedisCounter{rdb: rdb, ttl: counterTTL}
}

// IncrementCapped implements CounterStore.
func (c *RedisCounter) IncrementCapped(ctx context.Context, forwarder, userID string, limit int, now time.Time) (Result, error) {
	key := keyPrefix + models.RateCounterKey(forwarder, now)

	vals, err := incrementScript.Run(ctx, c.rdb, []string{key},
		limit,
		now.UTC().Format(time.RFC3339),
		forwarder,
		userID,
		int(c.ttl.Seconds()),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate counter %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate counter %s: unexpected reply %v", key, vals)
	}

	return Result{Limited: vals[0] == 1, Count: int(vals[1])}, nil
}

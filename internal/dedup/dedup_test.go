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

package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

func TestIsNew(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := NewFilter(rdb, time.Hour, zaptest.NewLogger(t))
	ctx := context.Background()

	if !f.IsNew(ctx, "<abc@mail.gmail.com>") {
		t.Fatal("first delivery reported as duplicate")
	}
	if f.IsNew(ctx, "abc@mail.gmail.com") {
		t.Fatal("redelivery reported as new")
	}
	if !f.IsNew(ctx, "other@mail.gmail.com") {
		t.Fatal("different message reported as duplicate")
	}

	if ttl := mr.TTL(keyPrefix + "abc@mail.gmail.com"); ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", ttl)
	}

	f.Forget(ctx, "<other@mail.gmail.com>")
	if !f.IsNew(ctx, "other@mail.gmail.com") {
		t.Error("forgotten id still reported as duplicate")
	}

	mr.FastForward(2 * time.Hour)
	if !f.IsNew(ctx, "abc@mail.gmail.com") {
		t.Error("expired id still reported as duplicate")
	}
}

func TestIsNew_EmptyIDAlwaysNew(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	f := NewFilter(rdb, 0, nil)
	for i := 0; i < 3; i++ {
		if !f.IsNew(context.Background(), "  ") {
			t.Fatalf("empty id reported as duplicate on call %d", i)
		}
	}
	if f.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want %v", f.ttl, DefaultTTL)
	}
}

func TestIsNew_FailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatal(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	f := NewFilter(rdb, time.Hour, zaptest.NewLogger(t))
	if !f.IsNew(context.Background(), "abc@mail.gmail.com") {
		t.Error("redis failure should accept the email")
	}
}

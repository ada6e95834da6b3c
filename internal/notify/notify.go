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

// Package notify tells dashboards that a job application changed so they
// can refresh. Delivery is best effort; callers log failures and move on.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/models"
)

// Notifier delivers job change events.
type Notifier interface {
	JobUpdated(ctx context.Context, ev models.JobEvent) error
}

// Nop drops every event.
type Nop struct{}

// JobUpdated implements Notifier.
func (Nop) JobUpdated(context.Context, models.JobEvent) error { return nil }

// Multi fans an event out to several notifiers. Every notifier is tried;
// the returned error joins all failures.
type Multi struct {
	notifiers []Notifier
	logger    *zap.Logger
}

// NewMulti creates a fan-out notifier. Nil entries are skipped.
func NewMulti(logger *zap.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Multi{logger: logger}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len reports how many notifiers are wired.
func (m *Multi) Len() int { return len(m.notifiers) }

// JobUpdated implements Notifier.
func (m *Multi) JobUpdated(ctx context.Context, ev models.JobEvent) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.JobUpdated(ctx, ev); err != nil {
			m.logger.Warn("job notification failed",
				zap.String("job_id", ev.JobID),
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

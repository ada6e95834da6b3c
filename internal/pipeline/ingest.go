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

// Package pipeline runs an inbound email from the webhook to a classified
// job application.
//
// Ingestion is synchronous and cheap: resolve fields, look the user up,
// drop redeliveries, apply the rate limit and store the raw email.
// Classification runs afterwards in the background and is the only place
// the language model is called.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/ratelimit"
	"github.com/jobsync/ingestion/internal/sender"
	"github.com/jobsync/ingestion/internal/store"
)

// Status is the ingestion decision for one email.
type Status int

const (
	Accepted Status = iota
	UnknownUser
	Duplicate
	RateLimited
)

func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case UnknownUser:
		return "unknown_user"
	case Duplicate:
		return "duplicate"
	case RateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome describes what happened to an inbound email.
type Outcome struct {
	Status         Status
	UserID         string
	TrackingCode   string
	ForwarderEmail string
	Count          int              // forwarder's emails today, as seen by the limiter
	Email          *models.RawEmail // set when Accepted
}

// Deduper drops relay redeliveries.
type Deduper interface {
	IsNew(ctx context.Context, messageID string) bool
	Forget(ctx context.Context, messageID string)
}

// RateChecker applies the per-forwarder daily cap.
type RateChecker interface {
	CheckAndIncrement(ctx context.Context, forwarder, userID string) ratelimit.Result
}

// Ingestor performs the synchronous half of the pipeline.
type Ingestor struct {
	resolver *sender.Resolver
	users    store.UserDirectory
	emails   store.RawEmailStore
	limiter  RateChecker
	dedup    Deduper
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewIngestor wires an Ingestor. dedup may be nil.
func NewIngestor(resolver *sender.Resolver, users store.UserDirectory, emails store.RawEmailStore, limiter RateChecker, dedup Deduper, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		resolver: resolver,
		users:    users,
		emails:   emails,
		limiter:  limiter,
		dedup:    dedup,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Ingest resolves, checks and stores one inbound email. A non-nil error
// means the email was not stored; callers still answer the relay with 200.
func (i *Ingestor) Ingest(ctx context.Context, in sender.Input) (Outcome, error) {
	res := i.resolver.Resolve(in)
	out := Outcome{
		TrackingCode:   res.TrackingCode,
		ForwarderEmail: res.ForwarderEmail,
	}

	log := i.logger.With(
		zap.String("tracking_code", res.TrackingCode),
		zap.String("forwarder_email", res.ForwarderEmail),
	)
	log.Debug("resolved inbound email",
		zap.String("original_sender", res.OriginalSender),
		zap.String("sender_rule", res.SenderRule),
		zap.String("subject", res.Subject),
	)

	userID, err := i.users.LookupUserByTrackingCode(ctx, res.TrackingCode)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("no user for tracking code, dropping email")
		out.Status = UnknownUser
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("lookup tracking code %q: %w", res.TrackingCode, err)
	}
	out.UserID = userID

	messageID := sender.HeaderValue(in.Headers, "Message-ID")
	if i.dedup != nil && !i.dedup.IsNew(ctx, messageID) {
		log.Info("duplicate delivery, dropping email", zap.String("message_id", messageID))
		out.Status = Duplicate
		return out, nil
	}

	rate := i.limiter.CheckAndIncrement(ctx, res.ForwarderEmail, userID)
	out.Count = rate.Count
	if rate.Limited {
		if i.dedup != nil {
			i.dedup.Forget(ctx, messageID)
		}
		out.Status = RateLimited
		return out, nil
	}

	email := &models.RawEmail{
		ID:               i.newID(),
		OriginalSender:   models.StringPtr(res.OriginalSender),
		ForwarderEmail:   res.ForwarderEmail,
		ReceiverAddress:  res.ReceiverAddress,
		TrackingCode:     res.TrackingCode,
		OriginalSentAt:   res.OriginalSentAt,
		Subject:          res.Subject,
		BodyContent:      res.BodyContent,
		MessageID:        messageID,
		ReceivedAt:       i.now().UTC(),
		ProcessingStatus: models.StatusPending,
	}
	if err := i.emails.CreateRawEmail(ctx, email); err != nil {
		if i.dedup != nil {
			i.dedup.Forget(ctx, messageID)
		}
		return out, fmt.Errorf("store raw email: %w", err)
	}

	log.Info("stored inbound email",
		zap.String("email_id", email.ID),
		zap.String("user_id", userID),
		zap.Int("count", rate.Count),
	)
	out.Status = Accepted
	out.Email = email
	return out, nil
}

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

// Package extract asks a language model to pull structured job-application
// fields out of an email and parses its answer.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/stage"
)

var (
	// ErrUnavailable means the model could not be reached or refused the
	// request. The email should be left for later processing.
	ErrUnavailable = errors.New("extraction service unavailable")

	// ErrMalformed means the model answered but no usable object could be
	// parsed from the answer.
	ErrMalformed = errors.New("malformed extraction response")
)

// Request is the email content sent to the model.
type Request struct {
	Sender  string
	Subject string
	SentAt  string
	Body    string
}

// Result is the structured answer. Company and JobTitle are empty when the
// model could not tell; the optional fields are nil.
type Result struct {
	Company      string
	JobTitle     string
	CurrentStage *stage.Stage
	Salary       *string
	Location     *string
	Contact      *string
	EmailSummary *string
	Notes        *string
}

// Generator sends a prompt to a model and returns its raw text answer.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client builds prompts, calls a Generator and parses the answer.
type Client struct {
	gen    Generator
	logger *zap.Logger
}

// NewClient creates a Client around gen.
func NewClient(gen Generator, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{gen: gen, logger: logger}
}

// Extract runs one extraction. Errors wrap ErrUnavailable or ErrMalformed.
func (c *Client) Extract(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	text, err := c.gen.Generate(ctx, BuildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	c.logger.Debug("model answered",
		zap.Duration("elapsed", time.Since(start)),
		zap.String("preview", preview(text, 200)),
	)

	res, err := ParseResponse(text)
	if err != nil {
		c.logger.Warn("could not parse model answer",
			zap.String("response", preview(text, 1000)),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

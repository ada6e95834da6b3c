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

// Package webhook receives inbound emails from the mail relay
// (CloudMailin). Each POST is resolved and stored synchronously, answered,
// and then classified in the background.
//
// The relay retries anything that is not a 2xx, and a retry would store
// the email twice, so every outcome except the rate limit answers 200.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jobsync/ingestion/internal/models"
	"github.com/jobsync/ingestion/internal/pipeline"
	"github.com/jobsync/ingestion/internal/sender"
)

// maxBodyBytes bounds one inbound request.
const maxBodyBytes = 25 << 20

// Ingester is the synchronous half of the pipeline.
type Ingester interface {
	Ingest(ctx context.Context, in sender.Input) (pipeline.Outcome, error)
}

// Spawner starts background classification.
type Spawner interface {
	Spawn(email *models.RawEmail, userID string)
}

// Handler serves the relay webhook.
type Handler struct {
	ingester   Ingester
	classifier Spawner
	dailyLimit int
	logger     *zap.Logger
}

// NewHandler creates the webhook handler. dailyLimit only feeds the 429
// message text.
func NewHandler(ingester Ingester, classifier Spawner, dailyLimit int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		ingester:   ingester,
		classifier: classifier,
		dailyLimit: dailyLimit,
		logger:     logger,
	}
}

// Router builds the gin engine with the webhook and health routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), h.accessLog())

	r.Any("/receive", h.Receive)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

// Receive handles one relay delivery.
func (h *Handler) Receive(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST")

	switch c.Request.Method {
	case http.MethodOptions:
		c.Status(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		c.String(http.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}

	in, err := h.decode(c)
	if err != nil {
		h.logger.Error("could not decode inbound email", zap.Error(err))
		c.String(http.StatusOK, "Error logged")
		return
	}

	out, err := h.ingester.Ingest(c.Request.Context(), in)
	if err != nil {
		h.logger.Error("ingestion failed",
			zap.String("tracking_code", out.TrackingCode),
			zap.Error(err),
		)
		c.String(http.StatusOK, "Error logged")
		return
	}

	switch out.Status {
	case pipeline.RateLimited:
		h.logger.Warn("rate limit exceeded",
			zap.String("forwarder_email", out.ForwarderEmail),
			zap.Int("daily_limit", h.dailyLimit),
		)
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":           "Rate limit exceeded",
			"message":         fmt.Sprintf("You have reached the daily limit of %d forwarded emails. Please try again tomorrow.", h.dailyLimit),
			"forwarder_email": out.ForwarderEmail,
		})
	case pipeline.Accepted:
		c.String(http.StatusOK, "Email received and queued for processing")
		// Classification outlives the request.
		h.classifier.Spawn(out.Email, out.UserID)
	default:
		c.String(http.StatusOK, "OK")
	}
}

// decode picks the payload parser from the content type.
func (h *Handler) decode(c *gin.Context) (sender.Input, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	switch c.ContentType() {
	case "multipart/form-data":
		if err := c.Request.ParseMultipartForm(maxBodyBytes); err != nil {
			return sender.Input{}, fmt.Errorf("parse multipart form: %w", err)
		}
		return ParseForm(c.Request.PostForm), nil
	case "application/x-www-form-urlencoded":
		if err := c.Request.ParseForm(); err != nil {
			return sender.Input{}, fmt.Errorf("parse form: %w", err)
		}
		return ParseForm(c.Request.PostForm), nil
	case "message/rfc822":
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return sender.Input{}, fmt.Errorf("read body: %w", err)
		}
		return ParseMIME(raw, c.Request.URL.Query())
	default:
		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return sender.Input{}, fmt.Errorf("read body: %w", err)
		}
		return ParseJSON(raw)
	}
}

func (h *Handler) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler http.Handler, logger *zap.Logger) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	go func() {
		logger.Info("webhook server listening", zap.Int("port", port))
		close(ready)
		if err := server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("webhook server error", zap.Error(err))
		}
	}()

	return ready, nil
}

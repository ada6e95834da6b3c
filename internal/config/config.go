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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
	BackendStore     = "store"
)

// ServerConfig configures the webhook listener.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// InboundConfig holds the domain knowledge used to resolve senders.
type InboundConfig struct {
	Domain           string
	RelayDomain      string
	ForwarderMarkers []string
	PersonalDomains  []string
}

// RateLimitConfig configures the per-forwarder daily cap. Backend is
// "redis" or "store" (the document store's own counter) and defaults to
// redis when a Redis URL is set.
type RateLimitConfig struct {
	MaxPerDay int
	Backend   string
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	Backend           string
	DatabaseURL       string
	FirestoreProject  string
	CredentialsFile   string
	FirestoreDatabase string
}

// RedisConfig configures Redis. An empty URL disables every Redis feature.
type RedisConfig struct {
	URL      string
	DedupTTL time.Duration
}

// AIConfig configures the extraction model.
type AIConfig struct {
	Provider     string
	APIKey       string
	Model        string
	BaseURL      string
	Temperature  float32
	MaxTokens    int
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NotifyConfig configures dashboard refresh events.
type NotifyConfig struct {
	RedisQueue  string
	FCM         bool
	PubSubTopic string
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Server    ServerConfig
	Inbound   InboundConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	Redis     RedisConfig
	AI        AIConfig
	Notify    NotifyConfig
	LogLevel  string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Server struct {
		Port            int    `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Inbound struct {
		Domain           string   `yaml:"domain"`
		RelayDomain      string   `yaml:"relay_domain"`
		ForwarderMarkers []string `yaml:"forwarder_markers"`
		PersonalDomains  []string `yaml:"personal_domains"`
	} `yaml:"inbound"`
	RateLimit struct {
		MaxPerDay int    `yaml:"max_per_day"`
		Backend   string `yaml:"backend"`
	} `yaml:"rate_limit"`
	Store struct {
		Backend     string `yaml:"backend"`
		DatabaseURL string `yaml:"database_url"`
		Firestore   struct {
			Project     string `yaml:"project"`
			Database    string `yaml:"database"`
			Credentials string `yaml:"credentials"`
		} `yaml:"firestore"`
	} `yaml:"store"`
	Redis struct {
		URL      string `yaml:"url"`
		DedupTTL string `yaml:"dedup_ttl"`
	} `yaml:"redis"`
	AI struct {
		Provider     string   `yaml:"provider"`
		APIKey       string   `yaml:"api_key"`
		Model        string   `yaml:"model"`
		BaseURL      string   `yaml:"base_url"`
		Temperature  *float32 `yaml:"temperature"`
		MaxTokens    int      `yaml:"max_tokens"`
		ClientID     string   `yaml:"client_id"`
		ClientSecret string   `yaml:"client_secret"`
		TokenURL     string   `yaml:"token_url"`
		Scopes       []string `yaml:"scopes"`
	} `yaml:"ai"`
	Notify struct {
		RedisQueue  string `yaml:"redis_queue"`
		FCM         bool   `yaml:"fcm"`
		PubSubTopic string `yaml:"pubsub_topic"`
	} `yaml:"notify"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads .env (if present), then configuration from config.yaml (with
// env var expansion), then environment variables for anything the file
// leaves empty. A missing config file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFile(envOrDefault("CONFIG_PATH", "config/config.yaml"))
}

// LoadFile is Load without the .env step.
func LoadFile(configPath string) (*Config, error) {
	var raw rawConfig

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	default:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	redisURL := firstNonEmpty(raw.Redis.URL, os.Getenv("REDIS_URL"))
	rateBackend := firstNonEmpty(raw.RateLimit.Backend, os.Getenv("RATE_LIMIT_BACKEND"))
	if rateBackend == "" {
		rateBackend = BackendStore
		if redisURL != "" {
			rateBackend = BackendRedis
		}
	}

	temperature := float32(envOrDefaultFloat("AI_TEMPERATURE", 0.1))
	if raw.AI.Temperature != nil {
		temperature = *raw.AI.Temperature
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            firstPositive(raw.Server.Port, envOrDefaultInt("PORT", 8080)),
			ShutdownTimeout: durationOr(raw.Server.ShutdownTimeout, envOrDefaultDuration("SHUTDOWN_TIMEOUT", 30*time.Second)),
		},
		Inbound: InboundConfig{
			Domain:           firstNonEmpty(raw.Inbound.Domain, envOrDefault("INBOUND_DOMAIN", "jobsync.fyi")),
			RelayDomain:      firstNonEmpty(raw.Inbound.RelayDomain, envOrDefault("RELAY_DOMAIN", "cloudmailin.net")),
			ForwarderMarkers: firstList(raw.Inbound.ForwarderMarkers, envList("FORWARDER_MARKERS")),
			PersonalDomains:  firstList(raw.Inbound.PersonalDomains, envList("PERSONAL_DOMAINS")),
		},
		RateLimit: RateLimitConfig{
			MaxPerDay: firstPositive(raw.RateLimit.MaxPerDay, envOrDefaultInt("RATE_LIMIT_PER_DAY", 100)),
			Backend:   strings.ToLower(rateBackend),
		},
		Store: StoreConfig{
			Backend:           strings.ToLower(firstNonEmpty(raw.Store.Backend, envOrDefault("STORE_BACKEND", BackendMemory))),
			DatabaseURL:       firstNonEmpty(raw.Store.DatabaseURL, os.Getenv("DATABASE_URL")),
			FirestoreProject:  firstNonEmpty(raw.Store.Firestore.Project, os.Getenv("GOOGLE_CLOUD_PROJECT")),
			FirestoreDatabase: firstNonEmpty(raw.Store.Firestore.Database, os.Getenv("FIRESTORE_DATABASE")),
			CredentialsFile:   firstNonEmpty(raw.Store.Firestore.Credentials, os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		},
		Redis: RedisConfig{
			URL:      redisURL,
			DedupTTL: durationOr(raw.Redis.DedupTTL, envOrDefaultDuration("DEDUP_TTL", 72*time.Hour)),
		},
		AI: AIConfig{
			Provider:     strings.ToLower(firstNonEmpty(raw.AI.Provider, envOrDefault("AI_PROVIDER", "gemini"))),
			APIKey:       firstNonEmpty(raw.AI.APIKey, os.Getenv("AI_API_KEY"), os.Getenv("GEMINI_API_KEY")),
			Model:        firstNonEmpty(raw.AI.Model, os.Getenv("AI_MODEL")),
			BaseURL:      firstNonEmpty(raw.AI.BaseURL, os.Getenv("AI_BASE_URL")),
			Temperature:  temperature,
			MaxTokens:    firstPositive(raw.AI.MaxTokens, envOrDefaultInt("AI_MAX_TOKENS", 1024)),
			ClientID:     firstNonEmpty(raw.AI.ClientID, os.Getenv("AI_CLIENT_ID")),
			ClientSecret: firstNonEmpty(raw.AI.ClientSecret, os.Getenv("AI_CLIENT_SECRET")),
			TokenURL:     firstNonEmpty(raw.AI.TokenURL, os.Getenv("AI_TOKEN_URL")),
			Scopes:       firstList(raw.AI.Scopes, envList("AI_SCOPES")),
		},
		Notify: NotifyConfig{
			RedisQueue:  firstNonEmpty(raw.Notify.RedisQueue, os.Getenv("NOTIFY_REDIS_QUEUE")),
			FCM:         raw.Notify.FCM || envBool("NOTIFY_FCM"),
			PubSubTopic: firstNonEmpty(raw.Notify.PubSubTopic, os.Getenv("NOTIFY_PUBSUB_TOPIC")),
		},
		LogLevel: strings.ToLower(firstNonEmpty(raw.Log.Level, envOrDefault("LOG_LEVEL", "info"))),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if c.Inbound.Domain == "" {
		errs = append(errs, errors.New("inbound domain is required"))
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("store backend postgres requires database_url"))
		}
	case BackendFirestore:
		if c.Store.FirestoreProject == "" {
			errs = append(errs, errors.New("store backend firestore requires a project"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	switch c.RateLimit.Backend {
	case BackendStore:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("rate limit backend redis requires redis url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend))
	}

	switch c.AI.Provider {
	case "gemini", "openai":
	default:
		errs = append(errs, fmt.Errorf("unknown ai provider %q", c.AI.Provider))
	}

	if c.Notify.RedisQueue != "" && c.Redis.URL == "" {
		errs = append(errs, errors.New("notify redis_queue requires redis url"))
	}

	return errors.Join(errs...)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return f
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// envList splits a comma-separated variable.
func envList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return fallback
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstList(values ...[]string) []string {
	for _, v := range values {
		if len(v) > 0 {
			return v
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

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

package extract

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Config selects and configures a model provider.
type Config struct {
	Provider    string // "gemini" or "openai"
	APIKey      string
	Model       string
	BaseURL     string // openai only
	Temperature float32
	MaxTokens   int

	// Client credentials replace APIKey for gateways that issue
	// short-lived tokens (openai only).
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

func (c Config) hasClientCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.TokenURL != ""
}

// NewGenerator builds the configured Generator. It returns nil with no
// error when no credential is configured, in which case extraction is
// skipped.
func NewGenerator(ctx context.Context, cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "gemini":
		if cfg.APIKey == "" {
			return nil, nil
		}
		g, err := NewGeminiGenerator(ctx, cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		return g, nil

	case "openai":
		if cfg.BaseURL == "" {
			cfg.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.hasClientCredentials() {
			cc := &clientcredentials.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				TokenURL:     cfg.TokenURL,
				Scopes:       cfg.Scopes,
			}
			return NewOpenAIGenerator(cc.Client(ctx), cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens), nil
		}
		if cfg.APIKey == "" {
			return nil, nil
		}
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
		return NewOpenAIGenerator(oauth2.NewClient(ctx, ts), cfg.BaseURL, cfg.Model, cfg.Temperature, cfg.MaxTokens), nil

	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

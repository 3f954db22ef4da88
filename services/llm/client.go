// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides text-generation backends behind one interface.
//
// Three backends are supported: Anthropic (raw messages API), OpenAI
// (chat completions via go-openai), and Ollama (local endpoint).
// Backend selection happens once at startup via NewFromEnv; callers
// hold the interface and never branch on provider. Provider errors
// map onto the resilience taxonomy so 429s and 5xx responses retry
// while auth failures do not.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/runlens-ai/runlens/pkg/resilience"
)

var tracer = otel.Tracer("runlens.llm")

// GenerationParams carries optional sampling parameters. Nil fields
// defer to the backend's defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Backend names accepted in LLM_BACKEND, doubling as resilience
// service names for rate limiting and retry.
const (
	BackendAnthropic = "anthropic"
	BackendOpenAI    = "openai"
	BackendOllama    = "ollama"
)

// NewFromEnv builds the backend named by LLM_BACKEND (default
// anthropic) and returns it with its service name.
func NewFromEnv() (LLMClient, string, error) {
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_BACKEND")))
	if backend == "" {
		backend = BackendAnthropic
	}

	switch backend {
	case BackendAnthropic:
		c, err := NewAnthropicClient()
		if err != nil {
			return nil, "", err
		}
		return c, backend, nil
	case BackendOpenAI:
		c, err := NewOpenAIClient()
		if err != nil {
			return nil, "", err
		}
		return c, backend, nil
	case BackendOllama:
		c, err := NewOllamaClient()
		if err != nil {
			return nil, "", err
		}
		return c, backend, nil
	default:
		return nil, "", fmt.Errorf("unknown LLM backend %q (want anthropic, openai, or ollama)", backend)
	}
}

// Float32 returns a pointer to v, for optional params.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v, for optional params.
func Int(v int) *int { return &v }

// apiKeyFromEnv reads a key from the environment, falling back to a
// mounted container secret.
func apiKeyFromEnv(envVar, secretPath string) string {
	if key := os.Getenv(envVar); key != "" {
		return key
	}
	if content, err := os.ReadFile(secretPath); err == nil {
		key := strings.TrimSpace(string(content))
		if key != "" {
			slog.Info("Read API key from container secrets", "path", secretPath)
			return key
		}
	}
	return ""
}

// transportError wraps a client-side request failure as transient so
// the executor retries it.
func transportError(provider string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s request: %v: %w", provider, err, resilience.ErrTimeout)
	}
	return fmt.Errorf("%s request: %v: %w", provider, err, resilience.ErrConnection)
}

// providerStatusError maps a provider HTTP status onto the resilience
// taxonomy. 429 and 5xx are transient; 401/403 terminal.
func providerStatusError(provider string, status int, body string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s returned status %d: %w", provider, status, resilience.ErrAuthentication)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s returned status %d: %w", provider, status, resilience.ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("%s returned status %d: %s: %w", provider, status, body, resilience.ErrConnection)
	default:
		return fmt.Errorf("%s returned status %d: %s", provider, status, body)
	}
}

// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package wandb fetches experiment runs from a W&B-compatible
// tracking API.
//
// Every request goes through the resilience executor under the
// service name "wandb", so rate limiting, retry with backoff, and
// transient/terminal error classification apply uniformly. An
// optional badger cache short-circuits repeat fetches within its TTL.
package wandb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runlens-ai/runlens/pkg/resilience"
	"github.com/runlens-ai/runlens/pkg/runs"
	"github.com/runlens-ai/runlens/pkg/validation"
)

const (
	// ServiceName keys this client's rate-limit bucket and circuit
	// breaker inside the resilience layer.
	ServiceName = "wandb"

	// DefaultBaseURL is the hosted tracking API endpoint.
	DefaultBaseURL = "https://api.wandb.ai"

	apiPrefix = "/api/v1"
	userAgent = "runlens-dashboard/1.0"

	// compareWorkers caps parallel per-run fetches in CompareRuns.
	compareWorkers = 8
)

// HTTPClient interface allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config collects client dependencies. Zero values pull from the
// environment (WANDB_BASE_URL, WANDB_API_KEY) or fall back to
// production defaults.
type Config struct {
	BaseURL    string
	APIKey     string
	HTTPClient HTTPClient
	Executor   *resilience.Executor
	Cache      *Cache
	Logger     *slog.Logger
}

// Client is a tracking-API client. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPClient
	exec       *resilience.Executor
	cache      *Cache
	logger     *slog.Logger
}

// NewClient builds a Client from cfg, filling unset fields from the
// environment and defaults. A nil Executor gets the default retry
// policy without rate limiting; a nil Cache disables caching.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("WANDB_BASE_URL")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("WANDB_API_KEY")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	exec := cfg.Executor
	if exec == nil {
		exec = resilience.NewExecutor(nil, resilience.DefaultConfig())
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		exec:       exec,
		cache:      cfg.Cache,
		logger:     logger,
	}
}

// ListOptions controls run listing.
type ListOptions struct {
	Limit int    // max runs to return, default 50
	Order string // sort key, default "-created_at" (newest first)
}

func (o ListOptions) withDefaults() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Order == "" {
		o.Order = "-created_at"
	}
	return o
}

// ListRuns fetches run summaries for a project: metadata, config, and
// last-value metrics. Full series require GetRunHistory.
func (c *Client) ListRuns(ctx context.Context, entity, project string, opts ListOptions) ([]runs.Run, error) {
	if err := validation.ValidateRunPath(entity, project); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	if c.cache != nil {
		var cached []runs.Run
		if c.cache.get(listKey(entity, project, opts), &cached) {
			c.logger.Debug("run list served from cache", "entity", entity, "project", project)
			return cached, nil
		}
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(opts.Limit))
	query.Set("order", opts.Order)

	var wire apiRunList
	if err := c.getJSON(ctx, runsPath(entity, project), query, &wire); err != nil {
		return nil, err
	}

	out := make([]runs.Run, 0, len(wire.Runs))
	for _, a := range wire.Runs {
		out = append(out, toRun(a))
	}

	if c.cache != nil {
		c.cache.put(listKey(entity, project, opts), out)
	}
	c.logger.Info("fetched runs", "entity", entity, "project", project, "count", len(out))
	return out, nil
}

// GetRun fetches a single run by ID.
func (c *Client) GetRun(ctx context.Context, entity, project, runID string) (*runs.Run, error) {
	if err := validation.ValidateRunPath(entity, project); err != nil {
		return nil, err
	}
	if err := validation.ValidateRunID(runID); err != nil {
		return nil, err
	}

	if c.cache != nil {
		var cached runs.Run
		if c.cache.get(runKey(entity, project, runID), &cached) {
			return &cached, nil
		}
	}

	var wire apiRun
	if err := c.getJSON(ctx, runPath(entity, project, runID), nil, &wire); err != nil {
		return nil, err
	}

	r := toRun(wire)
	if c.cache != nil {
		c.cache.put(runKey(entity, project, runID), r)
	}
	return &r, nil
}

// GetRunHistory fetches sampled metric series for a run. metrics
// narrows the response to the named keys; empty fetches everything
// the run logged. samples caps series length, default 500.
func (c *Client) GetRunHistory(ctx context.Context, entity, project, runID string, metrics []string, samples int) (map[string][]float64, error) {
	if err := validation.ValidateRunPath(entity, project); err != nil {
		return nil, err
	}
	if err := validation.ValidateRunID(runID); err != nil {
		return nil, err
	}
	for _, m := range metrics {
		if err := validation.ValidateMetricName(m); err != nil {
			return nil, err
		}
	}
	if samples <= 0 {
		samples = 500
	}

	if c.cache != nil {
		var cached map[string][]float64
		if c.cache.get(historyKey(entity, project, runID, metrics, samples), &cached) {
			return cached, nil
		}
	}

	query := url.Values{}
	query.Set("samples", strconv.Itoa(samples))
	if len(metrics) > 0 {
		query.Set("keys", strings.Join(metrics, ","))
	}

	var wire apiHistory
	if err := c.getJSON(ctx, runPath(entity, project, runID)+"/history", query, &wire); err != nil {
		return nil, err
	}

	series := historySeries(wire.History, metrics)
	if c.cache != nil {
		c.cache.put(historyKey(entity, project, runID, metrics, samples), series)
	}
	return series, nil
}

// CompareRuns fetches several runs in parallel, preserving the order
// of runIDs in the result. The first failure cancels the rest.
func (c *Client) CompareRuns(ctx context.Context, entity, project string, runIDs []string) ([]runs.Run, error) {
	if err := validation.ValidateRunPath(entity, project); err != nil {
		return nil, err
	}
	if len(runIDs) == 0 {
		return nil, fmt.Errorf("no run ids provided")
	}
	for _, id := range runIDs {
		if err := validation.ValidateRunID(id); err != nil {
			return nil, err
		}
	}

	out := make([]runs.Run, len(runIDs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(compareWorkers)
	for i, id := range runIDs {
		i, id := i, id
		g.Go(func() error {
			r, err := c.GetRun(ctx, entity, project, id)
			if err != nil {
				return fmt.Errorf("run %s: %w", id, err)
			}
			out[i] = *r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListArtifacts fetches the artifacts logged by a run.
func (c *Client) ListArtifacts(ctx context.Context, entity, project, runID string) ([]Artifact, error) {
	if err := validation.ValidateRunPath(entity, project); err != nil {
		return nil, err
	}
	if err := validation.ValidateRunID(runID); err != nil {
		return nil, err
	}

	var wire apiArtifactList
	if err := c.getJSON(ctx, runPath(entity, project, runID)+"/artifacts", nil, &wire); err != nil {
		return nil, err
	}
	return wire.Artifacts, nil
}

// getJSON performs one GET through the resilience executor and
// decodes the 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.exec.Execute(ctx, ServiceName, func(ctx context.Context) error {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", userAgent)
		if c.apiKey != "" {
			req.SetBasicAuth("api", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return transportError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return statusError(resp.StatusCode, strings.TrimSpace(string(body)))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode tracking api response: %w", err)
		}
		return nil
	})
}

func runsPath(entity, project string) string {
	return apiPrefix + "/runs/" + url.PathEscape(entity) + "/" + url.PathEscape(project)
}

func runPath(entity, project, runID string) string {
	return runsPath(entity, project) + "/" + url.PathEscape(runID)
}

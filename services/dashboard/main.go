// Copyright (C) 2025 Runlens AI (dev@runlens.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/runlens-ai/runlens/pkg/extensions"
	"github.com/runlens-ai/runlens/pkg/logging"
	"github.com/runlens-ai/runlens/pkg/ratelimit"
	"github.com/runlens-ai/runlens/pkg/resilience"
	"github.com/runlens-ai/runlens/services/dashboard/handlers"
	"github.com/runlens-ai/runlens/services/dashboard/observability"
	"github.com/runlens-ai/runlens/services/dashboard/routes"
	"github.com/runlens-ai/runlens/services/gitdiff"
	"github.com/runlens-ai/runlens/services/insights"
	"github.com/runlens-ai/runlens/services/llm"
	"github.com/runlens-ai/runlens/services/wandb"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "runlens-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("dashboard-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("DASHBOARD_PORT")
	if port == "" {
		port = "12500"
	}

	logWrapper := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("RUNLENS_LOG_LEVEL")),
		LogDir:  os.Getenv("RUNLENS_LOG_DIR"),
		Service: "dashboard",
		JSON:    true,
	})
	defer logWrapper.Close()
	logger := logWrapper.Slog()
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	// One executor shared by every outbound client so the per-service
	// rate limits hold across the whole process.
	executor := resilience.NewExecutor(ratelimit.NewDefaultRegistry(), resilience.DefaultConfig())

	cache := openRunCache()
	wb := wandb.NewClient(wandb.Config{
		Executor: executor,
		Cache:    cache,
		Logger:   logger,
	})

	opts := extensions.DefaultOptions()
	opts.AuditLogger = extensions.NewSlogAuditLogger(logger)
	if provider, err := extensions.NewTokenAuthProviderFromEnv(); err == nil {
		opts.AuthProvider = provider
		slog.Info("Token authentication enabled")
	} else {
		slog.Info("RUNLENS_API_TOKENS not set. Anonymous local access enabled.")
	}
	if v := os.Getenv("RUNLENS_REDACT_PROMPTS"); v == "true" || v == "1" {
		opts.PromptFilter = extensions.NewRedactingPromptFilter()
		slog.Info("Prompt redaction enabled")
	}

	log.Println("Configuring the LLM Client")
	var analyzer *insights.Analyzer
	llmClient, backend, err := llm.NewFromEnv()
	if err != nil {
		slog.Info("LLM backend unavailable. Running in lightweight mode (no insight endpoints).",
			"error", err)
	} else {
		analyzer, err = insights.NewAnalyzer(insights.Config{
			Client:   llmClient,
			Service:  backend,
			Executor: executor,
			Filter:   opts.PromptFilter,
			Logger:   logger,
		})
		if err != nil {
			slog.Error("Failed to create the insight analyzer", "error", err)
			analyzer = nil
		} else {
			slog.Info("Using LLM backend for insights", "backend", backend)
		}
	}

	repo, watcher := openRepo(cache)
	if watcher != nil {
		go watcher.Start(context.Background())
	}

	influx := handlers.InfluxConfigFromEnv()
	if influx == nil {
		slog.Info("INFLUXDB_URL not set. History export disabled.")
	} else {
		slog.Info("History export enabled",
			"influx_url", influx.URL,
			"influx_org", influx.Org,
			"influx_bucket", influx.Bucket)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("dashboard-service"))

	routes.SetupRoutes(router, wb, analyzer, repo, influx, opts)

	srv := &http.Server{Addr: ":" + port, Handler: router}
	go func() {
		log.Println("Starting the dashboard server on port ", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down the Runlens dashboard")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			slog.Warn("Failed to stop the repo watcher", "error", err)
		}
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			slog.Warn("Failed to close the run cache", "error", err)
		}
	}
}

// openRunCache opens the on-disk response cache, or returns nil when
// it cannot be opened. The dashboard works uncached.
func openRunCache() *wandb.Cache {
	dir := os.Getenv("RUNLENS_CACHE_DIR")
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "runlens-cache")
	}
	ttl := 5 * time.Minute
	if raw := os.Getenv("RUNLENS_CACHE_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			slog.Warn("Invalid RUNLENS_CACHE_TTL, using default", "value", raw, "error", err)
		} else {
			ttl = parsed
		}
	}
	cache, err := wandb.OpenCache(dir, ttl)
	if err != nil {
		slog.Warn("Failed to open the run cache, continuing without",
			"dir", dir, "error", err)
		return nil
	}
	slog.Info("Run cache opened", "dir", dir, "ttl", ttl.String())
	return cache
}

// openRepo connects the local repository named by RUNLENS_REPO_PATH
// and, when a tracked project is configured, a ref watcher that drops
// that project's cache entries after each commit or checkout.
func openRepo(cache *wandb.Cache) (*gitdiff.Repo, *gitdiff.Watcher) {
	repoPath := os.Getenv("RUNLENS_REPO_PATH")
	if repoPath == "" {
		slog.Info("RUNLENS_REPO_PATH not set. Diff endpoints disabled.")
		return nil, nil
	}
	repo, err := gitdiff.NewRepo(repoPath)
	if err != nil {
		slog.Warn("RUNLENS_REPO_PATH is not a git repository. Diff endpoints disabled.",
			"path", repoPath, "error", err)
		return nil, nil
	}
	slog.Info("Local repository connected", "root", repo.Root())

	entity := os.Getenv("WANDB_ENTITY")
	project := os.Getenv("WANDB_PROJECT")
	if cache == nil || entity == "" || project == "" {
		slog.Info("Repo watcher disabled (needs the run cache plus WANDB_ENTITY and WANDB_PROJECT).")
		return repo, nil
	}

	watcher, err := gitdiff.NewWatcher(repo.Root(), 0, func() {
		slog.Info("Repository changed, invalidating cached runs",
			"entity", entity, "project", project)
		if err := cache.InvalidateProject(entity, project); err != nil {
			slog.Warn("Cache invalidation failed", "error", err)
		}
	})
	if err != nil {
		slog.Warn("Failed to create the repo watcher", "error", err)
		return repo, nil
	}
	return repo, watcher
}

// Manoe orchestrator server: HTTP API, WebSocket event streaming, and the
// multi-agent generation pipeline behind them.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IShalkin/manoe-sub005/pkg/agent"
	"github.com/IShalkin/manoe-sub005/pkg/api"
	"github.com/IShalkin/manoe-sub005/pkg/artifacts"
	"github.com/IShalkin/manoe-sub005/pkg/config"
	"github.com/IShalkin/manoe-sub005/pkg/database"
	"github.com/IShalkin/manoe-sub005/pkg/drafting"
	"github.com/IShalkin/manoe-sub005/pkg/events"
	"github.com/IShalkin/manoe-sub005/pkg/llm"
	"github.com/IShalkin/manoe-sub005/pkg/metrics"
	"github.com/IShalkin/manoe-sub005/pkg/models"
	"github.com/IShalkin/manoe-sub005/pkg/orchestrator"
	"github.com/IShalkin/manoe-sub005/pkg/prompt"
	"github.com/IShalkin/manoe-sub005/pkg/ratelimit"
	"github.com/IShalkin/manoe-sub005/pkg/vector"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("CONFIG_FILE", "./config.yaml"),
		"Path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}
	logger := slog.Default()

	ctx := context.Background()

	// Database: connect, migrate, pool.
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}
	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	m := metrics.New(prometheus.DefaultRegisterer)

	// Event log with a dedicated LISTEN connection for live tailing.
	eventLog := events.NewPostgresLog(dbClient.Pool(), dbClient.DSN(), logger)
	if err := eventLog.Start(ctx); err != nil {
		slog.Error("Failed to start event listener", "error", err)
		os.Exit(1)
	}
	defer eventLog.Stop(ctx)
	slog.Info("Event streaming initialized")

	store := artifacts.NewPostgresStore(dbClient.Pool())

	gate := ratelimit.NewGate(
		ratelimit.NewPostgresStore(dbClient.Pool()),
		ratelimit.Config{Window: cfg.RateLimit.Default.Window(), Max: cfg.RateLimit.Default.Max},
		ratelimit.Config{Window: cfg.RateLimit.Expensive.Window(), Max: cfg.RateLimit.Expensive.Max},
		api.ExpensivePaths,
	)

	prompts := prompt.NewStore(nil, cfg.Prompts.CacheTTL(), logger)

	// Per-run agent callers: fill provider defaults, then build the
	// provider adapter and runner for that run's settings.
	callers := func(lc models.LLMConfig) (agent.Caller, error) {
		if lc.Provider == "" {
			lc.Provider = cfg.LLM.Provider
		}
		if lc.Model == "" {
			lc.Model = cfg.LLM.Model
		}
		if lc.Temperature == 0 {
			lc.Temperature = cfg.LLM.Temperature
		}
		client, err := llm.New(lc)
		if err != nil {
			return nil, err
		}
		return agent.NewRunner(prompts, client, lc.Model, lc.Temperature, m, logger), nil
	}

	orchCfg := orchestrator.Config{
		Drafting: drafting.Params{
			BeatsThreshold: cfg.Generation.BeatsThreshold,
			WordsPerBeat:   cfg.Generation.WordsPerBeat,
			MaxRevisions:   cfg.Generation.MaxRevisions,
			MaxExpansions:  cfg.Generation.MaxExpansions,
		},
		ArchivistCadence:      cfg.Generation.ArchivistCadence,
		EvaluationConcurrency: cfg.Generation.EvaluationConcurrency,
		MaxTokens:             cfg.LLM.MaxTokens,
		EventRetention:        cfg.Generation.EventRetention(),
		CompletedRunTTL:       cfg.Generation.CompletedRunTTL(),
	}
	orch := orchestrator.New(eventLog, store, vector.NewMemoryStore(), vector.NewHashEmbedder(0), callers, orchCfg, m, logger)

	// Interrupted runs from a previous process come back paused.
	if restored, err := orch.RestoreInterrupted(ctx); err != nil {
		slog.Error("Failed to restore interrupted runs", "error", err)
	} else if restored > 0 {
		slog.Info("Interrupted runs await explicit resume", "count", restored)
	}

	streamer := events.NewStreamer(eventLog, logger)
	httpServer := api.NewServer(orch, streamer, gate, dbClient, m, cfg.Server.AllowedWSOrigins, logger)

	addr := cfg.Server.Host + ":" + getEnv("HTTP_PORT", strconv.Itoa(cfg.Server.Port))
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Stop ingress first, then let runs reach a safepoint and snapshot.
	httpCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.GracefulShutdown())
	defer cancel()
	orch.Shutdown(shutdownCtx)

	slog.Info("Shutdown complete")
}

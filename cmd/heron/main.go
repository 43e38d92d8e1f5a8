// Heron - Sustainability decision and reward engine.
// Copyright (c) 2025 open-sustainability
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/open-sustainability/heron/internal/api"
	"github.com/open-sustainability/heron/internal/bus"
	"github.com/open-sustainability/heron/internal/cache"
	"github.com/open-sustainability/heron/internal/config"
	"github.com/open-sustainability/heron/internal/domain"
	"github.com/open-sustainability/heron/internal/ledger"
	"github.com/open-sustainability/heron/internal/metrics"
	"github.com/open-sustainability/heron/internal/repository"
	"github.com/open-sustainability/heron/internal/rules"
	"github.com/open-sustainability/heron/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", os.Getenv("HERON_CONFIG"), "path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Logging)

	slog.Info("starting heron",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"rule_set_dir", cfg.RuleSetDir,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Rule Engine
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	if err := loadRuleSets(ctx, cfg, repo, engine); err != nil {
		slog.Error("failed to load rule sets", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rule_set_count", engine.Count())

	// Initialize Badge Ledger: durable store wrapped in bounded retries.
	badgeLedger := ledger.NewWithRetry(ledger.NewStore(repo), cfg.Ledger)
	slog.Info("badge ledger initialized",
		"max_attempts", cfg.Ledger.MaxAttempts,
		"backoff_ms", cfg.Ledger.BackoffMs,
	)

	// Initialize Metrics
	m := metrics.New()
	m.SetRuleSetsLoaded(engine.Count())

	// Initialize async audit worker
	auditWorker := worker.NewAuditWorker(busImpl, repo)
	if err := auditWorker.Start(); err != nil {
		slog.Error("failed to start audit worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, badgeLedger, m, Version, cfg.Cache.ScoreTTL)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("heron is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop audit worker first so in-flight events are not dropped mid-write.
	if err := auditWorker.Stop(); err != nil {
		slog.Error("failed to stop audit worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("heron shutdown complete")
}

// setupLogging configures the default slog logger. When a log file is
// configured, output goes to both stdout and a size-rotated file.
func setupLogging(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		maxBackups := cfg.MaxBackups
		if maxBackups == 0 {
			maxBackups = 5
		}
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadRuleSets loads rule set files from the configured directory, persists
// any new versions, then loads everything stored into the engine. Stored
// versions win over files: a version is never overwritten.
func loadRuleSets(ctx context.Context, cfg *domain.Config, repo domain.Repository, engine *rules.Engine) error {
	if cfg.RuleSetDir != "" {
		if _, err := os.Stat(cfg.RuleSetDir); err == nil {
			fileSets, err := rules.LoadDir(cfg.RuleSetDir)
			if err != nil {
				return err
			}
			for _, rs := range fileSets {
				if err := repo.SaveRuleSet(ctx, rs); err != nil {
					if errors.Is(err, domain.ErrRuleSetExists) {
						slog.Debug("rule set version already stored", "version", rs.Version)
						continue
					}
					return err
				}
				slog.Info("rule set stored from file", "version", rs.Version, "name", rs.Name)
			}
		} else {
			slog.Warn("rule set directory not found", "dir", cfg.RuleSetDir)
		}
	}

	stored, err := repo.ListRuleSets(ctx)
	if err != nil {
		return err
	}
	if len(stored) == 0 {
		slog.Info("no rule sets stored - configure via POST /rulesets API")
		return nil
	}
	return engine.Reload(stored)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                    HERON")
	fmt.Println("     Sustainability Decision & Reward Engine")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score               - Score a profile")
	fmt.Println("    POST /classify-action     - Recommend an action for a condition")
	fmt.Println("    POST /reward              - Compute points and badges")
	fmt.Println("    GET  /badges/{identity}   - List earned badges")
	fmt.Println("    GET  /rulesets            - List loaded rule sets")
	fmt.Println("    POST /rulesets            - Create a new rule set version")
	fmt.Println("    POST /rulesets/reload     - Hot-reload rule sets from storage")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println("    GET  /metrics             - Prometheus metrics")
	fmt.Println()
}

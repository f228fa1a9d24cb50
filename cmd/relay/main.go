package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/emberworks/enginelink/internal/api"
	"github.com/emberworks/enginelink/internal/auth"
	"github.com/emberworks/enginelink/internal/config"
	"github.com/emberworks/enginelink/internal/database"
	"github.com/emberworks/enginelink/internal/dispatch"
	"github.com/emberworks/enginelink/internal/event"
	"github.com/emberworks/enginelink/internal/journal"
	"github.com/emberworks/enginelink/internal/link"
	"github.com/emberworks/enginelink/internal/metrics"
	"github.com/emberworks/enginelink/internal/probe"
	"github.com/emberworks/enginelink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"rest_url", cfg.Engine.RestURL,
		"server_id", cfg.Engine.ServerID,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	creds, err := auth.NewCredentials(cfg.Engine.APIKeyID, cfg.Engine.APIKeySecret, cfg.Engine.ServerID)
	if err != nil {
		logger.Error("invalid engine credentials", "error", err)
		os.Exit(1)
	}

	apiClient := api.NewClient(
		cfg.Engine.RestURL,
		creds,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Engine.Timeout),
		api.WithRetries(cfg.Engine.MaxRetries, time.Second),
	)

	// Preflight: the engine must be reachable and the server registered
	// before the socket is worth dialing.
	logger.Info("checking engine status")
	status, err := apiClient.GetStatus(ctx)
	if err != nil {
		logger.Error("engine status check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("engine status",
		"active", status.Active,
		"engine_version", status.Version,
	)
	if !status.Active {
		logger.Warn("engine reports inactive, continuing startup")
	}

	server, err := apiClient.GetServerInfo(ctx, cfg.Engine.ServerID)
	if err != nil {
		logger.Error("server lookup failed",
			"server_id", cfg.Engine.ServerID,
			"error", err,
		)
		os.Exit(1)
	}
	logger.Info("server registered",
		"name", server.Name,
		"region", server.Region,
		"capacity", server.Capacity,
		"online", server.Online,
	)

	// Connect the journal database when enabled
	var pool *pgxpool.Pool
	queueSize := 0
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			logger.Error("failed to connect to journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		logger.Info("journal database connected")
		queueSize = cfg.Journal.QueueSize
	}

	// Engine link
	connectURL, err := creds.ConnectURL(cfg.Engine.SocketURL)
	if err != nil {
		logger.Error("invalid socket url", "error", err)
		os.Exit(1)
	}

	lnk := link.New(link.Config{
		URL:               connectURL,
		DialTimeout:       cfg.Link.DialTimeout,
		HandshakeTimeout:  cfg.Link.HandshakeTimeout,
		HeartbeatInterval: cfg.Link.HeartbeatInterval,
		WriteTimeout:      cfg.Link.WriteTimeout,
		RetryBaseDelay:    cfg.Link.RetryBaseDelay,
		RetryMaxAttempts:  cfg.Link.RetryMaxAttempts,
		EventBuffer:       cfg.Link.EventBuffer,
	}, event.Standard(), logger)

	dispatcher := dispatch.New(dispatch.Config{QueueSize: queueSize}, lnk.Events(), logger)
	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	var writer *journal.Writer
	if cfg.Journal.Enabled {
		writer = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, dispatcher.Queue(), pool, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start journal writer", "error", err)
			os.Exit(1)
		}
	}

	engineProbe := probe.New(probe.Config{Interval: cfg.Probe.Interval}, apiClient, cfg.Engine.ServerID, nil, logger)
	if err := engineProbe.Start(ctx); err != nil {
		logger.Error("failed to start engine probe", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	sources := metrics.Sources{
		Link:     lnk.Stats,
		Dispatch: dispatcher.Stats,
		Probe:    engineProbe.Snapshot,
	}
	if writer != nil {
		sources.Journal = writer.Stats
	}
	metricsServer := metrics.NewServer(cfg.Metrics, metrics.NewRegistry(sources), logger)
	if err := metricsServer.Start(); err != nil {
		logger.Error("failed to start metrics server", "error", err)
		os.Exit(1)
	}

	// Health endpoint
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(lnk, dispatcher, writer, engineProbe, pool, cfg.Instance.ID),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Start the link last; Start blocks until the first session is up or
	// the retry budget is gone.
	logger.Info("connecting engine link", "url", auth.Redacted(connectURL))
	if err := lnk.Start(ctx); err != nil {
		logger.Error("engine link failed to start", "error", err)
		os.Exit(1)
	}

	logger.Info("relay running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
		"metrics_url", fmt.Sprintf("http://localhost:%d%s", cfg.Metrics.Port, cfg.Metrics.Path),
	)

	// Wait for shutdown or an unrecoverable link
	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case err := <-lnk.Fatal():
		logger.Error("engine link unrecoverable, shutting down", "error", err)
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	healthServer.Shutdown(shutdownCtx)
	metricsServer.Stop(shutdownCtx)
	engineProbe.Stop(shutdownCtx)
	lnk.Close()
	dispatcher.Stop(shutdownCtx)
	if writer != nil {
		writer.Stop(shutdownCtx)
	}

	logger.Info("relay stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(lnk *link.Link, disp dispatch.Dispatcher, writer *journal.Writer, engineProbe *probe.Probe, pool *pgxpool.Pool, instanceID string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Instance   string         `json:"instance"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Instance:   instanceID,
			Version:    version.Version,
			Components: make(map[string]any),
		}

		degrade := func() {
			if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}

		linkStats := lnk.Stats()
		health.Components["link"] = map[string]any{
			"state":      linkStats.State,
			"attempt":    linkStats.Attempt,
			"reconnects": linkStats.Reconnects,
			"dispatched": linkStats.Dispatched,
		}
		if linkStats.State != "open" {
			degrade()
		}

		snap := engineProbe.Snapshot()
		health.Components["engine"] = map[string]any{
			"reachable":            snap.Reachable,
			"active":               snap.EngineActive,
			"version":              snap.EngineVersion,
			"consecutive_failures": snap.ConsecutiveFailures,
		}
		if !snap.Reachable {
			degrade()
		}

		dispStats := disp.Stats()
		health.Components["dispatch"] = map[string]any{
			"received":    dispStats.Received,
			"handled":     dispStats.Handled,
			"queue_depth": dispStats.Queue.Depth,
		}

		if writer != nil {
			if err := pool.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["journal"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				journalStats := writer.Stats()
				health.Components["journal"] = map[string]any{
					"status":    "connected",
					"inserts":   journalStats.Inserts,
					"conflicts": journalStats.Conflicts,
					"errors":    journalStats.Errors,
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{
			"link":     lnk.Stats(),
			"dispatch": disp.Stats(),
			"engine":   engineProbe.Snapshot(),
		}
		if writer != nil {
			out["journal"] = writer.Stats()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	return mux
}

// linktap connects to the engine socket and streams decoded events to console.
// Usage: go run ./cmd/linktap --config configs/relay.yaml
//
// Required environment variables (when not set in the config file):
//
//	ENGINE_API_KEY_ID     - API key ID issued for this relay
//	ENGINE_API_KEY_SECRET - API key secret
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberworks/enginelink/internal/auth"
	"github.com/emberworks/enginelink/internal/config"
	"github.com/emberworks/enginelink/internal/dispatch"
	"github.com/emberworks/enginelink/internal/event"
	"github.com/emberworks/enginelink/internal/link"
)

func main() {
	configPath := flag.String("config", "configs/relay.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	duration := flag.Duration("duration", 0, "stop after this long (0 = run until interrupted)")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if *duration > 0 {
		var timeCancel context.CancelFunc
		ctx, timeCancel = context.WithTimeout(ctx, *duration)
		defer timeCancel()
	}

	// Check we have credentials for the socket
	creds, err := auth.NewCredentials(cfg.Engine.APIKeyID, cfg.Engine.APIKeySecret, cfg.Engine.ServerID)
	if err != nil {
		logger.Error("engine credentials required for socket",
			"key_id_set", cfg.Engine.APIKeyID != "",
			"secret_set", cfg.Engine.APIKeySecret != "",
			"server_id_set", cfg.Engine.ServerID != "",
		)
		logger.Info("Set environment variables: ENGINE_API_KEY_ID and ENGINE_API_KEY_SECRET")
		os.Exit(1)
	}
	logger.Info("using engine credentials", "key_id", cfg.Engine.APIKeyID)

	connectURL, err := creds.ConnectURL(cfg.Engine.SocketURL)
	if err != nil {
		logger.Error("invalid socket url", "error", err)
		os.Exit(1)
	}

	// Create the link
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

	// Create the dispatcher with a queue sized for console draining
	dispatcher := dispatch.New(dispatch.Config{QueueSize: 1000}, lnk.Events(), logger)

	logger.Info("starting dispatcher")
	if err := dispatcher.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}

	// Start console printer
	go printEvents(ctx, dispatcher.Queue(), *verbose)

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				linkStats := lnk.Stats()
				dispStats := dispatcher.Stats()
				logger.Info("stats",
					"link_state", linkStats.State,
					"frames_received", linkStats.Received,
					"dispatched", linkStats.Dispatched,
					"decode_errors", linkStats.DecodeErrors,
					"stale_dropped", linkStats.StaleDropped,
					"unmapped_dropped", linkStats.UnmappedDropped,
					"overflow_dropped", linkStats.OverflowDropped,
					"reconnects", linkStats.Reconnects,
					"queue_depth", dispStats.Queue.Depth,
				)
			}
		}
	}()

	// Connect; Start blocks until the first session is up
	logger.Info("connecting engine link", "url", auth.Redacted(connectURL))
	if err := lnk.Start(ctx); err != nil {
		logger.Error("failed to start engine link", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	select {
	case <-ctx.Done():
	case err := <-lnk.Fatal():
		logger.Error("engine link unrecoverable", "error", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	lnk.Close()
	dispatcher.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

func printEvents(ctx context.Context, queue *dispatch.Queue[link.Event], verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			ev, ok := queue.TryDequeue()
			if !ok {
				time.Sleep(10 * time.Millisecond)
				continue
			}

			if verbose {
				data, _ := json.MarshalIndent(ev, "", "  ")
				fmt.Printf("[EVENT] %s\n", data)
			} else {
				lag := ""
				if !ev.EventTime.IsZero() {
					lag = ev.ReceivedAt.Sub(ev.EventTime).Round(time.Millisecond).String()
				}
				fmt.Printf("[EVENT] name=%s wire=%s id=%s fields=%d lag=%s\n",
					ev.Name, ev.Wire, ev.Headers[event.MessageIDHeader], len(ev.Data), lag)
			}
		}
	}
}

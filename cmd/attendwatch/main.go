package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/libtrack/attendstream/internal/config"
	"github.com/libtrack/attendstream/internal/version"
	"github.com/libtrack/attendstream/pkg/attendclient"
)

func main() {
	configPath := flag.String("config", "configs/attendwatch.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting attendwatch",
		"version", version.Version,
		"commit", version.Commit,
		"server", cfg.Server.Address(),
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

	client := attendclient.New(attendclient.Config{
		Address:          cfg.Server.Address(),
		Path:             cfg.Server.Path,
		WindowCapacity:   cfg.Window.Capacity,
		InitialBackoff:   cfg.Connection.InitialBackoff,
		MaxBackoff:       cfg.Connection.MaxBackoff,
		MaxRetries:       cfg.Connection.MaxRetries,
		HandshakeTimeout: cfg.Connection.HandshakeTimeout,
		WriteTimeout:     cfg.Connection.WriteTimeout,
		PingInterval:     cfg.Connection.PingInterval,
		PingTimeout:      cfg.Connection.PingTimeout,
		BufferSize:       cfg.Connection.BufferSize,
	}, attendclient.WithLogger(logger))

	notifications, unsubscribe := client.Subscribe()
	defer unsubscribe()

	if err := client.Start(ctx); err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}

		g.Go(func() error {
			logger.Info("metrics listening", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Log connectivity and window activity as it happens
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case n, ok := <-notifications:
				if !ok {
					return nil
				}
				switch n.Kind {
				case attendclient.StateChanged:
					logger.Info("connection state",
						"phase", n.State.Phase,
						"attempt", n.State.Attempt,
						"fatal", n.State.Fatal,
					)
				case attendclient.WindowChanged:
					win := client.Window()
					if len(win) > 0 {
						newest := win[0]
						logger.Info("window updated",
							"size", len(win),
							"newest_id", newest.ID,
							"newest_name", newest.FullName,
						)
					}
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("shutting down with error", "error", err)
	}

	if err := client.Close(); err != nil {
		logger.Warn("client close", "error", err)
	}

	logger.Info("attendwatch stopped")
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

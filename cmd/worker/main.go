// Worker process for the session fleet: claims users from the registry,
// holds their live platform sessions through the bridge, and auto-replies
// on trigger matches.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/replyfleet/replyfleet/pkg/config"
	"github.com/replyfleet/replyfleet/pkg/platform"
	"github.com/replyfleet/replyfleet/pkg/platform/bridge"
	"github.com/replyfleet/replyfleet/pkg/registryclient"
	"github.com/replyfleet/replyfleet/pkg/version"
	"github.com/replyfleet/replyfleet/pkg/worker"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		slog.Error("Failed to load worker config", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting worker",
		"version", version.Full(),
		"worker_id", cfg.WorkerID,
		"backend_url", cfg.BackendURL,
		"bridge_url", cfg.BridgeURL,
		"max_active", cfg.Fleet.MaxActive)

	registry := registryclient.New(cfg.BackendURL, cfg.WorkerID, 10*time.Second)
	dialer := bridge.NewDialer(cfg.BridgeURL, platform.Credentials{
		APIID:   cfg.APIID,
		APIHash: cfg.APIHash,
	})
	supervisor := worker.NewSupervisor(cfg.WorkerID, registry, dialer, cfg.Fleet)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		supervisor.Run(ctx)
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case <-done:
		slog.Error("Supervisor exited unexpectedly")
	}

	cancel()
	supervisor.Stop()
	slog.Info("Shutdown complete")
}

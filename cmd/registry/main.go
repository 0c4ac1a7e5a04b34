// Registry server for the session fleet: claim and lease API, trigger and
// payment CRUD, and the background lease watchdog.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/replyfleet/replyfleet/pkg/api"
	"github.com/replyfleet/replyfleet/pkg/cleanup"
	"github.com/replyfleet/replyfleet/pkg/config"
	"github.com/replyfleet/replyfleet/pkg/database"
	"github.com/replyfleet/replyfleet/pkg/services"
	"github.com/replyfleet/replyfleet/pkg/version"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to environment file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load env file, continuing with existing environment",
			"path", *envFile, "error", err)
	}

	cfg, err := config.LoadRegistryConfig()
	if err != nil {
		slog.Error("Failed to load registry config", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting registry",
		"version", version.Full(),
		"http_port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

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

	pool := dbClient.Pool()
	userService := services.NewUserService(pool, cfg.StaleLease)
	triggerService := services.NewTriggerService(pool)
	paymentService := services.NewPaymentService(pool)
	adminService := services.NewAdminService(pool)

	sweeps := cleanup.NewService(userService, cleanup.Config{
		WatchdogInterval:  cfg.WatchdogInterval,
		WatchdogTimeout:   cfg.WatchdogTimeout,
		PlanCheckInterval: cfg.PlanCheckInterval,
	})
	sweeps.Start(ctx)
	defer sweeps.Stop()

	httpServer := api.NewServer(dbClient, userService, triggerService, paymentService, adminService)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server exited with error", "error", err)
	}
	slog.Info("Shutdown complete")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"welfare-server-go/auth"
	"welfare-server-go/db"
	"welfare-server-go/handlers"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	store, households, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	// Initialize Redis Client
	redisClient, err := db.InitializeRedisClient(cmd.Context(), cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	sessions := db.NewRedisService(redisClient, logger)
	authService := auth.NewService(store, sessions, cfg.Session.TTL, logger)

	created, err := authService.EnsureAdmin(cmd.Context(), cfg.Admin.Username, cfg.Admin.Password)
	if err != nil {
		return err
	}
	if created {
		logger.Warn("created default admin account, change its password", zap.String("username", cfg.Admin.Username))
	}

	if cfg.SeedDemo {
		n, err := households.SeedDemo(cmd.Context())
		if err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		if n > 0 {
			logger.Info("seeded demo households", zap.Int("count", n))
		}
	}

	router := handlers.NewRouter(handlers.NewAPIHandler(households, authService, sessions, logger))

	server := &http.Server{
		Addr:         cfg.HTTPServer.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.ReadTimeout,
		WriteTimeout: cfg.HTTPServer.WriteTimeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("address", cfg.HTTPServer.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(done)

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case sig := <-done:
		logger.Info("shutdown signal received, stopping server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

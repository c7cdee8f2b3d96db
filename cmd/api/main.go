package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/mtn-vote-reconciler/api/routes"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/app"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/config"
	"github.com/ArowuTest/mtn-vote-reconciler/internal/handlers"
	"github.com/gin-gonic/gin"
	"golang.org/x/exp/slog"
)

func main() {
	// Load configuration
	cfg, err := config.Load(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("%v", err)
	}
	config.SetupLogging(cfg.LogLevel)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// Initialize Handlers
	handlerDeps := routes.HandlerDependencies{
		AuthHandler:           handlers.NewAuthHandler(a.Auth),
		TransactionHandler:    handlers.NewTransactionHandler(a.Transactions),
		WebhookHandler:        handlers.NewWebhookHandler(a.Transactions),
		ReconciliationHandler: handlers.NewReconciliationHandler(a.Poller, a.Recovery),
	}
	router := routes.SetupRouter(cfg, handlerDeps)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Server starting", "port", cfg.Server.Port, "storage", cfg.Storage.Driver, "mockProvider", cfg.MTN.MockAPI)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}

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

	"github.com/smurching/cloudnotes/internal/app"
	"github.com/smurching/cloudnotes/internal/config"
	"github.com/smurching/cloudnotes/internal/database"
	"github.com/smurching/cloudnotes/internal/handler"
	"github.com/smurching/cloudnotes/internal/middleware"
	"github.com/smurching/cloudnotes/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.TrackerBackend == config.BackendPostgres {
		if err := database.RunMigrations(cfg.MigrationsPath, cfg.DatabaseUrl); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("✓ Migrations applied")
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	files := a.Files(a.Sweeper())
	tokens := middleware.NewTokenService(cfg.JWTSecretKey, 24*time.Hour)

	g := server.NewServer(
		handler.NewFileHandler(files, cfg.MaxUploadBytes),
		handler.NewAdminHandler(files),
		middleware.NewAuthMiddleware(tokens),
		server.Options{
			CORSOrigins:  cfg.CORSOrigins,
			Metrics:      a.Metrics,
			HealthChecks: a.HealthChecks,
		},
	)

	srv := &http.Server{Addr: cfg.Port, Handler: g}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("🚀 API starting on %s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("👋 API shut down gracefully")
}

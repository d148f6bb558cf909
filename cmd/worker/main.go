package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/smurching/cloudnotes/internal/app"
	"github.com/smurching/cloudnotes/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: a.Metrics.Handler()}
	go func() {
		log.Printf("📈 Metrics listening on %s", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("⚠️  Metrics server stopped: %v", err)
		}
	}()
	defer metricsSrv.Close()

	go a.Sweeper().Run(ctx, cfg.SweepInterval)

	log.Println("🚀 Starting OCR worker...")
	if err := a.Pool().Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Worker stopped with error: %v", err)
	}

	log.Println("👋 Worker shut down gracefully")
}

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

	"github.com/pmontanari/taskchat/internal/config"
	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/engine"
	"github.com/pmontanari/taskchat/internal/httpapi"
	"github.com/pmontanari/taskchat/internal/intent"
	"github.com/pmontanari/taskchat/internal/observability"
	"github.com/pmontanari/taskchat/internal/taskstore"
	"github.com/pmontanari/taskchat/internal/tools"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := convo.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("conversation store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL == "" {
		log.Printf("conversation store: in-memory (DATABASE_URL not set)")
	} else {
		log.Printf("conversation store: postgres")
	}

	taskClient := taskstore.NewClient(cfg.TaskAPIURL, cfg.TaskAPIToken, cfg.TaskAPITimeout)
	if cfg.TaskAPIURL == "" {
		log.Printf("task backend: in-memory (TASK_API_URL not set)")
	} else {
		log.Printf("task backend: %s", cfg.TaskAPIURL)
	}

	classifier, err := intent.NewClassifier(intent.Config{
		Mode:    cfg.ClassifierMode,
		URL:     cfg.ClassifierURL,
		Timeout: cfg.ClassifierTimeout,
	})
	if err != nil {
		log.Fatalf("classifier init failed: %v", err)
	}
	if classifier == nil {
		log.Printf("classifier: disabled, keyword matching only")
	} else {
		log.Printf("classifier: %s", cfg.ClassifierMode)
	}

	resolver := intent.NewResolver(classifier, cfg.ClassifierTimeout, metrics)
	dispatcher := tools.NewDispatcher(taskClient, cfg.TaskAPITimeout, metrics)
	eng := engine.New(store, resolver, dispatcher, metrics, engine.Config{
		ContextWindow: cfg.ContextWindow,
		LockIdleTTL:   cfg.LockIdleTTL,
	})

	api := httpapi.New(cfg, eng, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	eng.StartJanitor(runCtx, time.Minute)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}

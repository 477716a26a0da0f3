package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"plotsweep/internal/config"
	"plotsweep/internal/gamedata"
	"plotsweep/internal/queue"
	"plotsweep/internal/reconcile"
	"plotsweep/internal/repository"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.SentryEnv,
		}); err != nil {
			log.Printf("Sentry init failed: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	log.Println("Initializing plotsweep worker process...")

	repo, err := repository.NewRepository(cfg.DBURI)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer repo.Close()

	if os.Getenv("SKIP_MIGRATION") == "true" {
		log.Println("Database migration SKIPPED (SKIP_MIGRATION=true)")
	} else {
		log.Println("Running database migration...")
		if err := repo.Migrate("schema.sql"); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Database migration complete.")
	}

	if cfg.GameDataDir != "" {
		if err := gamedata.UpsertAll(context.Background(), repo, cfg.GameDataDir); err != nil {
			log.Printf("Warning: gamedata load failed: %v", err)
		}
	}

	q, err := queue.New(cfg.RedisURI)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	worker := reconcile.NewWorker(repo, q)
	if cfg.WorkerErrorBackoff > 0 {
		worker.ErrorBackoff = cfg.WorkerErrorBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	<-sigChan
	log.Println("Shutting down...")
	cancel()
	wg.Wait()
}

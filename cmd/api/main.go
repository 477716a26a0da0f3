package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"plotsweep/internal/api"
	"plotsweep/internal/auth"
	"plotsweep/internal/broadcast"
	"plotsweep/internal/config"
	"plotsweep/internal/gamedata"
	"plotsweep/internal/queue"
	"plotsweep/internal/repository"
)

// BuildCommit is set at build time via -ldflags.
var BuildCommit = "dev"

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

	log.Println("Initializing plotsweep API process...")

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

	sessions := auth.NewSessions(cfg.JWTSecretPaissahouse)
	hub := broadcast.NewHub()

	ctx, cancel := context.WithCancel(context.Background())

	go hub.Run(ctx)
	go hub.Subscribe(ctx, q)

	api.BuildCommit = BuildCommit
	apiServer := api.NewServer(repo, q, sessions, hub, cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("API listening on :%s", cfg.Port)
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server failed: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	apiServer.Shutdown(shutdownCtx)
	cancel()
}

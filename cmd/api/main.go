package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"nexus/api/internal/app"
	"nexus/api/internal/archive"
	"nexus/api/internal/chatlock"
	"nexus/api/internal/config"
	"nexus/api/internal/llm"
	"nexus/api/internal/notelog"
	"nexus/api/internal/search"
	"nexus/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	dialect, err := store.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		log.Fatalf("invalid database driver: %v", err)
	}
	db, err := store.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, dialect); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	dataStore := store.NewSQLStore(db, dialect)

	deps := app.Deps{}
	if strings.TrimSpace(cfg.LLMBaseURL) != "" {
		deps.Completer = llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	} else {
		log.Printf("WARNING: LLM_BASE_URL is empty, chat replies are disabled")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for chat turn locks")
		redisLock, err := chatlock.NewRedisLock(cfg.RedisURL, cfg.TurnLockTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisLock.Close()
		deps.Locker = redisLock
	} else {
		log.Printf("Using in-process chat turn locks")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	deps.Search = search.NewService(meiliClient, search.NewStoreFallback(dataStore))
	defer deps.Search.Close()

	if strings.TrimSpace(cfg.NotesReposDir) != "" {
		if err := os.MkdirAll(cfg.NotesReposDir, 0o755); err != nil {
			log.Fatalf("failed to create notes repos dir: %v", err)
		}
		deps.NoteLog = notelog.New(cfg.NotesReposDir)
	}

	if strings.TrimSpace(cfg.MinIOEndpoint) != "" {
		archiveStore, err := archive.NewMinIO(ctx, archive.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			log.Printf("WARNING: extraction archive disabled: %v", err)
		} else {
			deps.Archiver = archiveStore
		}
	}

	service := app.New(cfg, dataStore, deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A chat turn waits on two completion calls.
		WriteTimeout: 2*cfg.LLMTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Nexus API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

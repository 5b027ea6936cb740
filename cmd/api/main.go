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

	"github.com/joho/godotenv"

	"promptforge/api/internal/app"
	"promptforge/api/internal/config"
	"promptforge/api/internal/export"
	"promptforge/api/internal/search"
	"promptforge/api/internal/store"
	"promptforge/api/internal/views"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewStoreFallback(dataStore))

	var tracker *views.Tracker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		tracker, err = views.NewTracker(cfg.RedisURL, cfg.ViewWindow)
		if err != nil {
			log.Printf("WARNING: redis unavailable, views will not be de-duplicated: %v", err)
			tracker = nil
		} else {
			defer tracker.Close()
		}
	}

	var exporter *export.Service
	if strings.TrimSpace(cfg.ExportURL) != "" {
		exporter, err = export.New(ctx, cfg.ExportURL, cfg.ExportKey, cfg.ExportSecret, cfg.ExportBucket, cfg.ExportUseSSL)
		if err != nil {
			log.Printf("WARNING: export storage unavailable: %v", err)
			exporter = nil
		}
	}

	service := app.New(cfg, dataStore, searchService, tracker, exporter)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("PromptForge API listening on %s", cfg.Addr)
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

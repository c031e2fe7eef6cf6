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

	"github.com/redis/go-redis/v9"

	"deckvault/api/internal/app"
	"deckvault/api/internal/authpw"
	"deckvault/api/internal/cards"
	"deckvault/api/internal/config"
	"deckvault/api/internal/gitdeck"
	"deckvault/api/internal/images"
	"deckvault/api/internal/search"
	"deckvault/api/internal/session"
	"deckvault/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	gitService := gitdeck.New(cfg.ReposDir)
	passwords := authpw.NewService(dataStore)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	// Redis backs both refresh sessions and the card cache.
	sessionStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessionStore.Close()

	var cardCache *cards.Cache
	if strings.TrimSpace(cfg.CardDBURL) != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		cardClient := redis.NewClient(opts)
		defer cardClient.Close()
		cardCache = cards.NewCache(cardClient, cards.NewHTTPSource(cfg.CardDBURL), "cards", cfg.CardCacheTTL, int64(cfg.CardCacheSize), time.Now)
	} else {
		log.Printf("CARDDB_URL not set, card lookups disabled")
	}

	var imageService *images.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		imageService, err = images.New(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
	} else {
		log.Printf("MINIO_ENDPOINT not set, image cache disabled")
	}

	service := app.New(cfg, dataStore, gitService, sessionStore, passwords, searchService, cardCache, imageService)

	if decks, err := dataStore.ListAllDecks(ctx); err != nil {
		log.Printf("WARNING: search reindex skipped: %v", err)
	} else {
		service.ReindexDecks(ctx, decks)
	}

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
		log.Printf("Deckvault API listening on %s", cfg.Addr)
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

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foodbase/etl/config"
	httpDelivery "github.com/foodbase/etl/internal/delivery/http"
	"github.com/foodbase/etl/internal/infrastructure/cache"
	"github.com/foodbase/etl/internal/infrastructure/embedding"
	"github.com/foodbase/etl/internal/infrastructure/vectorstore"
	"github.com/foodbase/etl/internal/usecase"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireEmbedding(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	debug := cfg.Server.Environment == "development"

	log.Printf("Starting food search API v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)

	// Initialize infrastructure dependencies
	memoryCache := cache.NewMemoryCache(10 * time.Minute)
	defer memoryCache.Close()
	log.Printf("Cache TTL: %s", cfg.Cache.TTL)

	embedder := embedding.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model,
		cfg.Embedding.Dimensions, cfg.RateLimit.Embedding)
	if debug {
		embedder.SetDebug(true)
		log.Printf("Embedding client debug mode enabled")
	}
	log.Printf("Embedding API configured: %s (model: %s, dims: %d)",
		cfg.Embedding.BaseURL, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	store, err := vectorstore.Open(cfg.VectorStore.Type, cfg.VectorStore.QdrantAddr,
		cfg.VectorStore.PostgresDSN, cfg.VectorStore.Collection)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer store.Close()
	log.Printf("Vector store: %s (collection: %s)", cfg.VectorStore.Type, cfg.VectorStore.Collection)

	// Initialize usecase layer
	searchService := usecase.NewSearchService(
		memoryCache,
		embedder,
		store,
		usecase.SearchServiceConfig{
			CacheTTL:           cfg.Cache.TTL,
			EnableDebugLogging: debug,
		},
	)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(searchService)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "foodetl-search"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shut down: %v", err)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}

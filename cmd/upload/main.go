package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/foodbase/etl/config"
	"github.com/foodbase/etl/internal/infrastructure/csvtable"
	"github.com/foodbase/etl/internal/infrastructure/embedding"
	"github.com/foodbase/etl/internal/infrastructure/vectorstore"
	"github.com/foodbase/etl/internal/usecase"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("upload", pflag.ExitOnError)
	flags.String("pipeline.output_path", "usda_branded_food_data.csv", "food table CSV to upload")
	flags.Int("embedding.batch_size", 90, "documents per embedding request")
	flags.Int("embedding.max_retries", 5, "attempts per batch against the embedding API")
	flags.Int("vectorstore.max_retries", 15, "attempts per batch against the vector store")
	flags.String("vectorstore.type", "qdrant", "vector store: qdrant or pgvector")
	flags.String("vectorstore.collection", "branded-food-data", "collection or table name")
	flags.Bool("pipeline.debug", false, "verbose logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.RequireEmbedding(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	embedder := embedding.NewClient(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model,
		cfg.Embedding.Dimensions, cfg.RateLimit.Embedding)
	embedder.SetDebug(cfg.Pipeline.Debug)

	store, err := vectorstore.Open(cfg.VectorStore.Type, cfg.VectorStore.QdrantAddr,
		cfg.VectorStore.PostgresDSN, cfg.VectorStore.Collection)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer store.Close()

	service := usecase.NewUploadService(csvtable.NewReader(), embedder, store, usecase.UploadConfig{
		BatchSize:          cfg.Embedding.BatchSize,
		Dimensions:         cfg.Embedding.Dimensions,
		EmbedRetries:       cfg.Embedding.MaxRetries,
		UpsertRetries:      cfg.VectorStore.MaxRetries,
		EnableDebugLogging: cfg.Pipeline.Debug,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Uploading %s to %s collection %s", cfg.Pipeline.OutputPath, cfg.VectorStore.Type, cfg.VectorStore.Collection)
	report, err := service.Upload(ctx, cfg.Pipeline.OutputPath)
	if err != nil {
		log.Fatalf("Upload failed: %v", err)
	}
	if report.SkippedBatches > 0 {
		log.Printf("WARNING: %d of %d batches were skipped", report.SkippedBatches, report.Batches)
	}
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}

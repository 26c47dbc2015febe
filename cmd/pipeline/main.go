package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/foodbase/etl/config"
	"github.com/foodbase/etl/internal/domain"
	"github.com/foodbase/etl/internal/infrastructure/csvtable"
	"github.com/foodbase/etl/internal/infrastructure/sqlite"
	"github.com/foodbase/etl/internal/infrastructure/usda"
	"github.com/foodbase/etl/internal/usecase"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("pipeline", pflag.ExitOnError)
	flags.String("pipeline.source_dir", ".", "directory holding branded_food.csv, food.csv, nutrient.csv and food_nutrient.csv")
	flags.String("pipeline.output_path", "usda_branded_food_data.csv", "path of the denormalized CSV")
	flags.String("pipeline.sqlite_path", "", "also export the table to this SQLite file")
	flags.Int("pipeline.chunk_size", 100000, "rows processed per chunk")
	flags.Bool("pipeline.keep_unmapped_nutrients", false, "keep nutrients missing from nutrient.csv as numeric-id columns")
	flags.Bool("pipeline.include_brand_fields", false, "add FOOD_BRAND_OWNER and FOOD_CATEGORY columns")
	flags.Bool("pipeline.require_ingredients", true, "drop rows without an ingredient list")
	flags.Bool("pipeline.download", false, "download the FoodData Central archive into the source dir first")
	flags.Bool("pipeline.cleanup_sources", false, "remove the source tables after a successful run")
	flags.String("pipeline.schedule", "", "cron spec; runs once when empty")
	flags.Bool("pipeline.debug", false, "verbose logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	p := cfg.Pipeline
	service := usecase.NewPipelineService(csvtable.NewLoader(p.Debug), csvtable.NewWriter(), usecase.PipelineConfig{
		ChunkSize:             p.ChunkSize,
		KeepUnmappedNutrients: p.KeepUnmappedNutrients,
		IncludeBrandFields:    p.IncludeBrandFields,
		RequireIngredients:    p.RequireIngredients,
		EnableDebugLogging:    p.Debug,
	}).WithExporter(sqlite.NewExporter())

	input := usecase.PipelineInput{
		Sources:        domain.SourceFilesIn(p.SourceDir),
		OutputPath:     p.OutputPath,
		SQLitePath:     p.SQLitePath,
		CleanupSources: p.CleanupSources,
	}
	if p.Download {
		client := usda.NewClient(cfg.Download.PageURL, cfg.Download.BaseURL)
		client.SetDebug(p.Debug)
		service.WithDatasetProvider(client)
		input.DownloadDir = p.SourceDir
		log.Printf("Download enabled: %s", cfg.Download.PageURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if p.Schedule == "" {
		if _, err := service.Run(ctx, input); err != nil {
			log.Fatalf("Pipeline failed: %v", err)
		}
		return
	}

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	if _, err := scheduler.AddFunc(p.Schedule, func() {
		if _, err := service.Run(ctx, input); err != nil {
			log.Printf("[SCHEDULER] Pipeline run failed: %v", err)
		}
	}); err != nil {
		log.Fatalf("Invalid schedule %q: %v", p.Schedule, err)
	}

	log.Printf("[SCHEDULER] Pipeline scheduled: %s", p.Schedule)
	scheduler.Start()
	<-ctx.Done()

	log.Printf("[SCHEDULER] Shutting down, waiting for a running pipeline to finish...")
	<-scheduler.Stop().Done()
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}

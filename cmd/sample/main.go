package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/foodbase/etl/config"
	"github.com/foodbase/etl/internal/domain"
	"github.com/foodbase/etl/internal/infrastructure/csvtable"
	"github.com/foodbase/etl/internal/usecase"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("sample", pflag.ExitOnError)
	flags.String("pipeline.output_path", "usda_branded_food_data.csv", "food table CSV to sample from")
	size := flags.IntP("size", "n", 100, "rows per sample")
	seed := flags.Uint64("seed", 0, "random sample seed; 0 uses the current time")
	outDir := flags.String("out-dir", ".", "directory the sample files are written to")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.LoadWithFlags(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	input := cfg.Pipeline.OutputPath
	table, err := csvtable.NewReader().ReadTable(ctx, input)
	if err != nil {
		log.Fatalf("Failed to read %s: %v", input, err)
	}

	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	sampler := usecase.NewSampler()
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	samples := map[string]*domain.FoodTable{
		base + "_most_populated.csv": sampler.MostPopulated(table, *size),
		base + "_random_sample.csv":  sampler.RandomSample(table, *size, *seed),
	}

	writer := csvtable.NewWriter()
	for name, sample := range samples {
		path := filepath.Join(*outDir, name)
		if err := writer.WriteTable(ctx, path, sample); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		log.Printf("[SAMPLE] Wrote %d rows to %s", len(sample.Rows), path)
	}
	log.Printf("[SAMPLE] Random sample seed: %d", *seed)
}

func init() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/foodbase/etl/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TableExporter writes the final table to a secondary store such as SQLite
type TableExporter interface {
	Export(ctx context.Context, path string, table *domain.FoodTable) error
}

// PipelineConfig holds configuration for the ETL pipeline
type PipelineConfig struct {
	ChunkSize             int
	KeepUnmappedNutrients bool
	IncludeBrandFields    bool
	RequireIngredients    bool
	Thresholds            *Thresholds // nil uses DefaultThresholds
	EnableDebugLogging    bool
}

// PipelineInput says where one run reads from and writes to
type PipelineInput struct {
	Sources        domain.SourceFiles
	DownloadDir    string // fetch the source tables into this directory first, if set
	OutputPath     string
	SQLitePath     string // optional
	CleanupSources bool   // remove the source tables after a successful run
}

// StageTiming records how long one pipeline stage took
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// PipelineReport summarizes a pipeline run
type PipelineReport struct {
	BrandedFoods  int // branded food records loaded
	RetainedFoods int // records left after reconciliation
	Descriptions  int
	Measurements  int
	Matrix        *NutrientMatrix
	Denormalize   *DenormalizeStats
	OutputPath    string
	SQLitePath    string
	Timings       []StageTiming
	Duration      time.Duration
}

// PipelineService runs the branded food ETL from source tables to the final table
type PipelineService struct {
	loader       domain.SourceLoader
	writer       domain.TableWriter
	exporter     TableExporter
	provider     domain.DatasetProvider
	reconciler   *Reconciler
	pivoter      *Pivoter
	denormalizer *Denormalizer
	tracer       trace.Tracer
}

// NewPipelineService creates a new pipeline service with dependencies
func NewPipelineService(loader domain.SourceLoader, writer domain.TableWriter, config PipelineConfig) *PipelineService {
	thresholds := config.Thresholds
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	normalizer := NewTextNormalizer(config.EnableDebugLogging)

	return &PipelineService{
		loader:     loader,
		writer:     writer,
		reconciler: NewReconciler(config.EnableDebugLogging),
		pivoter:    NewPivoter(config.KeepUnmappedNutrients, config.EnableDebugLogging),
		denormalizer: NewDenormalizer(thresholds, normalizer, DenormalizeOptions{
			ChunkSize:          config.ChunkSize,
			RequireIngredients: config.RequireIngredients,
			IncludeBrandFields: config.IncludeBrandFields,
		}),
		tracer: otel.Tracer("foodetl/pipeline"),
	}
}

// WithExporter sets the exporter used when PipelineInput.SQLitePath is set
func (s *PipelineService) WithExporter(exporter TableExporter) *PipelineService {
	s.exporter = exporter
	return s
}

// WithDatasetProvider sets the provider used when PipelineInput.DownloadDir is set
func (s *PipelineService) WithDatasetProvider(provider domain.DatasetProvider) *PipelineService {
	s.provider = provider
	return s
}

// Run executes every stage in order. The CSV is written last, and the SQLite
// export is removed again if that write fails, so a failed run never leaves
// an output file behind.
func (s *PipelineService) Run(ctx context.Context, input PipelineInput) (*PipelineReport, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline")
	defer span.End()

	if input.OutputPath == "" {
		return nil, fmt.Errorf("%w: output path is required", domain.ErrInvalidRequest)
	}
	if input.SQLitePath != "" && s.exporter == nil {
		return nil, fmt.Errorf("%w: SQLite path set but no exporter configured", domain.ErrInvalidRequest)
	}

	start := time.Now()
	report := &PipelineReport{OutputPath: input.OutputPath}
	sources := input.Sources

	var (
		foods        []domain.BrandedFoodRecord
		descriptions []domain.FoodDescription
		nutrients    []domain.NutrientDefinition
		measurements []domain.FoodNutrientMeasurement
		retained     map[int64]struct{}
		table        *domain.FoodTable
	)

	stages := []struct {
		name string
		run  func(ctx context.Context) error
	}{
		{"download", func(ctx context.Context) error {
			if input.DownloadDir == "" {
				return nil
			}
			if s.provider == nil {
				return fmt.Errorf("%w: download requested but no dataset provider configured", domain.ErrInvalidRequest)
			}
			var err error
			sources, err = s.provider.FetchTables(ctx, input.DownloadDir)
			return err
		}},
		{"load_branded_foods", func(ctx context.Context) error {
			var err error
			foods, err = s.loader.ReadBrandedFoods(ctx, sources.BrandedFood)
			report.BrandedFoods = len(foods)
			return err
		}},
		{"reconcile", func(ctx context.Context) error {
			foods = s.reconciler.ReconcileBrandedFoods(foods)
			retained = s.reconciler.RetainedIDs(foods)
			report.RetainedFoods = len(foods)
			return nil
		}},
		{"load_foods", func(ctx context.Context) error {
			all, err := s.loader.ReadFoods(ctx, sources.Food)
			if err != nil {
				return err
			}
			descriptions = s.reconciler.FilterFoods(all, retained)
			report.Descriptions = len(descriptions)
			return nil
		}},
		{"load_nutrients", func(ctx context.Context) error {
			var err error
			nutrients, err = s.loader.ReadNutrients(ctx, sources.Nutrient)
			return err
		}},
		{"load_food_nutrients", func(ctx context.Context) error {
			var err error
			measurements, err = s.loader.ReadFoodNutrients(ctx, sources.FoodNutrient, func(id int64) bool {
				_, ok := retained[id]
				return ok
			})
			report.Measurements = len(measurements)
			return err
		}},
		{"pivot", func(ctx context.Context) error {
			report.Matrix = s.pivoter.Pivot(measurements, nutrients)
			measurements = nil
			return nil
		}},
		{"denormalize", func(ctx context.Context) error {
			var err error
			table, report.Denormalize, err = s.denormalizer.Denormalize(ctx, foods, descriptions, report.Matrix)
			return err
		}},
		{"export_sqlite", func(ctx context.Context) error {
			if input.SQLitePath == "" {
				return nil
			}
			report.SQLitePath = input.SQLitePath
			return s.exporter.Export(ctx, input.SQLitePath, table)
		}},
		{"write", func(ctx context.Context) error {
			err := s.writer.WriteTable(ctx, input.OutputPath, table)
			if err != nil && input.SQLitePath != "" {
				if rmErr := os.Remove(input.SQLitePath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
					log.Printf("[PIPELINE] Failed to remove %s: %v", input.SQLitePath, rmErr)
				}
			}
			return err
		}},
	}

	for _, stage := range stages {
		if err := s.runStage(ctx, report, stage.name, stage.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if input.CleanupSources {
		removeSources(sources)
	}

	report.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("rows", report.Denormalize.Rows))
	log.Printf("[PIPELINE] Wrote %d rows x %d nutrients to %s in %v",
		report.Denormalize.Rows, report.Denormalize.NutrientColumns, input.OutputPath, report.Duration.Round(time.Millisecond))
	return report, nil
}

// runStage runs one stage in its own span and records its timing
func (s *PipelineService) runStage(ctx context.Context, report *PipelineReport, name string, run func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()

	start := time.Now()
	err := run(ctx)
	elapsed := time.Since(start)
	report.Timings = append(report.Timings, StageTiming{Stage: name, Duration: elapsed})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("[PIPELINE] Stage %s failed after %v: %v", name, elapsed.Round(time.Millisecond), err)
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Printf("[PIPELINE] Stage %s done in %v", name, elapsed.Round(time.Millisecond))
	return nil
}

func removeSources(sources domain.SourceFiles) {
	for _, path := range []string{sources.BrandedFood, sources.Food, sources.Nutrient, sources.FoodNutrient} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("[PIPELINE] Failed to remove %s: %v", path, err)
		}
	}
}

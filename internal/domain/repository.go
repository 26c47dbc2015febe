package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// SourceLoader reads and projects the four USDA source tables
type SourceLoader interface {
	ReadBrandedFoods(ctx context.Context, path string) ([]BrandedFoodRecord, error)
	ReadFoods(ctx context.Context, path string) ([]FoodDescription, error)
	ReadNutrients(ctx context.Context, path string) ([]NutrientDefinition, error)
	// ReadFoodNutrients returns only the measurements whose record id satisfies keep
	ReadFoodNutrients(ctx context.Context, path string, keep func(recordID int64) bool) ([]FoodNutrientMeasurement, error)
}

// TableWriter persists the denormalized food table
type TableWriter interface {
	WriteTable(ctx context.Context, path string, table *FoodTable) error
}

// TableReader loads a previously written food table
type TableReader interface {
	ReadTable(ctx context.Context, path string) (*FoodTable, error)
}

// DatasetProvider downloads the USDA archive and extracts the source tables into destDir
type DatasetProvider interface {
	FetchTables(ctx context.Context, destDir string) (SourceFiles, error)
}

// Embedder turns texts into embedding vectors, one per input, in order
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorDocument is one food record ready for the vector store
type VectorDocument struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// VectorMatch is one nearest-neighbour hit
type VectorMatch struct {
	ID       string
	Score    float32
	Text     string
	Metadata map[string]string
}

// VectorStore stores food documents and answers nearest-neighbour queries
type VectorStore interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, docs []VectorDocument) error
	Search(ctx context.Context, embedding []float32, topK int) ([]VectorMatch, error)
}

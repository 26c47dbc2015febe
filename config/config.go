package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Pipeline    PipelineConfig
	Download    DownloadConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Server      ServerConfig
	Cache       CacheConfig
	RateLimit   RateLimitConfig
}

// PipelineConfig holds configuration of the ETL pipeline run
type PipelineConfig struct {
	SourceDir             string `mapstructure:"source_dir"`
	OutputPath            string `mapstructure:"output_path"`
	SQLitePath            string `mapstructure:"sqlite_path"` // optional SQLite export
	ChunkSize             int    `mapstructure:"chunk_size"`
	KeepUnmappedNutrients bool   `mapstructure:"keep_unmapped_nutrients"`
	IncludeBrandFields    bool   `mapstructure:"include_brand_fields"`
	RequireIngredients    bool   `mapstructure:"require_ingredients"`
	Download              bool   `mapstructure:"download"`
	CleanupSources        bool   `mapstructure:"cleanup_sources"`
	Schedule              string `mapstructure:"schedule"` // cron spec, empty runs once
	Debug                 bool   `mapstructure:"debug"`
}

// DownloadConfig holds USDA FoodData Central download configuration
type DownloadConfig struct {
	PageURL string `mapstructure:"page_url"`
	BaseURL string `mapstructure:"base_url"`
}

// EmbeddingConfig holds embedding API configuration
type EmbeddingConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// VectorStoreConfig holds vector store configuration
type VectorStoreConfig struct {
	Type        string `mapstructure:"type"` // "qdrant" or "pgvector"
	QdrantAddr  string `mapstructure:"qdrant_addr"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Collection  string `mapstructure:"collection"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP     int `mapstructure:"per_ip"`    // requests per minute per client
	Embedding int `mapstructure:"embedding"` // requests per minute to the embedding API
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags loads configuration, letting command-line flags override
// config files and environment variables. Flag names use the viper keys,
// e.g. --pipeline.output_path.
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/foodetl/")

	// Environment variable settings
	v.SetEnvPrefix("FOODETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("unable to bind flags: %w", err)
		}
	}

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads KEY=VALUE pairs from ./.env without overriding variables
// that are already set. A missing file is not an error.
func loadEnvFile() error {
	err := godotenv.Load(".env")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Pipeline defaults
	v.SetDefault("pipeline.source_dir", ".")
	v.SetDefault("pipeline.output_path", "usda_branded_food_data.csv")
	v.SetDefault("pipeline.sqlite_path", "")
	v.SetDefault("pipeline.chunk_size", 100000)
	v.SetDefault("pipeline.keep_unmapped_nutrients", false)
	v.SetDefault("pipeline.include_brand_fields", false)
	v.SetDefault("pipeline.require_ingredients", true)
	v.SetDefault("pipeline.download", false)
	v.SetDefault("pipeline.cleanup_sources", false)
	v.SetDefault("pipeline.schedule", "")
	v.SetDefault("pipeline.debug", false)

	// Download defaults
	v.SetDefault("download.page_url", "https://fdc.nal.usda.gov/download-datasets.html")
	v.SetDefault("download.base_url", "https://fdc.nal.usda.gov")

	// Embedding defaults
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 90)
	v.SetDefault("embedding.max_retries", 5)

	// Vector store defaults
	v.SetDefault("vectorstore.type", "qdrant")
	v.SetDefault("vectorstore.qdrant_addr", "localhost:6334")
	v.SetDefault("vectorstore.postgres_dsn", "")
	v.SetDefault("vectorstore.collection", "branded-food-data")
	v.SetDefault("vectorstore.max_retries", 15)

	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Cache defaults
	v.SetDefault("cache.ttl", "24h")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 60)
	v.SetDefault("ratelimit.embedding", 3000)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Pipeline.OutputPath == "" {
		return fmt.Errorf("pipeline output path is required (set FOODETL_PIPELINE_OUTPUT_PATH)")
	}

	if config.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline chunk size must be positive, got: %d", config.Pipeline.ChunkSize)
	}

	if config.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding batch size must be positive, got: %d", config.Embedding.BatchSize)
	}

	if config.VectorStore.Type != "qdrant" && config.VectorStore.Type != "pgvector" {
		return fmt.Errorf("vector store type must be 'qdrant' or 'pgvector', got: %s", config.VectorStore.Type)
	}

	if config.VectorStore.Type == "pgvector" && config.VectorStore.PostgresDSN == "" {
		return fmt.Errorf("Postgres DSN is required when vector store type is 'pgvector'")
	}

	return nil
}

// RequireEmbedding checks the settings needed by commands that call the embedding API
func (c *Config) RequireEmbedding() error {
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding API key is required (set FOODETL_EMBEDDING_API_KEY)")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got: %d", c.Embedding.Dimensions)
	}
	return nil
}

package domain

import "errors"

var (
	// ErrMissingColumn is returned when a source table lacks a required column
	ErrMissingColumn = errors.New("required column missing from source table")

	// ErrMalformedTable is returned when a source table cannot be parsed
	ErrMalformedTable = errors.New("malformed source table")

	// ErrMissingTable is returned when the dataset archive lacks one of the source tables
	ErrMissingTable = errors.New("source table not found in dataset archive")

	// ErrDatasetNotFound is returned when the download page has no dataset link
	ErrDatasetNotFound = errors.New("dataset download link not found")

	// ErrDownloadFailure is returned when the dataset download fails
	ErrDownloadFailure = errors.New("dataset download failed")

	// ErrEmbeddingFailure is returned when the embedding API request fails
	ErrEmbeddingFailure = errors.New("embedding request failed")

	// ErrVectorStoreFailure is returned when a vector store operation fails
	ErrVectorStoreFailure = errors.New("vector store request failed")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrFoodNotFound is returned when a search yields no food records
	ErrFoodNotFound = errors.New("no matching food records")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

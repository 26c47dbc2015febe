package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/foodbase/etl/internal/domain"
	"github.com/foodbase/etl/internal/infrastructure/usda"
)

var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9\s]`)

const (
	// DefaultSearchLimit is used when a request does not set a limit
	DefaultSearchLimit = 5
	// MaxSearchLimit bounds the number of matches a request may ask for
	MaxSearchLimit = 50
)

// SearchServiceConfig holds configuration for the search service
type SearchServiceConfig struct {
	CacheTTL           time.Duration
	EnableDebugLogging bool
}

// SearchService answers free-text food searches against the vector store
type SearchService struct {
	cache      domain.CacheRepository
	embedder   domain.Embedder
	store      domain.VectorStore
	normalizer *TextNormalizer
	cacheTTL   time.Duration
	debug      bool
}

// NewSearchService creates a new search service with dependencies
func NewSearchService(
	cache domain.CacheRepository,
	embedder domain.Embedder,
	store domain.VectorStore,
	config SearchServiceConfig,
) *SearchService {
	cacheTTL := config.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}

	return &SearchService{
		cache:      cache,
		embedder:   embedder,
		store:      store,
		normalizer: NewTextNormalizer(config.EnableDebugLogging),
		cacheTTL:   cacheTTL,
		debug:      config.EnableDebugLogging,
	}
}

// Search finds the food records closest to the request query.
// Flow: normalize -> check cache -> embed -> vector search -> map -> cache -> return
func (s *SearchService) Search(ctx context.Context, request *domain.SearchRequest) (*domain.SearchResponse, error) {
	if request == nil {
		return nil, domain.ErrInvalidRequest
	}
	query := s.normalizer.NormalizeText(request.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrInvalidRequest)
	}
	limit := request.Limit
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 0 || limit > MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidRequest, MaxSearchLimit)
	}

	cacheKey := generateCacheKey(query, limit)
	if cached, err := s.getFromCache(ctx, cacheKey); err == nil {
		cached.Source = "Cache"
		return cached, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: no embedding returned for query", domain.ErrEmbeddingFailure)
	}

	hits, err := s.store.Search(ctx, vectors[0], limit)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, domain.ErrFoodNotFound
	}

	response := &domain.SearchResponse{
		Query:   query,
		Matches: make([]domain.FoodMatch, len(hits)),
		Source:  "VectorStore",
	}
	for i, hit := range hits {
		response.Matches[i] = usda.MapToFoodMatch(hit)
	}

	if err := s.cache.Set(ctx, cacheKey, response, s.cacheTTL); err != nil {
		log.Printf("[SEARCH] Failed to cache result for %q: %v", query, err)
	}
	if s.debug {
		log.Printf("[SEARCH] %q -> %d matches (best %.3f)", query, len(hits), hits[0].Score)
	}

	return response, nil
}

// generateCacheKey creates a cache key from the normalized query.
// Format: "search:{query}:{limit}"
func generateCacheKey(query string, limit int) string {
	return fmt.Sprintf("search:%s:%d", normalizeForCacheKey(query), limit)
}

// normalizeForCacheKey lowercases s and strips everything but letters, digits and single spaces
func normalizeForCacheKey(s string) string {
	if s == "" {
		return ""
	}
	result := strings.ToLower(s)
	result = nonAlphanumericRegex.ReplaceAllString(result, "")
	return CollapseWhitespace(result)
}

// getFromCache retrieves a search response from cache. The in-memory cache
// hands back JSON; other implementations may return the value itself.
func (s *SearchService) getFromCache(ctx context.Context, key string) (*domain.SearchResponse, error) {
	value, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case *domain.SearchResponse:
		copied := *v
		return &copied, nil
	case json.RawMessage:
		var response domain.SearchResponse
		if err := json.Unmarshal(v, &response); err != nil {
			return nil, domain.ErrCacheMiss
		}
		return &response, nil
	}
	return nil, domain.ErrCacheMiss
}

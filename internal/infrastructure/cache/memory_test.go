package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/foodbase/etl/internal/domain"
)

func newTestCache(t *testing.T) *MemoryCache {
	t.Helper()
	cache := NewMemoryCache(time.Minute)
	t.Cleanup(cache.Close)
	return cache
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		key      string
		value    interface{}
		ttl      time.Duration
		wantJSON string
	}{
		{
			name:     "store and retrieve string",
			key:      "test-key-1",
			value:    "test-value",
			ttl:      1 * time.Minute,
			wantJSON: `"test-value"`,
		},
		{
			name: "store and retrieve struct",
			key:  "test-key-2",
			value: domain.SearchResponse{
				Query:   "GRANOLA BAR",
				Matches: []domain.FoodMatch{{RecordID: "12345", Name: "GRANOLA BAR"}},
				Source:  "VectorStore",
			},
			ttl:      1 * time.Minute,
			wantJSON: `{"query":"GRANOLA BAR","matches":[{"recordId":"12345","name":"GRANOLA BAR","macros":{},"score":0}],"source":"VectorStore"}`,
		},
		{
			name:  "store with short TTL",
			key:   "test-key-3",
			value: "expires-soon",
			ttl:   1 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := cache.Set(ctx, tt.key, tt.value, tt.ttl); err != nil {
				t.Fatalf("Set() error = %v", err)
			}

			// For short TTL test, wait for expiration
			if tt.ttl < 10*time.Millisecond {
				time.Sleep(10 * time.Millisecond)
				_, err := cache.Get(ctx, tt.key)
				if err != domain.ErrCacheMiss {
					t.Errorf("Expected cache miss after expiration, got error = %v", err)
				}
				return
			}

			got, err := cache.Get(ctx, tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			raw, ok := got.(json.RawMessage)
			if !ok {
				t.Fatalf("Get() returned %T, want json.RawMessage", got)
			}
			if string(raw) != tt.wantJSON {
				t.Errorf("Get() = %s, want %s", raw, tt.wantJSON)
			}
		})
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "k", "value", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	first, _ := cache.Get(ctx, "k")
	first.(json.RawMessage)[1] = 'X'

	second, _ := cache.Get(ctx, "k")
	if string(second.(json.RawMessage)) != `"value"` {
		t.Errorf("cached value was modified through a returned slice: %s", second)
	}
}

func TestMemoryCache_SetUnencodable(t *testing.T) {
	cache := newTestCache(t)
	if err := cache.Set(context.Background(), "k", make(chan int), time.Minute); err == nil {
		t.Error("Set() error = nil, want error for value that cannot be encoded")
	}
}

func TestMemoryCache_Get_CacheMiss(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	_, err := cache.Get(ctx, "non-existent-key")
	if err != domain.ErrCacheMiss {
		t.Errorf("Get() error = %v, want %v", err, domain.ErrCacheMiss)
	}

	hits, misses := cache.Stats()
	if hits != 0 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses, want 0, 1", hits, misses)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key := "delete-test"
	if err := cache.Set(ctx, key, "value", 1*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := cache.Get(ctx, key); err != nil {
		t.Fatalf("Get() before delete error = %v", err)
	}

	if err := cache.Delete(ctx, key); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	if _, err := cache.Get(ctx, key); err != domain.ErrCacheMiss {
		t.Errorf("Get() after delete error = %v, want %v", err, domain.ErrCacheMiss)
	}
}

func TestMemoryCache_Exists(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	key := "exists-test"

	exists, err := cache.Exists(ctx, key)
	if err != nil {
		t.Errorf("Exists() error = %v", err)
	}
	if exists {
		t.Errorf("Exists() = true, want false for non-existent key")
	}

	if err := cache.Set(ctx, key, "value", 1*time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	exists, _ = cache.Exists(ctx, key)
	if !exists {
		t.Errorf("Exists() = false, want true after setting value")
	}

	shortKey := "short-ttl"
	if err := cache.Set(ctx, shortKey, "value", 1*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	exists, _ = cache.Exists(ctx, shortKey)
	if exists {
		t.Errorf("Exists() = true, want false after expiration")
	}
}

func TestMemoryCache_Sweep(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, "fresh", 1, time.Hour)
	cache.Set(ctx, "stale", 2, time.Millisecond)

	removed := cache.sweep(time.Now().Add(time.Second))
	if removed != 1 {
		t.Errorf("sweep() removed %d, want 1", removed)
	}
	if size := cache.Size(); size != 1 {
		t.Errorf("Size() = %d, want 1 after sweep", size)
	}
}

func TestMemoryCache_CleanupLoop(t *testing.T) {
	cache := NewMemoryCache(5 * time.Millisecond)
	defer cache.Close()

	cache.Set(context.Background(), "stale", 1, time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for cache.Size() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expired entry was not swept by the cleanup loop")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMemoryCache_CloseTwice(t *testing.T) {
	cache := NewMemoryCache(0)
	cache.Close()
	cache.Close()
}

func TestMemoryCache_Size(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if size := cache.Size(); size != 0 {
		t.Errorf("Size() = %d, want 0 for empty cache", size)
	}

	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		if err := cache.Set(ctx, key, i, 1*time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	if size := cache.Size(); size != 5 {
		t.Errorf("Size() = %d, want 5", size)
	}

	if err := cache.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if size := cache.Size(); size != 4 {
		t.Errorf("Size() = %d, want 4 after delete", size)
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		if err := cache.Set(ctx, key, i, 1*time.Minute); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	cache.Clear()

	if size := cache.Size(); size != 0 {
		t.Errorf("Size() = %d, want 0 after clear", size)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := string(rune('a' + id))
			if err := cache.Set(ctx, key, id, 1*time.Minute); err != nil {
				t.Errorf("Concurrent Set() error = %v", err)
			}
			if _, err := cache.Get(ctx, key); err != nil {
				t.Errorf("Concurrent Get() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	hits, _ := cache.Stats()
	if hits != 10 {
		t.Errorf("hits = %d, want 10", hits)
	}
}

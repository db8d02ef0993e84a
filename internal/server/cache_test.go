package server

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCache_GetPut(t *testing.T) {
	cache := NewResponseCache(10, time.Hour)

	assert.Nil(t, cache.Get("edge/1"))

	cache.Put("edge/1", []byte(`{"id":1}`))
	assert.Equal(t, []byte(`{"id":1}`), cache.Get("edge/1"))
	assert.Nil(t, cache.Get("edge/2"))

	stats := cache.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}

func TestResponseCache_TTLExpiration(t *testing.T) {
	cache := NewResponseCache(10, 50*time.Millisecond)

	cache.Put("edge/1", []byte("x"))
	assert.NotNil(t, cache.Get("edge/1"))

	time.Sleep(60 * time.Millisecond)
	assert.Nil(t, cache.Get("edge/1"))

	cache.mu.RLock()
	_, exists := cache.entries["edge/1"]
	cache.mu.RUnlock()
	assert.False(t, exists)
}

func TestResponseCache_LRUEviction(t *testing.T) {
	cache := NewResponseCache(2, time.Hour)

	cache.Put("a", []byte("1"))
	cache.Put("b", []byte("2"))
	// Touch "a" so "b" becomes the oldest.
	assert.NotNil(t, cache.Get("a"))
	cache.Put("c", []byte("3"))

	assert.NotNil(t, cache.Get("a"))
	assert.Nil(t, cache.Get("b"))
	assert.NotNil(t, cache.Get("c"))
}

func TestResponseCache_Overwrite(t *testing.T) {
	cache := NewResponseCache(2, time.Hour)
	cache.Put("a", []byte("1"))
	cache.Put("a", []byte("2"))

	assert.Equal(t, []byte("2"), cache.Get("a"))
	assert.Equal(t, 1, cache.Stats().Entries)
}

func TestResponseCache_Disabled(t *testing.T) {
	cache := NewResponseCache(0, time.Hour)
	assert.Nil(t, cache)

	cache.Put("a", []byte("1"))
	assert.Nil(t, cache.Get("a"))
	assert.Equal(t, CacheStats{}, cache.Stats())
}

func TestResponseCache_Concurrent(t *testing.T) {
	cache := NewResponseCache(50, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("edge/%d", (i*100+j)%80)
				cache.Put(key, []byte(key))
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, cache.Stats().Entries, 50)
}

package repo

import (
	"CloudVault/model"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMiss = errors.New("miss")

// mapCache is an in-memory utils.Cache.
type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deletes int
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return errMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.data, key)
	return nil
}

func (c *mapCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok, nil
}

func TestCachedGetOneReadsThrough(t *testing.T) {
	db := openTestDB(t)
	cache := newMapCache()
	r := NewCachedVersionRepository(NewGormVersionRepository(db), cache, time.Minute)
	ctx := context.Background()

	v := newVersion(t, "cached.txt", true)
	require.NoError(t, r.Save(ctx, v))

	_, err := r.GetOne(ctx, v.ID)
	require.NoError(t, err)
	ok, _ := cache.Exists(ctx, versionKey(v.ID))
	assert.True(t, ok)

	// A direct write behind the cache's back is not seen until invalidation.
	require.NoError(t, db.Model(&model.FileVersion{}).Where("id = ?", v.ID).Update("size", 7).Error)
	got, err := r.GetOne(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.Size, got.Size)

	got.Size = 8
	require.NoError(t, r.Save(ctx, got))
	ok, _ = cache.Exists(ctx, versionKey(v.ID))
	assert.False(t, ok)

	got, err = r.GetOne(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8), got.Size)
}

func TestCachedDeleteInvalidates(t *testing.T) {
	cache := newMapCache()
	r := NewCachedVersionRepository(NewGormVersionRepository(openTestDB(t)), cache, time.Minute)
	ctx := context.Background()

	v := newVersion(t, "gone.txt", false)
	require.NoError(t, r.Save(ctx, v))
	_, err := r.GetOne(ctx, v.ID)
	require.NoError(t, err)

	_, err = r.Delete(ctx, v.ID)
	require.NoError(t, err)
	_, err = r.GetOne(ctx, v.ID)
	assert.Error(t, err)
	assert.Equal(t, 2, cache.deletes)
}

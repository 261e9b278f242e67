package repo

import (
	"CloudVault/internal/dto"
	"CloudVault/model"
	"CloudVault/utils"
	"context"
	"log"
	"time"
)

// CachedVersionRepository reads versions by ID through a cache and drops the
// entry whenever the row changes.
type CachedVersionRepository struct {
	inner VersionRepository
	cache utils.Cache
	ttl   time.Duration
}

func NewCachedVersionRepository(inner VersionRepository, cache utils.Cache, ttl time.Duration) *CachedVersionRepository {
	return &CachedVersionRepository{inner: inner, cache: cache, ttl: ttl}
}

func versionKey(id string) string {
	return utils.BuildCacheKey(utils.CacheKeyFileVersion, id)
}

func (r *CachedVersionRepository) GetOne(ctx context.Context, id string) (*model.FileVersion, error) {
	var cached model.FileVersion
	if err := r.cache.Get(ctx, versionKey(id), &cached); err == nil && cached.ID == id {
		return &cached, nil
	}
	v, err := r.inner.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, versionKey(id), v, r.ttl); err != nil {
		log.Printf("cache set %s failed: %v", id, err)
	}
	return v, nil
}

func (r *CachedVersionRepository) GetOneBy(ctx context.Context, q VersionQuery) (*model.FileVersion, error) {
	return r.inner.GetOneBy(ctx, q)
}

func (r *CachedVersionRepository) GetOneByPath(ctx context.Context, path string) (*model.FileVersion, error) {
	return r.inner.GetOneByPath(ctx, path)
}

func (r *CachedVersionRepository) Save(ctx context.Context, v *model.FileVersion) error {
	if err := r.inner.Save(ctx, v); err != nil {
		return err
	}
	r.invalidate(ctx, v.ID)
	return nil
}

func (r *CachedVersionRepository) Delete(ctx context.Context, id string) (*model.FileVersion, error) {
	v, err := r.inner.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	r.invalidate(ctx, id)
	return v, nil
}

func (r *CachedVersionRepository) List(ctx context.Context, c dto.Criteria) (*dto.Page, error) {
	return r.inner.List(ctx, c)
}

func (r *CachedVersionRepository) invalidate(ctx context.Context, id string) {
	if err := r.cache.Delete(ctx, versionKey(id)); err != nil {
		log.Printf("cache invalidate %s failed: %v", id, err)
	}
}

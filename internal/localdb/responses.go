package localdb

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PutResponse stores or replaces a cached response.
func (s *Store) PutResponse(ctx context.Context, r *CachedResponse) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(r).Error
	})
	return wrapErr("put response", err)
}

// MatchResponse looks key up in one cache.
func (s *Store) MatchResponse(ctx context.Context, cacheName, key string) (*CachedResponse, error) {
	var r CachedResponse
	err := s.db.WithContext(ctx).
		Where("cache_name = ? AND cache_key = ?", cacheName, key).
		First(&r).Error
	if err != nil {
		return nil, wrapErr("match response", err)
	}
	return &r, nil
}

// CacheNames lists the distinct response cache names present.
func (s *Store) CacheNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&CachedResponse{}).
		Distinct("cache_name").
		Order("cache_name").
		Pluck("cache_name", &names).Error
	return names, wrapErr("list cache names", err)
}

// DeleteCache drops every response stored under cacheName.
func (s *Store) DeleteCache(ctx context.Context, cacheName string) error {
	err := s.runTx(ctx, func(tx *gorm.DB) error {
		return tx.Where("cache_name = ?", cacheName).Delete(&CachedResponse{}).Error
	})
	return wrapErr("delete cache", err)
}

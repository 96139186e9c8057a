// Package cache adds read-aside Redis caching in front of the dining object
// repository and the relay's device store.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// CacheClient is the subset of Redis commands the decorators need.
type CacheClient interface {
	// Get decodes the value into dest, or returns an error on a miss.
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedObjectStore is a read-aside decorator over any ObjectRepository.
// Cache failures never fail a Fetch; they only cost a trip to the backing store.
type CachedObjectStore struct {
	realStore dining.ObjectRepository
	cache     CacheClient
	ttl       time.Duration
	logger    *slog.Logger
}

func NewCachedObjectStore(realStore dining.ObjectRepository, cache CacheClient, ttl time.Duration, logger *slog.Logger) *CachedObjectStore {
	return &CachedObjectStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With("component", "CachedObjectStore"),
	}
}

func (s *CachedObjectStore) Fetch(ctx context.Context, kind dining.ObjectKind, id string, dest any) error {
	key := objectKey(kind, id)
	if err := s.cache.Get(ctx, key, dest); err == nil {
		return nil
	}

	if err := s.realStore.Fetch(ctx, kind, id, dest); err != nil {
		return err
	}

	if err := s.cache.Set(ctx, key, dest, s.ttl); err != nil {
		s.logger.Debug("Cache fill failed", "key", key, "err", err)
	}
	return nil
}

// Save writes through and drops the cached copy so the next Fetch reloads it.
func (s *CachedObjectStore) Save(ctx context.Context, kind dining.ObjectKind, id string, obj any) error {
	if err := s.realStore.Save(ctx, kind, id, obj); err != nil {
		return err
	}
	return s.cache.Del(ctx, objectKey(kind, id))
}

func objectKey(kind dining.ObjectKind, id string) string {
	return fmt.Sprintf("dineon:obj:%s:%s", kind, id)
}

package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-dining-satellite/pkg/relay"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// CachedDeviceStore adds read-aside caching to any relay.DeviceStore.
type CachedDeviceStore struct {
	realStore relay.DeviceStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedDeviceStore(realStore relay.DeviceStore, cache CacheClient, ttl time.Duration) *CachedDeviceStore {
	return &CachedDeviceStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

func (s *CachedDeviceStore) Fetch(ctx context.Context, channel dining.Channel) (*relay.Devices, error) {
	key := deviceKey(channel)
	var cached relay.Devices
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	fresh, err := s.realStore.Fetch(ctx, channel)
	if err != nil {
		return nil, err
	}

	// caching is an optimization; a down Redis just means serving from the store
	_ = s.cache.Set(ctx, key, fresh, s.ttl)
	return fresh, nil
}

func (s *CachedDeviceStore) RegisterFCM(ctx context.Context, channel dining.Channel, token string) error {
	if err := s.realStore.RegisterFCM(ctx, channel, token); err != nil {
		return err
	}
	return s.invalidate(ctx, channel)
}

func (s *CachedDeviceStore) RegisterAPNS(ctx context.Context, channel dining.Channel, token string) error {
	if err := s.realStore.RegisterAPNS(ctx, channel, token); err != nil {
		return err
	}
	return s.invalidate(ctx, channel)
}

func (s *CachedDeviceStore) RegisterWeb(ctx context.Context, channel dining.Channel, sub notification.WebPushSubscription) error {
	if err := s.realStore.RegisterWeb(ctx, channel, sub); err != nil {
		return err
	}
	return s.invalidate(ctx, channel)
}

// Unregister paths must clear the cache so pushes stop immediately.

func (s *CachedDeviceStore) UnregisterFCM(ctx context.Context, channel dining.Channel, token string) error {
	if err := s.realStore.UnregisterFCM(ctx, channel, token); err != nil {
		return err
	}
	return s.invalidate(ctx, channel)
}

func (s *CachedDeviceStore) UnregisterAPNS(ctx context.Context, channel dining.Channel, token string) error {
	if err := s.realStore.UnregisterAPNS(ctx, channel, token); err != nil {
		return err
	}
	return s.invalidate(ctx, channel)
}

func (s *CachedDeviceStore) UnregisterWeb(ctx context.Context, channel dining.Channel, endpoint string) error {
	if err := s.realStore.UnregisterWeb(ctx, channel, endpoint); err != nil {
		return err
	}
	return s.invalidate(ctx, channel)
}

func (s *CachedDeviceStore) invalidate(ctx context.Context, channel dining.Channel) error {
	return s.cache.Del(ctx, deviceKey(channel))
}

func deviceKey(channel dining.Channel) string {
	return fmt.Sprintf("dineon:devices:%s", channel)
}

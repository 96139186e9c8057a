//go:build integration

package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-dining-satellite/internal/storage/cache"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

func TestRedisClient_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	client, err := cache.NewRedisClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	key := "dineon:test:" + uuid.NewString()
	want := dining.RestaurantInfo{ObjectID: "r-1", Name: "Chez Test"}

	var got dining.RestaurantInfo
	assert.ErrorIs(t, client.Get(ctx, key, &got), cache.ErrMiss)

	require.NoError(t, client.Set(ctx, key, want, time.Minute))
	require.NoError(t, client.Get(ctx, key, &got))
	assert.Equal(t, want, got)

	require.NoError(t, client.Del(ctx, key))
	require.NoError(t, client.Del(ctx, key))
	assert.ErrorIs(t, client.Get(ctx, key, &got), cache.ErrMiss)
}

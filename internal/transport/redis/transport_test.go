//go:build integration

package redis_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	rt "github.com/tinywideclouds/go-dining-satellite/internal/transport/redis"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

type inbox struct {
	mu       sync.Mutex
	payloads []string
}

func (i *inbox) deliver(_ context.Context, payload []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.payloads = append(i.payloads, string(payload))
}

func (i *inbox) len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.payloads)
}

func TestRedisTransport_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	rdb, err := rt.Dial(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	transport := rt.NewTransport(rdb, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = transport.Close() })

	mine := dining.Channel("dineon_user_" + uuid.NewString())
	theirs := dining.Channel("dineon_user_" + uuid.NewString())
	got := &inbox{}

	require.NoError(t, transport.Subscribe(ctx, mine, got.deliver))
	require.NoError(t, transport.Publish(ctx, mine, []byte("for-me")))
	require.NoError(t, transport.Publish(ctx, theirs, []byte("not-for-me")))

	require.Eventually(t, func() bool { return got.len() == 1 }, 5*time.Second, 50*time.Millisecond)
	assert.Equal(t, []string{"for-me"}, got.payloads)

	require.NoError(t, transport.Unsubscribe(ctx, mine))
	require.NoError(t, transport.Unsubscribe(ctx, mine))
	require.NoError(t, transport.Publish(ctx, mine, []byte("after-unsubscribe")))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, got.len())
}

//go:build integration

package nats_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	nt "github.com/tinywideclouds/go-dining-satellite/internal/transport/nats"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

func TestNatsTransport_Integration(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	transport, err := nt.Connect(url, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	require.True(t, transport.IsConnected())

	channel := dining.Channel("dineon_restaurant_" + uuid.NewString())
	received := make(chan []byte, 4)
	require.NoError(t, transport.Subscribe(ctx, channel, func(_ context.Context, payload []byte) {
		received <- payload
	}))

	require.NoError(t, transport.Publish(ctx, channel, []byte(`{"channel":"x"}`)))
	select {
	case payload := <-received:
		assert.JSONEq(t, `{"channel":"x"}`, string(payload))
	case <-ctx.Done():
		t.Fatal("no delivery")
	}

	require.NoError(t, transport.Unsubscribe(ctx, channel))
	require.NoError(t, transport.Publish(ctx, channel, []byte("late")))
	select {
	case payload := <-received:
		t.Fatalf("unexpected delivery after unsubscribe: %s", payload)
	case <-time.After(200 * time.Millisecond):
	}
}

// Package nats implements the satellite Transport on NATS core subjects.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	natspkg "github.com/nats-io/nats.go"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

const subjectPrefix = "dineon.channel."

type Transport struct {
	nc     *natspkg.Conn
	logger *slog.Logger

	mu   sync.Mutex
	subs map[dining.Channel]*natspkg.Subscription
}

// Connect dials the server at url.
func Connect(url string, logger *slog.Logger) (*Transport, error) {
	nc, err := natspkg.Connect(url, natspkg.Name("dining-satellite"))
	if err != nil {
		return nil, fmt.Errorf("nats connect failed: %w", err)
	}
	return NewTransport(nc, logger), nil
}

func NewTransport(nc *natspkg.Conn, logger *slog.Logger) *Transport {
	return &Transport{
		nc:     nc,
		logger: logger.With("component", "NatsTransport"),
		subs:   make(map[dining.Channel]*natspkg.Subscription),
	}
}

func subject(ch dining.Channel) string {
	return subjectPrefix + string(ch)
}

func (t *Transport) IsConnected() bool {
	return t.nc != nil && t.nc.Status() == natspkg.CONNECTED
}

func (t *Transport) Subscribe(_ context.Context, channel dining.Channel, deliver dining.DeliveryFunc) error {
	sub, err := t.nc.Subscribe(subject(channel), func(msg *natspkg.Msg) {
		deliver(context.Background(), msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s failed: %w", channel, err)
	}

	t.mu.Lock()
	old := t.subs[channel]
	t.subs[channel] = sub
	t.mu.Unlock()

	if old != nil {
		_ = old.Unsubscribe()
	}
	t.logger.Debug("Subscribed", "subject", sub.Subject)
	return nil
}

func (t *Transport) Unsubscribe(_ context.Context, channel dining.Channel) error {
	t.mu.Lock()
	sub := t.subs[channel]
	delete(t.subs, channel)
	t.mu.Unlock()

	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s failed: %w", channel, err)
	}
	return nil
}

// Publish hands payload to the connection and flushes so that transport
// errors surface to the caller.
func (t *Transport) Publish(ctx context.Context, channel dining.Channel, payload []byte) error {
	if err := t.nc.Publish(subject(channel), payload); err != nil {
		return fmt.Errorf("nats publish %s failed: %w", channel, err)
	}
	return t.nc.FlushWithContext(ctx)
}

// Close drains subscriptions and closes the connection.
func (t *Transport) Close() error {
	return t.nc.Drain()
}

// Package redis implements the satellite Transport on Redis pub/sub.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

const keyPrefix = "dineon:channel:"

// Transport keeps one *redis.PubSub per subscribed channel so that channels
// can be dropped independently.
type Transport struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[dining.Channel]*subscription
}

type subscription struct {
	ps   *redis.PubSub
	done chan struct{}
}

// Dial connects and pings Redis, failing fast on a bad address.
func Dial(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func NewTransport(rdb *redis.Client, logger *slog.Logger) *Transport {
	return &Transport{
		rdb:    rdb,
		logger: logger.With("component", "RedisTransport"),
		subs:   make(map[dining.Channel]*subscription),
	}
}

func channelKey(ch dining.Channel) string {
	return keyPrefix + string(ch)
}

func (t *Transport) Subscribe(ctx context.Context, channel dining.Channel, deliver dining.DeliveryFunc) error {
	ps := t.rdb.Subscribe(ctx, channelKey(channel))
	// Wait for the subscription confirmation so Publish right after
	// Subscribe is not lost.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe %s failed: %w", channel, err)
	}

	sub := &subscription{ps: ps, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			deliver(context.Background(), []byte(msg.Payload))
		}
	}()

	t.mu.Lock()
	old := t.subs[channel]
	t.subs[channel] = sub
	t.mu.Unlock()

	if old != nil {
		old.stop()
	}
	t.logger.Debug("Subscribed", "channel", channel)
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
	if err := sub.stop(); err != nil {
		return fmt.Errorf("redis unsubscribe %s failed: %w", channel, err)
	}
	t.logger.Debug("Unsubscribed", "channel", channel)
	return nil
}

func (t *Transport) Publish(ctx context.Context, channel dining.Channel, payload []byte) error {
	return t.rdb.Publish(ctx, channelKey(channel), payload).Err()
}

// Close drops every subscription. The client itself is owned by the caller.
func (t *Transport) Close() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = make(map[dining.Channel]*subscription)
	t.mu.Unlock()

	var firstErr error
	for _, sub := range subs {
		if err := sub.stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *subscription) stop() error {
	err := s.ps.Close()
	<-s.done
	return err
}

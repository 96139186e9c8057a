// Package memory provides an in-process Transport. Publish delivers
// synchronously to the current subscriber of the channel, which makes it
// suitable for tests and single-process dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

type Transport struct {
	mu   sync.RWMutex
	subs map[dining.Channel]dining.DeliveryFunc
}

func NewTransport() *Transport {
	return &Transport{subs: make(map[dining.Channel]dining.DeliveryFunc)}
}

func (t *Transport) Subscribe(_ context.Context, channel dining.Channel, deliver dining.DeliveryFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[channel] = deliver
	return nil
}

func (t *Transport) Unsubscribe(_ context.Context, channel dining.Channel) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, channel)
	return nil
}

// Publish drops the payload when nobody is subscribed, like a real broker.
func (t *Transport) Publish(ctx context.Context, channel dining.Channel, payload []byte) error {
	t.mu.RLock()
	deliver, ok := t.subs[channel]
	t.mu.RUnlock()
	if ok {
		deliver(ctx, payload)
	}
	return nil
}

// Subscribed reports whether channel currently has a subscriber.
func (t *Transport) Subscribed(channel dining.Channel) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.subs[channel]
	return ok
}

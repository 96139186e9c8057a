// Package pubsub implements the satellite Transport on Google Cloud Pub/Sub.
//
// All channels share one topic; the channel travels as a message attribute.
// Each Subscribe creates a dedicated subscription filtered on that attribute,
// and Unsubscribe deletes it again.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"google.golang.org/protobuf/types/known/durationpb"
)

// ChannelAttribute is the message attribute holding the destination channel.
const ChannelAttribute = "channel"

// Config names the shared topic and the prefix of per-channel subscriptions.
type Config struct {
	ProjectID          string
	TopicID            string
	SubscriptionPrefix string
	// SubscriptionTTL lets Pub/Sub reap subscriptions of crashed processes.
	SubscriptionTTL time.Duration
}

type Transport struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	cfg       Config
	logger    *slog.Logger

	mu   sync.Mutex
	subs map[dining.Channel]*subscription
}

type subscription struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTransport(client *pubsub.Client, cfg Config, logger *slog.Logger) *Transport {
	if cfg.SubscriptionPrefix == "" {
		cfg.SubscriptionPrefix = "satellite"
	}
	if cfg.SubscriptionTTL <= 0 {
		cfg.SubscriptionTTL = 24 * time.Hour
	}
	return &Transport{
		client:    client,
		publisher: client.Publisher(cfg.TopicID),
		cfg:       cfg,
		logger:    logger.With("component", "PubsubTransport"),
		subs:      make(map[dining.Channel]*subscription),
	}
}

func (t *Transport) Publish(ctx context.Context, channel dining.Channel, payload []byte) error {
	result := t.publisher.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{ChannelAttribute: string(channel)},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("pubsub publish to %s failed: %w", channel, err)
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, channel dining.Channel, deliver dining.DeliveryFunc) error {
	subID := fmt.Sprintf("%s-%s-%s", t.cfg.SubscriptionPrefix, channel, uuid.NewString()[:8])
	subConfig := &pubsubpb.Subscription{
		Name:               t.resource("subscriptions", subID),
		Topic:              t.resource("topics", t.cfg.TopicID),
		Filter:             fmt.Sprintf(`attributes.%s = "%s"`, ChannelAttribute, channel),
		AckDeadlineSeconds: 10,
		ExpirationPolicy: &pubsubpb.ExpirationPolicy{
			Ttl: durationpb.New(t.cfg.SubscriptionTTL),
		},
	}
	if _, err := t.client.SubscriptionAdminClient.CreateSubscription(ctx, subConfig); err != nil {
		return fmt.Errorf("could not create subscription for %s: %w", channel, err)
	}

	recvCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{id: subID, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		err := t.client.Subscriber(subID).Receive(recvCtx, func(ctx context.Context, msg *pubsub.Message) {
			msg.Ack()
			deliver(ctx, msg.Data)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Error("Subscription receive stopped", "sub", subID, "err", err)
		}
	}()

	t.mu.Lock()
	old := t.subs[channel]
	t.subs[channel] = sub
	t.mu.Unlock()

	if old != nil {
		if err := t.drop(ctx, old); err != nil {
			t.logger.Warn("Failed to drop replaced subscription", "sub", old.id, "err", err)
		}
	}
	t.logger.Debug("Subscribed", "channel", channel, "sub", subID)
	return nil
}

func (t *Transport) Unsubscribe(ctx context.Context, channel dining.Channel) error {
	t.mu.Lock()
	sub := t.subs[channel]
	delete(t.subs, channel)
	t.mu.Unlock()

	if sub == nil {
		return nil
	}
	return t.drop(ctx, sub)
}

// Close drops every subscription and flushes the publisher.
func (t *Transport) Close(ctx context.Context) error {
	t.mu.Lock()
	subs := t.subs
	t.subs = make(map[dining.Channel]*subscription)
	t.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		errs = append(errs, t.drop(ctx, sub))
	}
	t.publisher.Stop()
	return errors.Join(errs...)
}

func (t *Transport) drop(ctx context.Context, sub *subscription) error {
	sub.cancel()
	<-sub.done
	err := t.client.SubscriptionAdminClient.DeleteSubscription(ctx, &pubsubpb.DeleteSubscriptionRequest{
		Subscription: t.resource("subscriptions", sub.id),
	})
	if err != nil {
		return fmt.Errorf("could not delete subscription %s: %w", sub.id, err)
	}
	return nil
}

func (t *Transport) resource(kind, id string) string {
	return fmt.Sprintf("projects/%s/%s/%s", t.cfg.ProjectID, kind, id)
}

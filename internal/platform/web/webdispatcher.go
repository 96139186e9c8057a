// Package web delivers envelopes to browsers over VAPID Web Push.
package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Config carries the VAPID identity of the relay.
type Config struct {
	PublicKey       string
	PrivateKey      string
	SubscriberEmail string
	// TTL is in seconds. Zero means 60.
	TTL int
	// HTTPClient defaults to a plain client.
	HTTPClient *http.Client
}

type Dispatcher struct {
	subscriber string
	privateKey string
	publicKey  string
	ttl        int
	logger     *slog.Logger
	httpClient *http.Client
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 60
	}
	return &Dispatcher{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PublicKey,
		subscriber: cfg.SubscriberEmail,
		ttl:        ttl,
		logger:     logger.With("component", "WebPushDispatcher"),
		httpClient: client,
	}
}

// Dispatch encrypts one payload per subscription. Subscriptions the push
// service reports as gone (404/410) are returned for cleanup; other failures
// are logged and counted.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	subs []notification.WebPushSubscription,
	content notification.NotificationContent,
	data map[string]string,
) (string, []notification.WebPushSubscription, error) {
	if len(subs) == 0 {
		return "skipped: no subscriptions", nil, nil
	}

	payloadBytes, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": content.Title,
			"body":  content.Body,
			"tag":   data["channel"],
		},
		"data": data,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var invalidSubs []notification.WebPushSubscription
	successCount := 0
	failureCount := 0

	for _, sub := range subs {
		status, err := d.send(ctx, payloadBytes, sub)
		if err != nil {
			// DNS, timeout, bad keys: keep the subscription
			d.logger.Error("WebPush transport error", "endpoint", sub.Endpoint, "err", err)
			failureCount++
			continue
		}

		switch status {
		case http.StatusCreated, http.StatusOK:
			successCount++
		case http.StatusGone, http.StatusNotFound:
			invalidSubs = append(invalidSubs, sub)
			failureCount++
		default:
			d.logger.Warn("WebPush rejected", "status", status, "endpoint", sub.Endpoint)
			failureCount++
		}
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidSubs), failureCount)
	return receipt, invalidSubs, nil
}

func (d *Dispatcher) send(ctx context.Context, payload []byte, sub notification.WebPushSubscription) (int, error) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: base64.RawURLEncoding.EncodeToString(sub.Keys.P256dh),
			Auth:   base64.RawURLEncoding.EncodeToString(sub.Keys.Auth),
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
		Subscriber:      d.subscriber,
		VAPIDPublicKey:  d.publicKey,
		VAPIDPrivateKey: d.privateKey,
		TTL:             d.ttl,
		Urgency:         webpush.UrgencyHigh,
		HTTPClient:      d.httpClient,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

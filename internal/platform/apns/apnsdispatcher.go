// Package apns delivers envelopes to iOS devices over the Apple Push
// Notification Service.
package apns

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// APNSClient is the subset of *apns2.Client we use.
type APNSClient interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

type Dispatcher struct {
	client APNSClient
	topic  string // app bundle id
	ttl    time.Duration
	logger *slog.Logger
}

// Config holds the credentials required to sign APNs tokens.
type Config struct {
	KeyID    string
	TeamID   string
	BundleID string
	// P8KeyContent is the raw content of the .p8 file.
	P8KeyContent string
	// Sandbox targets the development gateway used by debug builds.
	Sandbox bool
	// TTL is how long APNs keeps trying an offline device. Zero means 1h.
	TTL time.Duration
}

// NewDispatcher parses the P8 key immediately so bad credentials fail at startup.
func NewDispatcher(cfg Config, logger *slog.Logger) (*Dispatcher, error) {
	authKey, err := token.AuthKeyFromBytes([]byte(cfg.P8KeyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return newDispatcher(client, cfg, logger), nil
}

func newDispatcher(client APNSClient, cfg Config, logger *slog.Logger) *Dispatcher {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Dispatcher{
		client: client,
		topic:  cfg.BundleID,
		ttl:    ttl,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// Dispatch pushes to each token in turn; the HTTP/2 API has no multicast.
// Dead tokens are returned for cleanup. Transport errors are logged and
// skipped unless every token failed that way, in which case the batch is
// retryable.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	tokens []string,
	content notification.NotificationContent,
	data map[string]string,
) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	var invalidTokens []string
	successCount := 0
	failureCount := 0
	transportFailures := 0

	builder := payload.NewPayload().
		AlertTitle(content.Title).
		AlertBody(content.Body).
		Sound(content.Sound).
		MutableContent()
	if channel := data["channel"]; channel != "" {
		builder.ThreadID(channel)
	}
	for k, v := range data {
		builder.Custom(k, v)
	}

	for _, deviceToken := range tokens {
		n := &apns2.Notification{
			DeviceToken: deviceToken,
			Topic:       d.topic,
			Payload:     builder,
			Priority:    apns2.PriorityHigh,
			PushType:    apns2.PushTypeAlert,
			Expiration:  time.Now().Add(d.ttl),
		}

		res, err := d.client.PushWithContext(ctx, n)
		if err != nil {
			d.logger.Error("APNs transport failed", "token", deviceToken, "err", err)
			failureCount++
			transportFailures++
			continue
		}

		if res.Sent() {
			successCount++
			continue
		}

		failureCount++
		switch res.Reason {
		case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
			invalidTokens = append(invalidTokens, deviceToken)
		default:
			// token may be fine; our configuration is not
			d.logger.Warn("APNs rejected notification", "reason", res.Reason, "status", res.StatusCode)
		}
	}

	if transportFailures == len(tokens) {
		return "", nil, fmt.Errorf("apns transport failed for all %d tokens", transportFailures)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d total_fail:%d", successCount, len(invalidTokens), failureCount)
	return receipt, invalidTokens, nil
}

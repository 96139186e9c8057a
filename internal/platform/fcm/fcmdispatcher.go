// Package fcm delivers envelopes to Android and Firebase-registered devices.
package fcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// maxMulticastTokens is the per-call token limit of SendEachForMulticast.
const maxMulticastTokens = 500

// MessagingClient is the subset of the Firebase Messaging API we use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

type Dispatcher struct {
	client MessagingClient
	logger *slog.Logger

	// error classifiers; swapped in tests since Firebase error types are internal
	rejected     func(error) bool
	invalidToken func(error) bool
}

func NewDispatcher(client MessagingClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:       client,
		logger:       logger.With("component", "FCMDispatcher"),
		rejected:     messaging.IsInvalidArgument,
		invalidToken: isInvalidToken,
	}
}

func isInvalidToken(err error) bool {
	return messaging.IsInvalidArgument(err) || messaging.IsRegistrationTokenNotRegistered(err)
}

// Dispatch sends content plus the envelope data to tokens in multicast
// batches. Every batch is attempted. Tokens FCM reports as unregistered or
// malformed are returned for cleanup on every path; a failed batch or any
// other per-token failure makes the whole call retryable.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error) {
	if len(tokens) == 0 {
		return "skipped: no tokens", nil, nil
	}

	var (
		invalidTokens   []string
		batchErrs       []error
		successCount    int
		rejectedBatches int
		retryableErrors int
	)

	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]

		br, err := d.client.SendEachForMulticast(ctx, d.message(batch, content, data))
		if err != nil {
			if d.rejected(err) {
				// retrying a rejected payload would loop forever
				d.logger.Error("FCM rejected batch as InvalidArgument (dropping)", "batch_start", start, "err", err)
				rejectedBatches++
				continue
			}
			d.logger.Warn("FCM batch failed", "batch_start", start, "size", len(batch), "err", err)
			batchErrs = append(batchErrs, err)
			continue
		}

		successCount += br.SuccessCount
		for idx, resp := range br.Responses {
			if resp.Success {
				continue
			}
			if d.invalidToken(resp.Error) {
				invalidTokens = append(invalidTokens, batch[idx])
				continue
			}
			retryableErrors++
		}
	}

	if len(batchErrs) > 0 {
		return "", invalidTokens, fmt.Errorf("fcm transport failed for %d batches: %w", len(batchErrs), errors.Join(batchErrs...))
	}
	if retryableErrors > 0 {
		return "", invalidTokens, fmt.Errorf("batch had %d retryable errors", retryableErrors)
	}

	receipt := fmt.Sprintf("success:%d invalid:%d rejected_batches:%d", successCount, len(invalidTokens), rejectedBatches)
	return receipt, invalidTokens, nil
}

func (d *Dispatcher) message(tokens []string, content notification.NotificationContent, data map[string]string) *messaging.MulticastMessage {
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: content.Sound,
			},
		},
		Webpush: &messaging.WebpushConfig{
			Notification: &messaging.WebpushNotification{
				Title: content.Title,
				Body:  content.Body,
				Icon:  "/assets/icons/icon-192x192.png",
			},
		},
	}
}

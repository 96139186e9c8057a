package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-dining-satellite/pkg/relay"
)

// Dispatchers bundles the per-platform senders. APNS may be nil when the
// relay runs without Apple credentials; APNs devices are then skipped.
type Dispatchers struct {
	FCM  relay.Dispatcher
	APNS relay.Dispatcher
	Web  relay.WebDispatcher
}

// NewProcessor creates the fan-out stage: look up every device on the
// envelope's channel and push the envelope to each platform bucket.
// Dead tokens reported by a platform are unregistered. A retryable failure on
// any platform is returned so the message is redelivered.
func NewProcessor(
	dispatchers Dispatchers,
	deviceStore relay.DeviceStore,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[dining.Envelope] {

	return func(ctx context.Context, original messagepipeline.Message, env *dining.Envelope) error {
		procLogger := logger.With(
			"channel", string(env.Channel),
			"action", env.Action.Short(),
			"pubsub_msg_id", original.ID,
		)

		devices, err := deviceStore.Fetch(ctx, env.Channel)
		if err != nil {
			procLogger.Error("Failed to fetch channel devices", "err", err)
			return err
		}
		if devices.Empty() {
			procLogger.Info("No devices subscribed to channel; dropping envelope.")
			return nil
		}

		content := ContentFor(env.Action)
		data := env.PushData()
		var errs []error

		if len(devices.FCMTokens) > 0 {
			receipt, invalid, err := dispatchers.FCM.Dispatch(ctx, devices.FCMTokens, content, data)
			heal(ctx, procLogger, "FCM", invalid, func(ctx context.Context, t string) error {
				return deviceStore.UnregisterFCM(ctx, env.Channel, t)
			})
			if err != nil {
				procLogger.Error("FCM dispatch failed", "err", err)
				errs = append(errs, err)
			} else {
				procLogger.Info("FCM dispatched", "receipt", receipt)
			}
		}

		if len(devices.APNSTokens) > 0 {
			if dispatchers.APNS == nil {
				procLogger.Warn("APNs devices present but APNs is not configured", "count", len(devices.APNSTokens))
			} else {
				receipt, invalid, err := dispatchers.APNS.Dispatch(ctx, devices.APNSTokens, content, data)
				heal(ctx, procLogger, "APNs", invalid, func(ctx context.Context, t string) error {
					return deviceStore.UnregisterAPNS(ctx, env.Channel, t)
				})
				if err != nil {
					procLogger.Error("APNs dispatch failed", "err", err)
					errs = append(errs, err)
				} else {
					procLogger.Info("APNs dispatched", "receipt", receipt)
				}
			}
		}

		if len(devices.WebSubscriptions) > 0 {
			receipt, invalidSubs, err := dispatchers.Web.Dispatch(ctx, devices.WebSubscriptions, content, data)
			endpoints := make([]string, 0, len(invalidSubs))
			for _, sub := range invalidSubs {
				endpoints = append(endpoints, sub.Endpoint)
			}
			heal(ctx, procLogger, "Web", endpoints, func(ctx context.Context, endpoint string) error {
				return deviceStore.UnregisterWeb(ctx, env.Channel, endpoint)
			})
			if err != nil {
				procLogger.Error("Web dispatch failed", "err", err)
				errs = append(errs, err)
			} else {
				procLogger.Info("Web dispatched", "receipt", receipt)
			}
		}

		return errors.Join(errs...)
	}
}

// heal unregisters devices a platform reported as permanently invalid.
func heal(ctx context.Context, logger *slog.Logger, platform string, keys []string, unregister func(context.Context, string) error) {
	if len(keys) == 0 {
		return
	}
	logger.Info("Cleaning up invalid devices", "platform", platform, "count", len(keys))
	for _, k := range keys {
		if err := unregister(ctx, k); err != nil {
			logger.Warn("Failed to delete invalid device", "platform", platform, "key", k, "err", err)
		}
	}
}

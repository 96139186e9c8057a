// Package relay holds the contracts of the push relay: the component that
// takes envelopes off the shared topic and delivers them to the devices
// subscribed to the envelope's channel.
package relay

import (
	"context"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// Dispatcher sends a notification to a batch of platform tokens (FCM, APNs).
// It returns a receipt for logging and the tokens the platform reported as
// permanently invalid. A non-nil error means the batch should be retried.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, content notification.NotificationContent, data map[string]string) (string, []string, error)
}

// WebDispatcher is the Web Push (VAPID) counterpart of Dispatcher.
type WebDispatcher interface {
	Dispatch(ctx context.Context, subs []notification.WebPushSubscription, content notification.NotificationContent, data map[string]string) (string, []notification.WebPushSubscription, error)
}

// Devices groups everything subscribed to one channel by delivery platform.
type Devices struct {
	Channel          dining.Channel                     `json:"channel"`
	FCMTokens        []string                           `json:"fcmTokens"`
	APNSTokens       []string                           `json:"apnsTokens"`
	WebSubscriptions []notification.WebPushSubscription `json:"webSubscriptions"`
}

// Empty reports whether no device of any platform is subscribed.
func (d *Devices) Empty() bool {
	return len(d.FCMTokens) == 0 && len(d.APNSTokens) == 0 && len(d.WebSubscriptions) == 0
}

// DeviceStore remembers which devices listen on which channel.
// Registrations are upserts keyed by token (or endpoint for Web Push).
type DeviceStore interface {
	RegisterFCM(ctx context.Context, channel dining.Channel, token string) error
	RegisterAPNS(ctx context.Context, channel dining.Channel, token string) error
	RegisterWeb(ctx context.Context, channel dining.Channel, sub notification.WebPushSubscription) error

	UnregisterFCM(ctx context.Context, channel dining.Channel, token string) error
	UnregisterAPNS(ctx context.Context, channel dining.Channel, token string) error
	UnregisterWeb(ctx context.Context, channel dining.Channel, endpoint string) error

	Fetch(ctx context.Context, channel dining.Channel) (*Devices, error)
}

package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-dining-satellite/pkg/relay"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
	"google.golang.org/api/iterator"
)

const (
	platformFCM  = "fcm"
	platformAPNS = "apns"
	platformWeb  = "web"
)

// DeviceStore implements relay.DeviceStore on Firestore under
// channels/{channel}/devices/{sha256(token)}.
type DeviceStore struct {
	client *firestore.Client
}

func NewDeviceStore(client *firestore.Client) *DeviceStore {
	return &DeviceStore{client: client}
}

// deviceRecord holds either a platform token or a full web subscription.
type deviceRecord struct {
	Platform        string                            `firestore:"platform"`
	Token           string                            `firestore:"token,omitempty"`
	WebSubscription *notification.WebPushSubscription `firestore:"web_subscription,omitempty"`
	UpdatedAt       time.Time                         `firestore:"updated_at"`
}

func (s *DeviceStore) RegisterFCM(ctx context.Context, channel dining.Channel, token string) error {
	return s.put(ctx, channel, token, deviceRecord{Platform: platformFCM, Token: token})
}

func (s *DeviceStore) RegisterAPNS(ctx context.Context, channel dining.Channel, token string) error {
	return s.put(ctx, channel, token, deviceRecord{Platform: platformAPNS, Token: token})
}

// RegisterWeb keys the record by endpoint, which is unique per browser install.
func (s *DeviceStore) RegisterWeb(ctx context.Context, channel dining.Channel, sub notification.WebPushSubscription) error {
	return s.put(ctx, channel, sub.Endpoint, deviceRecord{Platform: platformWeb, WebSubscription: &sub})
}

func (s *DeviceStore) UnregisterFCM(ctx context.Context, channel dining.Channel, token string) error {
	return s.remove(ctx, channel, token)
}

func (s *DeviceStore) UnregisterAPNS(ctx context.Context, channel dining.Channel, token string) error {
	return s.remove(ctx, channel, token)
}

func (s *DeviceStore) UnregisterWeb(ctx context.Context, channel dining.Channel, endpoint string) error {
	return s.remove(ctx, channel, endpoint)
}

// Fetch sorts every device on the channel into its platform bucket.
func (s *DeviceStore) Fetch(ctx context.Context, channel dining.Channel) (*relay.Devices, error) {
	iter := s.devices(channel).Documents(ctx)
	defer iter.Stop()

	devices := &relay.Devices{
		Channel:          channel,
		FCMTokens:        make([]string, 0),
		APNSTokens:       make([]string, 0),
		WebSubscriptions: make([]notification.WebPushSubscription, 0),
	}

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil {
			// skip corrupt rows
			continue
		}

		switch {
		case record.Platform == platformWeb && record.WebSubscription != nil:
			devices.WebSubscriptions = append(devices.WebSubscriptions, *record.WebSubscription)
		case record.Platform == platformAPNS && record.Token != "":
			devices.APNSTokens = append(devices.APNSTokens, record.Token)
		case record.Token != "":
			devices.FCMTokens = append(devices.FCMTokens, record.Token)
		}
	}

	return devices, nil
}

func (s *DeviceStore) put(ctx context.Context, channel dining.Channel, key string, record deviceRecord) error {
	if channel == "" || key == "" {
		return fmt.Errorf("%w: channel and token are required", dining.ErrInvalidArgument)
	}
	record.UpdatedAt = time.Now()
	if _, err := s.devices(channel).Doc(hashKey(key)).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to store %s device on %s: %w", record.Platform, channel, err)
	}
	return nil
}

func (s *DeviceStore) remove(ctx context.Context, channel dining.Channel, key string) error {
	_, err := s.devices(channel).Doc(hashKey(key)).Delete(ctx)
	return err
}

func (s *DeviceStore) devices(channel dining.Channel) *firestore.CollectionRef {
	return s.client.Collection("channels").Doc(string(channel)).Collection("devices")
}

// hashKey gives tokens a fixed-length document id and avoids hot-spotting.
func hashKey(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}

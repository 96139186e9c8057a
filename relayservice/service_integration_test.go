//go:build integration

package relayservice_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-dining-satellite/internal/pipeline"
	fsStore "github.com/tinywideclouds/go-dining-satellite/internal/storage/firestore"
	pubsubtransport "github.com/tinywideclouds/go-dining-satellite/internal/transport/pubsub"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-dining-satellite/relayservice"
	"github.com/tinywideclouds/go-dining-satellite/relayservice/config"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
	"google.golang.org/protobuf/types/known/durationpb"
)

// --- Mocks ---

type mockDispatcher struct {
	mu         sync.Mutex
	callCount  int
	lastTokens []string
	lastData   map[string]string
}

func (m *mockDispatcher) Dispatch(_ context.Context, tokens []string, _ notification.NotificationContent, data map[string]string) (string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	m.lastTokens = tokens
	m.lastData = data
	return "success", nil, nil
}

func (m *mockDispatcher) snapshot() (int, []string, map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount, m.lastTokens, m.lastData
}

type mockWebDispatcher struct{}

func (m *mockWebDispatcher) Dispatch(context.Context, []notification.WebPushSubscription, notification.NotificationContent, map[string]string) (string, []notification.WebPushSubscription, error) {
	return "web-success", nil, nil
}

func noopAuth(h http.Handler) http.Handler { return h }

// --- Tests ---

func TestRelayService_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	projectID := "test-relay-integ"

	pubsubConn := emulators.SetupPubsubEmulator(t, ctx, emulators.GetDefaultPubsubConfig(projectID))
	psClient, err := pubsub.NewClient(ctx, projectID, pubsubConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = psClient.Close() })

	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig(projectID))
	fsClient, err := firestore.NewClient(ctx, projectID, fsConn.ClientOptions...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fsClient.Close() })

	deviceStore := fsStore.NewDeviceStore(fsClient)

	t.Run("Subscribe device -> satellite publishes -> relay dispatches", func(t *testing.T) {
		topicID := "envelopes-" + uuid.NewString()
		subID := topicID + "-relay"
		createPubsubResources(t, ctx, psClient, projectID, topicID, subID, nil)

		fcmDispatcher := &mockDispatcher{}
		consumer, err := messagepipeline.NewGooglePubsubConsumer(messagepipeline.NewGooglePubsubConsumerDefaults(subID), psClient, logger)
		require.NoError(t, err)

		svc, err := relayservice.New(
			&config.Config{ListenAddr: ":0", NumPipelineWorkers: 2},
			consumer,
			pipeline.Dispatchers{FCM: fcmDispatcher, Web: &mockWebDispatcher{}},
			deviceStore,
			noopAuth,
			logger,
		)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() { _ = svc.Start(svcCtx) }()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		channel, err := dining.ChannelFor(&dining.RestaurantInfo{ObjectID: "r-" + uuid.NewString()})
		require.NoError(t, err)
		require.NoError(t, deviceStore.RegisterFCM(ctx, channel, "android-token-999"))

		// publish exactly as a satellite on the Pub/Sub transport would
		transport := pubsubtransport.NewTransport(psClient, pubsubtransport.Config{ProjectID: projectID, TopicID: topicID}, logger)
		t.Cleanup(func() { _ = transport.Close(context.Background()) })
		env, err := dining.NewEnvelope(channel, dining.ActionOrderPlaced, map[string]string{dining.AttrObjectID: "ds-1"}, "dineon_user_u1")
		require.NoError(t, err)
		payload, err := env.Encode()
		require.NoError(t, err)
		require.NoError(t, transport.Publish(ctx, channel, payload))

		require.Eventually(t, func() bool {
			count, _, _ := fcmDispatcher.snapshot()
			return count == 1
		}, 15*time.Second, 100*time.Millisecond)

		_, tokens, data := fcmDispatcher.snapshot()
		assert.Equal(t, []string{"android-token-999"}, tokens)
		assert.Equal(t, string(channel), data["channel"])
		assert.Equal(t, "dineon_user_u1", data["sender"])
		assert.JSONEq(t, `{"objId":"ds-1"}`, data["data"])
	})

	t.Run("Poison pill lands on the DLQ", func(t *testing.T) {
		runID := uuid.NewString()
		mainTopicID := "relay-main-" + runID
		dlqTopicID := "relay-dlq-" + runID
		mainSubID := mainTopicID + "-sub"
		dlqSubID := dlqTopicID + "-sub"

		createPubsubResources(t, ctx, psClient, projectID, dlqTopicID, dlqSubID, nil)
		createPubsubResources(t, ctx, psClient, projectID, mainTopicID, mainSubID, &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     fmt.Sprintf("projects/%s/topics/%s", projectID, dlqTopicID),
			MaxDeliveryAttempts: 5,
		})

		fcmDispatcher := &mockDispatcher{}
		consumer, err := messagepipeline.NewGooglePubsubConsumer(messagepipeline.NewGooglePubsubConsumerDefaults(mainSubID), psClient, logger)
		require.NoError(t, err)

		svc, err := relayservice.New(
			&config.Config{ListenAddr: ":0", NumPipelineWorkers: 2},
			consumer,
			pipeline.Dispatchers{FCM: fcmDispatcher, Web: &mockWebDispatcher{}},
			deviceStore,
			noopAuth,
			logger,
		)
		require.NoError(t, err)

		svcCtx, svcCancel := context.WithCancel(ctx)
		defer svcCancel()
		go func() {
			if err := svc.Start(svcCtx); err != nil && !errors.Is(err, context.Canceled) {
				t.Logf("service.Start() returned an error: %v", err)
			}
		}()
		t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })

		// routable JSON, but no channel
		poisonPayload := []byte(`{"action":"dineon.action.CHECK_OUT","data":"{}"}`)
		_, err = psClient.Publisher(mainTopicID).Publish(ctx, &pubsub.Message{Data: poisonPayload}).Get(ctx)
		require.NoError(t, err)

		var receivedMsg *pubsub.Message
		rctx, rcancel := context.WithTimeout(ctx, 25*time.Second)
		defer rcancel()
		err = psClient.Subscriber(dlqSubID).Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			receivedMsg = msg
			rcancel()
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("DLQ receive failed: %v", err)
		}

		require.NotNil(t, receivedMsg, "Did not receive message on the DLQ subscription")
		assert.Equal(t, poisonPayload, receivedMsg.Data)
		count, _, _ := fcmDispatcher.snapshot()
		assert.Equal(t, 0, count, "Dispatcher should not be called for a poison pill message")
	})
}

func createPubsubResources(t *testing.T, ctx context.Context, client *pubsub.Client, projectID, topicID, subID string, dlq *pubsubpb.DeadLetterPolicy) {
	t.Helper()
	topicName := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	_, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topicName})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.TopicAdminClient.DeleteTopic(context.Background(), &pubsubpb.DeleteTopicRequest{Topic: topicName})
	})

	subName := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subID)
	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:               subName,
		Topic:              topicName,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy:   dlq,
		RetryPolicy: &pubsubpb.RetryPolicy{
			MinimumBackoff: &durationpb.Duration{Seconds: 1},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.SubscriptionAdminClient.DeleteSubscription(context.Background(), &pubsubpb.DeleteSubscriptionRequest{Subscription: subName})
	})
}

package fcm_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-dining-satellite/internal/platform/fcm"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

type MockClient struct {
	mock.Mock
}

func (m *MockClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allSuccess(n int) *messaging.BatchResponse {
	br := &messaging.BatchResponse{SuccessCount: n}
	for i := 0; i < n; i++ {
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true, MessageID: fmt.Sprintf("msg-%d", i)})
	}
	return br
}

func TestFCMDispatch_Lifecycle(t *testing.T) {
	logger := newTestLogger()
	ctx := context.Background()
	content := notification.NotificationContent{Title: "Order placed", Body: "Table 4"}
	data := map[string]string{"channel": "dineon_restaurant_r1", "action": "dineon.action.ORDER_PLACED"}

	t.Run("Happy Path - envelope travels as data, never collapsed", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := []string{"token-1", "token-2"}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return msg.Data["action"] == "dineon.action.ORDER_PLACED" &&
				msg.Android.CollapseKey == "" &&
				msg.Notification.Title == "Order placed"
		})).Return(allSuccess(2), nil)

		receipt, invalid, err := dispatcher.Dispatch(ctx, tokens, content, data)

		require.NoError(t, err)
		assert.Empty(t, invalid)
		assert.Contains(t, receipt, "success:2")
		mockClient.AssertExpectations(t)
	})

	t.Run("Large fan-out is split into multicast batches", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)
		tokens := make([]string, 750)
		for i := range tokens {
			tokens[i] = fmt.Sprintf("token-%d", i)
		}

		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return len(msg.Tokens) == 500
		})).Return(allSuccess(500), nil).Once()
		mockClient.On("SendEachForMulticast", ctx, mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
			return len(msg.Tokens) == 250
		})).Return(allSuccess(250), nil).Once()

		receipt, _, err := dispatcher.Dispatch(ctx, tokens, content, data)

		require.NoError(t, err)
		assert.Contains(t, receipt, "success:750")
		mockClient.AssertExpectations(t)
	})

	t.Run("No tokens is a no-op", func(t *testing.T) {
		mockClient := new(MockClient)
		receipt, invalid, err := fcm.NewDispatcher(mockClient, logger).Dispatch(ctx, nil, content, data)
		require.NoError(t, err)
		assert.Nil(t, invalid)
		assert.Contains(t, receipt, "skipped")
		mockClient.AssertNotCalled(t, "SendEachForMulticast", mock.Anything, mock.Anything)
	})

	t.Run("Per-token failure is retryable", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(&messaging.BatchResponse{
			FailureCount: 1,
			Responses:    []*messaging.SendResponse{{Success: false, Error: errors.New("unavailable")}},
		}, nil)

		_, _, err := dispatcher.Dispatch(ctx, []string{"token-1"}, content, data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "retryable")
	})

	t.Run("Transport Failure (Retryable)", func(t *testing.T) {
		mockClient := new(MockClient)
		dispatcher := fcm.NewDispatcher(mockClient, logger)

		mockClient.On("SendEachForMulticast", ctx, mock.Anything).Return(nil, errors.New("network down"))

		_, _, err := dispatcher.Dispatch(ctx, []string{"token-1"}, content, data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
	})

	// Classification of IsRegistrationTokenNotRegistered relies on internal
	// Firebase SDK error types and is not mocked here.
}

package fcm

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
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

var (
	errRejected     = errors.New("invalid payload")
	errUnregistered = errors.New("token not registered")
)

type batchClient struct {
	mock.Mock
}

func (m *batchClient) SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.BatchResponse), args.Error(1)
}

// newTestDispatcher classifies by sentinel errors instead of Firebase's
// internal error codes.
func newTestDispatcher(client MessagingClient) *Dispatcher {
	d := NewDispatcher(client, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.rejected = func(err error) bool { return errors.Is(err, errRejected) }
	d.invalidToken = func(err error) bool { return errors.Is(err, errUnregistered) }
	return d
}

func tokenRange(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}

// firstTokenUnregistered answers a batch with every token delivered except
// the first, which is reported as unregistered.
func firstTokenUnregistered(n int) *messaging.BatchResponse {
	br := &messaging.BatchResponse{SuccessCount: n - 1, FailureCount: 1}
	br.Responses = append(br.Responses, &messaging.SendResponse{Error: errUnregistered})
	for i := 1; i < n; i++ {
		br.Responses = append(br.Responses, &messaging.SendResponse{Success: true})
	}
	return br
}

func firstToken(token string) any {
	return mock.MatchedBy(func(msg *messaging.MulticastMessage) bool {
		return len(msg.Tokens) > 0 && msg.Tokens[0] == token
	})
}

func TestDispatch_BatchFailures(t *testing.T) {
	ctx := context.Background()
	content := notification.NotificationContent{Title: "t"}
	data := map[string]string{"channel": "dineon_user_u1"}

	tokens := append(tokenRange("a", maxMulticastTokens), tokenRange("b", maxMulticastTokens)...)
	tokens = append(tokens, tokenRange("c", 10)...)

	t.Run("Failed later batch keeps earlier invalid tokens", func(t *testing.T) {
		client := new(batchClient)
		client.On("SendEachForMulticast", ctx, firstToken(tokens[0])).Return(firstTokenUnregistered(maxMulticastTokens), nil).Once()
		client.On("SendEachForMulticast", ctx, firstToken(tokens[maxMulticastTokens])).Return(nil, errors.New("network down")).Once()
		client.On("SendEachForMulticast", ctx, firstToken(tokens[2*maxMulticastTokens])).Return(firstTokenUnregistered(10), nil).Once()

		_, invalid, err := newTestDispatcher(client).Dispatch(ctx, tokens, content, data)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "transport failed")
		assert.Equal(t, []string{tokens[0], tokens[2*maxMulticastTokens]}, invalid)
		client.AssertExpectations(t)
	})

	t.Run("Rejected batch does not stop the remaining batches", func(t *testing.T) {
		client := new(batchClient)
		client.On("SendEachForMulticast", ctx, firstToken(tokens[0])).Return(nil, errRejected).Once()
		client.On("SendEachForMulticast", ctx, firstToken(tokens[maxMulticastTokens])).Return(firstTokenUnregistered(maxMulticastTokens), nil).Once()
		client.On("SendEachForMulticast", ctx, firstToken(tokens[2*maxMulticastTokens])).Return(firstTokenUnregistered(10), nil).Once()

		receipt, invalid, err := newTestDispatcher(client).Dispatch(ctx, tokens, content, data)

		require.NoError(t, err)
		assert.Contains(t, receipt, "rejected_batches:1")
		assert.Equal(t, []string{tokens[maxMulticastTokens], tokens[2*maxMulticastTokens]}, invalid)
		client.AssertExpectations(t)
	})
}

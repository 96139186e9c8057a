package web_test

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-dining-satellite/internal/platform/web"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// browserSub builds a subscription with real P-256 keys so payload
// encryption succeeds against the fake push service.
func browserSub(t *testing.T, endpoint string) notification.WebPushSubscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	sub := notification.WebPushSubscription{Endpoint: endpoint}
	sub.Keys.P256dh = key.PublicKey().Bytes()
	sub.Keys.Auth = auth
	return sub
}

func TestDispatch_Lifecycle(t *testing.T) {
	var hits atomic.Int32
	pushService := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		assert.Equal(t, "aes128gcm", r.Header.Get("Content-Encoding"))

		switch r.URL.Path {
		case "/success":
			w.WriteHeader(http.StatusCreated)
		case "/expired":
			w.WriteHeader(http.StatusGone)
		case "/error":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer pushService.Close()

	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	dispatcher := web.NewDispatcher(web.Config{
		PrivateKey:      privateKey,
		PublicKey:       publicKey,
		SubscriberEmail: "ops@dineon.example",
		HTTPClient:      pushService.Client(),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx := context.Background()
	content := notification.NotificationContent{Title: "Session confirmed", Body: "Enjoy your meal"}
	data := map[string]string{"channel": "dineon_user_u1", "action": "dineon.action.CONFIRM_DINING_SESSION"}

	validSub := browserSub(t, pushService.URL+"/success")
	expiredSub := browserSub(t, pushService.URL+"/expired")
	brokenSub := browserSub(t, pushService.URL+"/error")

	receipt, invalid, err := dispatcher.Dispatch(ctx, []notification.WebPushSubscription{validSub, expiredSub, brokenSub}, content, data)

	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
	assert.Contains(t, receipt, "success:1")
	assert.Contains(t, receipt, "invalid:1")
	assert.Contains(t, receipt, "total_fail:2")
	require.Len(t, invalid, 1)
	assert.Equal(t, expiredSub.Endpoint, invalid[0].Endpoint)
}

func TestDispatch_NoSubscriptions(t *testing.T) {
	dispatcher := web.NewDispatcher(web.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	receipt, invalid, err := dispatcher.Dispatch(context.Background(), nil, notification.NotificationContent{}, nil)
	require.NoError(t, err)
	assert.Nil(t, invalid)
	assert.Contains(t, receipt, "skipped")
}

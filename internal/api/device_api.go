// Package api exposes the relay's HTTP endpoints through which devices
// subscribe to and unsubscribe from dining channels.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-dining-satellite/pkg/relay"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

type DeviceAPI struct {
	Store  relay.DeviceStore
	Logger *slog.Logger
}

func NewDeviceAPI(store relay.DeviceStore, logger *slog.Logger) *DeviceAPI {
	return &DeviceAPI{
		Store:  store,
		Logger: logger.With("component", "DeviceAPI"),
	}
}

// TokenRequest subscribes or unsubscribes an FCM or APNs token.
type TokenRequest struct {
	Channel dining.Channel `json:"channel"`
	Token   string         `json:"token"`
}

// WebSubscribeRequest carries the browser's full push subscription.
type WebSubscribeRequest struct {
	Channel      dining.Channel                   `json:"channel"`
	Subscription notification.WebPushSubscription `json:"subscription"`
}

// WebUnsubscribeRequest identifies a browser by endpoint alone.
type WebUnsubscribeRequest struct {
	Channel  dining.Channel `json:"channel"`
	Endpoint string         `json:"endpoint"`
}

// Routes mounts the endpoints on mux behind the given middleware.
func (api *DeviceAPI) Routes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/subscribe/fcm", wrap(http.HandlerFunc(api.SubscribeFCM)))
	mux.Handle("POST /api/v1/subscribe/apns", wrap(http.HandlerFunc(api.SubscribeAPNS)))
	mux.Handle("POST /api/v1/subscribe/web", wrap(http.HandlerFunc(api.SubscribeWeb)))
	mux.Handle("POST /api/v1/unsubscribe/fcm", wrap(http.HandlerFunc(api.UnsubscribeFCM)))
	mux.Handle("POST /api/v1/unsubscribe/apns", wrap(http.HandlerFunc(api.UnsubscribeAPNS)))
	mux.Handle("POST /api/v1/unsubscribe/web", wrap(http.HandlerFunc(api.UnsubscribeWeb)))
}

// --- Mobile (FCM / APNs) ---

func (api *DeviceAPI) SubscribeFCM(w http.ResponseWriter, r *http.Request) {
	api.subscribeToken(w, r, "fcm", api.Store.RegisterFCM)
}

func (api *DeviceAPI) SubscribeAPNS(w http.ResponseWriter, r *http.Request) {
	api.subscribeToken(w, r, "apns", api.Store.RegisterAPNS)
}

func (api *DeviceAPI) UnsubscribeFCM(w http.ResponseWriter, r *http.Request) {
	api.unsubscribeToken(w, r, "fcm", api.Store.UnregisterFCM)
}

func (api *DeviceAPI) UnsubscribeAPNS(w http.ResponseWriter, r *http.Request) {
	api.unsubscribeToken(w, r, "apns", api.Store.UnregisterAPNS)
}

type tokenOp func(ctx context.Context, channel dining.Channel, token string) error

func (api *DeviceAPI) subscribeToken(w http.ResponseWriter, r *http.Request, platform string, register tokenOp) {
	caller, ok := api.authenticate(w, r)
	if !ok {
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !api.authorize(w, caller, req.Channel) {
		return
	}
	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := register(r.Context(), req.Channel, req.Token); err != nil {
		api.Logger.Error("failed to subscribe device", "platform", platform, "channel", req.Channel, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Device subscribed", "platform", platform, "user", caller.handle, "channel", req.Channel)
	w.WriteHeader(http.StatusNoContent)
}

func (api *DeviceAPI) unsubscribeToken(w http.ResponseWriter, r *http.Request, platform string, unregister tokenOp) {
	caller, ok := api.authenticate(w, r)
	if !ok {
		return
	}

	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !api.authorize(w, caller, req.Channel) {
		return
	}

	if err := unregister(r.Context(), req.Channel, req.Token); err != nil {
		// unregister is idempotent from the device's point of view
		api.Logger.Warn("failed to unsubscribe device", "platform", platform, "channel", req.Channel, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Web (VAPID) ---

func (api *DeviceAPI) SubscribeWeb(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.authenticate(w, r)
	if !ok {
		return
	}

	var req WebSubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Logger.Error("SubscribeWeb: JSON decode failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid subscription json")
		return
	}
	if !api.authorize(w, caller, req.Channel) {
		return
	}
	sub := req.Subscription
	if sub.Endpoint == "" || len(sub.Keys.P256dh) == 0 || len(sub.Keys.Auth) == 0 {
		api.Logger.Warn("SubscribeWeb: validation failed", "reason", "missing fields")
		response.WriteJSONError(w, http.StatusBadRequest, "incomplete subscription object")
		return
	}

	if err := api.Store.RegisterWeb(r.Context(), req.Channel, sub); err != nil {
		api.Logger.Error("failed to subscribe web", "channel", req.Channel, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("Device subscribed", "platform", "web", "user", caller.handle, "channel", req.Channel, "endpoint", sub.Endpoint)
	w.WriteHeader(http.StatusNoContent)
}

func (api *DeviceAPI) UnsubscribeWeb(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.authenticate(w, r)
	if !ok {
		return
	}

	var req WebUnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !api.authorize(w, caller, req.Channel) {
		return
	}
	if req.Endpoint == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing endpoint")
		return
	}

	if err := api.Store.UnregisterWeb(r.Context(), req.Channel, req.Endpoint); err != nil {
		api.Logger.Warn("failed to unsubscribe web", "channel", req.Channel, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "failed to unsubscribe web")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// principal is the authenticated caller and the one channel it may manage.
type principal struct {
	handle string
	// channel is empty when the principal owns no dining channel.
	channel dining.Channel
}

// authenticate resolves the caller set by the auth middleware.
func (api *DeviceAPI) authenticate(w http.ResponseWriter, r *http.Request) (principal, bool) {
	handle, ok := middleware.GetUserHandleFromContext(r.Context())
	if !ok || handle == "" {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return principal{}, false
	}
	c := principal{handle: handle}
	if u, err := urn.Parse(handle); err == nil {
		c.handle = u.String()
	}
	if own, err := OwnChannel(handle); err == nil {
		c.channel = own
	} else {
		api.Logger.Debug("Caller owns no dining channel", "user", c.handle, "err", err)
	}
	return c, true
}

// authorize rejects malformed channels with 400 and channels the caller does
// not own with 403.
func (api *DeviceAPI) authorize(w http.ResponseWriter, c principal, channel dining.Channel) bool {
	if err := channel.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid channel")
		return false
	}
	if c.channel == "" || c.channel != channel {
		api.Logger.Warn("Caller tried to manage a foreign channel", "user", c.handle, "channel", channel)
		response.WriteJSONError(w, http.StatusForbidden, "channel not owned by caller")
		return false
	}
	return true
}

// OwnChannel maps an auth handle to the dining channel it owns. Handles of the
// form urn:<namespace>:user:<id> and urn:<namespace>:restaurant:<id> own the
// matching user or restaurant channel; any other URN owns none. A bare handle
// is a user id.
func OwnChannel(handle string) (dining.Channel, error) {
	rest, isURN := strings.CutPrefix(handle, "urn:")
	if !isURN {
		return dining.ChannelFor(&dining.UserInfo{ObjectID: handle})
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed urn %q", dining.ErrInvalidArgument, handle)
	}
	switch kind, id := dining.IdentityKind(parts[1]), parts[2]; kind {
	case dining.KindUser:
		return dining.ChannelFor(&dining.UserInfo{ObjectID: id})
	case dining.KindRestaurant:
		return dining.ChannelFor(&dining.RestaurantInfo{ObjectID: id})
	default:
		return "", fmt.Errorf("%w: %q entities own no dining channel", dining.ErrInvalidArgument, kind)
	}
}

// Package satellite provides the customer-side and restaurant-side endpoints
// of a dining session's notification stream.
//
// A satellite is registered with the identity of the app's current user or
// restaurant and a listener implemented by the foreground screen. Inbound
// notifications are routed to the listener after the referenced object has
// been fetched; outbound helpers publish notifications to the other side.
// Outbound helpers never save: persist the referenced object first.
package satellite

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-dining-satellite/internal/router"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// Options tunes a satellite.
type Options struct {
	// FetchTimeout bounds each object fetch triggered by a notification.
	FetchTimeout time.Duration
}

// UserListener receives the callbacks of a customer-side satellite.
type UserListener interface {
	// OnFailure reports a malformed notification or a failed fetch.
	OnFailure(message string)
	// OnInitialDiningSessionReceived is called when a restaurant confirms a check-in.
	OnInitialDiningSessionReceived(session *dining.DiningSession)
	// OnRestaurantInfoChanged is called when the associated restaurant changed its profile.
	OnRestaurantInfoChanged(info *dining.RestaurantInfo)
}

func userRoutes() map[dining.Action]router.Route[UserListener] {
	return map[dining.Action]router.Route[UserListener]{
		dining.ActionConfirmSession: router.FetchAndDeliver(dining.KindDiningSession,
			func(l UserListener, s *dining.DiningSession) { l.OnInitialDiningSessionReceived(s) }),
		dining.ActionRestaurantInfoChanged: router.FetchAndDeliver(dining.KindRestaurantInfo,
			func(l UserListener, r *dining.RestaurantInfo) { l.OnRestaurantInfoChanged(r) }),
	}
}

// UserSatellite is the customer app's endpoint.
type UserSatellite struct {
	router *router.Router[UserListener]
}

// NewUserSatellite creates an unregistered customer-side satellite.
func NewUserSatellite(transport dining.Transport, store dining.ObjectStore, opts Options, logger *slog.Logger) *UserSatellite {
	return &UserSatellite{
		router: router.New[UserListener](
			router.Config{FetchTimeout: opts.FetchTimeout},
			transport, store, userRoutes(),
			logger.With("satellite", "user"),
		),
	}
}

// Register starts listening on the user's channel. A nil listener is ignored.
func (s *UserSatellite) Register(ctx context.Context, user *dining.UserInfo, listener UserListener) error {
	return s.router.Register(ctx, user, listener)
}

// Unregister stops listening. Safe to call when not registered.
func (s *UserSatellite) Unregister(ctx context.Context) error {
	return s.router.Unregister(ctx)
}

// Channel returns the channel the satellite is bound to, if any.
func (s *UserSatellite) Channel() (dining.Channel, bool) {
	return s.router.Channel()
}

// Wait blocks until in-flight fetches have completed.
func (s *UserSatellite) Wait() {
	s.router.Wait()
}

// RequestCheckIn asks restaurant to open a dining session for user at table.
func (s *UserSatellite) RequestCheckIn(ctx context.Context, user *dining.UserInfo, table int, restaurant *dining.RestaurantInfo) error {
	if user == nil || user.ObjectID == "" {
		return fmt.Errorf("%w: check-in requires a saved user", dining.ErrInvalidArgument)
	}
	attrs := map[string]string{
		dining.AttrObjectID:    user.ObjectID,
		dining.AttrTableNumber: strconv.Itoa(table),
	}
	return s.router.Notify(ctx, dining.ActionRequestDiningSession, attrs, restaurant)
}

// NotifyOrderPlaced tells restaurant that session has a new order.
func (s *UserSatellite) NotifyOrderPlaced(ctx context.Context, session *dining.DiningSession, restaurant *dining.RestaurantInfo) error {
	return s.notifySession(ctx, dining.ActionOrderPlaced, session, restaurant)
}

// NotifyCustomerRequest tells restaurant that session has a new customer request.
func (s *UserSatellite) NotifyCustomerRequest(ctx context.Context, session *dining.DiningSession, restaurant *dining.RestaurantInfo) error {
	return s.notifySession(ctx, dining.ActionCustomerRequest, session, restaurant)
}

// NotifyCheckOut tells restaurant that session has been checked out.
func (s *UserSatellite) NotifyCheckOut(ctx context.Context, session *dining.DiningSession, restaurant *dining.RestaurantInfo) error {
	return s.notifySession(ctx, dining.ActionCheckOut, session, restaurant)
}

// NotifyChangeUserInfo tells restaurant that user changed their profile.
func (s *UserSatellite) NotifyChangeUserInfo(ctx context.Context, user *dining.UserInfo, restaurant *dining.RestaurantInfo) error {
	if user == nil {
		return fmt.Errorf("%w: user is nil", dining.ErrInvalidArgument)
	}
	return notifyByID(ctx, s.router, dining.ActionChangeUserInfo, user.ObjectID, restaurant)
}

func (s *UserSatellite) notifySession(ctx context.Context, action dining.Action, session *dining.DiningSession, restaurant *dining.RestaurantInfo) error {
	if session == nil {
		return fmt.Errorf("%w: dining session is nil", dining.ErrInvalidArgument)
	}
	return notifyByID(ctx, s.router, action, session.ObjectID, restaurant)
}

func notifyByID[L router.FailureListener](ctx context.Context, r *router.Router[L], action dining.Action, id string, target dining.Identity) error {
	if id == "" {
		return fmt.Errorf("%w: object id is empty", dining.ErrInvalidArgument)
	}
	return r.Notify(ctx, action, map[string]string{dining.AttrObjectID: id}, target)
}

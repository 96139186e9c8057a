package satellite

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/tinywideclouds/go-dining-satellite/internal/router"
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// RestaurantListener receives the callbacks of a restaurant-side satellite.
type RestaurantListener interface {
	OnFailure(message string)
	OnCheckInRequested(user *dining.UserInfo, table int)
	OnOrderPlaced(session *dining.DiningSession)
	OnCustomerRequest(session *dining.DiningSession)
	OnCheckedOut(session *dining.DiningSession)
	OnUserInfoChanged(user *dining.UserInfo)
}

func restaurantRoutes() map[dining.Action]router.Route[RestaurantListener] {
	return map[dining.Action]router.Route[RestaurantListener]{
		dining.ActionRequestDiningSession: checkInRoute,
		dining.ActionOrderPlaced: router.FetchAndDeliver(dining.KindDiningSession,
			func(l RestaurantListener, s *dining.DiningSession) { l.OnOrderPlaced(s) }),
		dining.ActionCustomerRequest: router.FetchAndDeliver(dining.KindDiningSession,
			func(l RestaurantListener, s *dining.DiningSession) { l.OnCustomerRequest(s) }),
		dining.ActionCheckOut: router.FetchAndDeliver(dining.KindDiningSession,
			func(l RestaurantListener, s *dining.DiningSession) { l.OnCheckedOut(s) }),
		dining.ActionChangeUserInfo: router.FetchAndDeliver(dining.KindUserInfo,
			func(l RestaurantListener, u *dining.UserInfo) { l.OnUserInfoChanged(u) }),
	}
}

// checkInRoute validates the table number before fetching the requesting user.
func checkInRoute(ctx context.Context, store dining.ObjectStore, env *dining.Envelope, userID string) (router.Delivery[RestaurantListener], error) {
	raw, err := env.Attribute(dining.AttrTableNumber)
	if err != nil {
		return nil, err
	}
	table, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: table number %q is not an integer", dining.ErrMalformedEnvelope, raw)
	}
	user, err := router.Fetch[dining.UserInfo](ctx, store, dining.KindUserInfo, userID)
	if err != nil {
		return nil, err
	}
	return func(l RestaurantListener) { l.OnCheckInRequested(user, table) }, nil
}

// RestaurantSatellite is the restaurant app's endpoint.
type RestaurantSatellite struct {
	router *router.Router[RestaurantListener]
}

// NewRestaurantSatellite creates an unregistered restaurant-side satellite.
func NewRestaurantSatellite(transport dining.Transport, store dining.ObjectStore, opts Options, logger *slog.Logger) *RestaurantSatellite {
	return &RestaurantSatellite{
		router: router.New[RestaurantListener](
			router.Config{FetchTimeout: opts.FetchTimeout},
			transport, store, restaurantRoutes(),
			logger.With("satellite", "restaurant"),
		),
	}
}

// Register starts listening on the restaurant's channel. A nil listener is ignored.
func (s *RestaurantSatellite) Register(ctx context.Context, restaurant *dining.RestaurantInfo, listener RestaurantListener) error {
	return s.router.Register(ctx, restaurant, listener)
}

// Unregister stops listening. Safe to call when not registered.
func (s *RestaurantSatellite) Unregister(ctx context.Context) error {
	return s.router.Unregister(ctx)
}

func (s *RestaurantSatellite) Channel() (dining.Channel, bool) {
	return s.router.Channel()
}

func (s *RestaurantSatellite) Wait() {
	s.router.Wait()
}

// ConfirmDiningSession hands the saved session to the customer who checked in.
func (s *RestaurantSatellite) ConfirmDiningSession(ctx context.Context, session *dining.DiningSession, user *dining.UserInfo) error {
	if session == nil {
		return fmt.Errorf("%w: dining session is nil", dining.ErrInvalidArgument)
	}
	return notifyByID(ctx, s.router, dining.ActionConfirmSession, session.ObjectID, user)
}

// NotifyRestaurantInfoChanged tells user that info was updated.
func (s *RestaurantSatellite) NotifyRestaurantInfoChanged(ctx context.Context, info *dining.RestaurantInfo, user *dining.UserInfo) error {
	if info == nil {
		return fmt.Errorf("%w: restaurant info is nil", dining.ErrInvalidArgument)
	}
	return notifyByID(ctx, s.router, dining.ActionRestaurantInfoChanged, info.ObjectID, user)
}

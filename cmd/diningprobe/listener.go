package main

import (
	"log/slog"

	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
)

// logListener implements both satellite listeners by logging every callback.
type logListener struct {
	logger *slog.Logger
}

func (l logListener) OnFailure(message string) {
	l.logger.Warn("Notification failed", "reason", message)
}

func (l logListener) OnInitialDiningSessionReceived(session *dining.DiningSession) {
	l.logger.Info("Dining session confirmed", "session", session.ObjectID, "restaurant", session.RestaurantID, "table", session.TableNumber)
}

func (l logListener) OnRestaurantInfoChanged(info *dining.RestaurantInfo) {
	l.logger.Info("Restaurant info changed", "restaurant", info.ObjectID, "name", info.Name)
}

func (l logListener) OnCheckInRequested(user *dining.UserInfo, table int) {
	l.logger.Info("Check-in requested", "user", user.ObjectID, "name", user.Name, "table", table)
}

func (l logListener) OnOrderPlaced(session *dining.DiningSession) {
	l.logger.Info("Order placed", "session", session.ObjectID)
}

func (l logListener) OnCustomerRequest(session *dining.DiningSession) {
	l.logger.Info("Customer request", "session", session.ObjectID)
}

func (l logListener) OnCheckedOut(session *dining.DiningSession) {
	l.logger.Info("Checked out", "session", session.ObjectID)
}

func (l logListener) OnUserInfoChanged(user *dining.UserInfo) {
	l.logger.Info("User info changed", "user", user.ObjectID, "name", user.Name)
}

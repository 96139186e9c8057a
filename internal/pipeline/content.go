package pipeline

import (
	"github.com/tinywideclouds/go-dining-satellite/pkg/dining"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

var actionContent = map[dining.Action]notification.NotificationContent{
	dining.ActionConfirmSession:        {Title: "You're checked in", Body: "The restaurant confirmed your table.", Sound: "default"},
	dining.ActionRestaurantInfoChanged: {Title: "Restaurant updated", Body: "Details for your restaurant have changed."},
	dining.ActionRequestDiningSession:  {Title: "Check-in request", Body: "A customer is asking to be seated.", Sound: "default"},
	dining.ActionOrderPlaced:           {Title: "New order", Body: "A table placed an order.", Sound: "default"},
	dining.ActionCustomerRequest:       {Title: "Customer request", Body: "A table needs attention.", Sound: "default"},
	dining.ActionCheckOut:              {Title: "Check out", Body: "A table is ready to check out.", Sound: "default"},
	dining.ActionChangeUserInfo:        {Title: "Customer updated", Body: "A customer's profile changed."},
}

// ContentFor returns the visible title and body pushed for action. Unknown
// actions still reach the device as data with a generic alert.
func ContentFor(action dining.Action) notification.NotificationContent {
	if c, ok := actionContent[action]; ok {
		return c
	}
	return notification.NotificationContent{Title: "DineOn", Body: "You have a new update."}
}

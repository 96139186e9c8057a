// Package dining contains the public domain models and collaborator contracts
// shared by the customer and restaurant satellites and the relay service.
package dining

import "strings"

// Action is the tag carried by an envelope that tells the receiving
// satellite which object to fetch and which callback to invoke.
type Action string

const actionPrefix = "dineon.action."

const (
	// Sent by a restaurant to a customer.
	ActionConfirmSession        Action = actionPrefix + "CONFIRM_DINING_SESSION"
	ActionRestaurantInfoChanged Action = actionPrefix + "CHANGE_RESTAURANT_INFO"

	// Sent by a customer to a restaurant.
	ActionRequestDiningSession Action = actionPrefix + "REQUEST_DINING_SESSION"
	ActionOrderPlaced          Action = actionPrefix + "ORDER_PLACED"
	ActionCustomerRequest      Action = actionPrefix + "CUSTOMER_REQUEST"
	ActionCheckOut             Action = actionPrefix + "CHECK_OUT"
	ActionChangeUserInfo       Action = actionPrefix + "CHANGE_USER_INFO"
)

var knownActions = map[Action]struct{}{
	ActionConfirmSession:        {},
	ActionRestaurantInfoChanged: {},
	ActionRequestDiningSession:  {},
	ActionOrderPlaced:           {},
	ActionCustomerRequest:       {},
	ActionCheckOut:              {},
	ActionChangeUserInfo:        {},
}

// IsKnown reports whether a is one of the fixed set of actions.
func (a Action) IsKnown() bool {
	_, ok := knownActions[a]
	return ok
}

// Short returns the tag without its namespace prefix, e.g. "CHECK_OUT".
func (a Action) Short() string {
	return strings.TrimPrefix(string(a), actionPrefix)
}

func (a Action) String() string {
	return string(a)
}

package dining

import "time"

// ObjectKind is the type name an object is stored and fetched under.
type ObjectKind string

const (
	KindUserInfo       ObjectKind = "UserInfo"
	KindRestaurantInfo ObjectKind = "RestaurantInfo"
	KindDiningSession  ObjectKind = "DiningSession"
)

// UserInfo is the public profile of a customer.
type UserInfo struct {
	ObjectID string `json:"objectId" firestore:"object_id"`
	Name     string `json:"name" firestore:"name"`
	Email    string `json:"email,omitempty" firestore:"email,omitempty"`
	Phone    string `json:"phone,omitempty" firestore:"phone,omitempty"`
}

func (u *UserInfo) IdentityKind() IdentityKind { return KindUser }
func (u *UserInfo) IdentityID() string         { return u.ObjectID }

// RestaurantInfo is the public profile of a restaurant.
type RestaurantInfo struct {
	ObjectID string `json:"objectId" firestore:"object_id"`
	Name     string `json:"name" firestore:"name"`
	Address  string `json:"address,omitempty" firestore:"address,omitempty"`
	Phone    string `json:"phone,omitempty" firestore:"phone,omitempty"`
	Hours    string `json:"hours,omitempty" firestore:"hours,omitempty"`
}

func (r *RestaurantInfo) IdentityKind() IdentityKind { return KindRestaurant }
func (r *RestaurantInfo) IdentityID() string         { return r.ObjectID }

// Order is a batch of menu items placed during a dining session.
type Order struct {
	ID       string    `json:"id" firestore:"id"`
	Items    []string  `json:"items" firestore:"items"`
	PlacedAt time.Time `json:"placedAt" firestore:"placed_at"`
}

// CustomerRequest is an ad-hoc request raised from a table ("more water").
type CustomerRequest struct {
	ID          string    `json:"id" firestore:"id"`
	Description string    `json:"description" firestore:"description"`
	Urgency     string    `json:"urgency,omitempty" firestore:"urgency,omitempty"`
	CreatedAt   time.Time `json:"createdAt" firestore:"created_at"`
}

// DiningSession is an active customer-restaurant interaction at one table.
type DiningSession struct {
	ObjectID     string            `json:"objectId" firestore:"object_id"`
	RestaurantID string            `json:"restaurantId" firestore:"restaurant_id"`
	TableNumber  int               `json:"tableNumber" firestore:"table_number"`
	UserIDs      []string          `json:"userIds" firestore:"user_ids"`
	Orders       []Order           `json:"orders,omitempty" firestore:"orders,omitempty"`
	Requests     []CustomerRequest `json:"requests,omitempty" firestore:"requests,omitempty"`
	StartedAt    time.Time         `json:"startedAt" firestore:"started_at"`
	ClosedAt     *time.Time        `json:"closedAt,omitempty" firestore:"closed_at,omitempty"`
}

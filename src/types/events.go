package types

import (
	"encoding/json"
	"errors"
	"time"
)

// EventType tags a server to client event.
type EventType string

const (
	EventItemAdded   EventType = "item:added"
	EventItemUpdated EventType = "item:updated"
	EventItemChecked EventType = "item:checked"
	EventItemRemoved EventType = "item:removed"

	EventListCreated EventType = "list:created"
	EventListUpdated EventType = "list:updated"
	EventListDeleted EventType = "list:deleted"

	EventCommentAdded   EventType = "comment:added"
	EventCommentUpdated EventType = "comment:updated"
	EventCommentDeleted EventType = "comment:deleted"

	EventAccessRevoked EventType = "access:revoked"

	EventSubscribed   EventType = "subscribed"
	EventUnsubscribed EventType = "unsubscribed"
	EventPong         EventType = "pong"
	EventError        EventType = "error"
)

// Stable error codes carried by error events.
const (
	CodeAuthFailed           = "AUTH_FAILED"
	CodeMaxReconnectAttempts = "MAX_RECONNECT_ATTEMPTS"
	CodeUnknownCommand       = "UNKNOWN_COMMAND"
)

// Item is a shopping-list entry.
type Item struct {
	ID        string     `json:"id"`
	ListID    string     `json:"listId"`
	Name      string     `json:"name"`
	Quantity  string     `json:"quantity,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	Checked   bool       `json:"checked"`
	CheckedBy string     `json:"checkedBy,omitempty"`
	CheckedAt *time.Time `json:"checkedAt,omitempty"`
	Position  int        `json:"position"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// List is a shopping list.
type List struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"ownerId"`
	HouseholdID string    `json:"householdId,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Comment is a note attached to an item.
type Comment struct {
	ID         string    `json:"id"`
	ListID     string    `json:"listId"`
	ItemID     string    `json:"itemId"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Event is a server to client message. It is a tagged union on Type;
// only the fields of the tagged variant are set.
type Event struct {
	Type      EventType  `json:"type"`
	ListID    string     `json:"listId,omitempty"`
	ListIDs   []string   `json:"listIds,omitzero"`
	Item      *Item      `json:"item,omitempty"`
	ItemID    string     `json:"itemId,omitempty"`
	List      *List      `json:"list,omitempty"`
	Comment   *Comment   `json:"comment,omitempty"`
	CommentID string     `json:"commentId,omitempty"`
	AccountID string     `json:"accountId,omitempty"`
	Actor     *Actor     `json:"actor,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Message   string     `json:"message,omitempty"`
	Code      string     `json:"code,omitempty"`
}

// ErrMalformedEvent is returned when an inbound payload has no type tag.
var ErrMalformedEvent = errors.New("malformed event")

// DecodeEvent parses a JSON event.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		return Event{}, ErrMalformedEvent
	}
	return ev, nil
}

// IsProtocol reports whether the event is a protocol-level message rather
// than a domain change.
func (e Event) IsProtocol() bool {
	switch e.Type {
	case EventSubscribed, EventUnsubscribed, EventPong, EventError:
		return true
	}
	return false
}

package types

import "time"

// Timestamps are carried in UTC with millisecond precision.
func eventTime(at time.Time) *time.Time {
	t := at.UTC().Truncate(time.Millisecond)
	return &t
}

func dataEvent(typ EventType, listID string, actor Actor, at time.Time) Event {
	a := actor
	return Event{
		Type:      typ,
		ListID:    listID,
		Actor:     &a,
		Timestamp: eventTime(at),
	}
}

// NewItemEvent builds item:added, item:updated or item:checked. The full
// item travels with the event so clients never need to re-fetch it.
func NewItemEvent(typ EventType, listID string, item Item, actor Actor, at time.Time) Event {
	ev := dataEvent(typ, listID, actor, at)
	it := item
	ev.Item = &it
	return ev
}

// NewItemRemoved builds item:removed.
func NewItemRemoved(listID, itemID string, actor Actor, at time.Time) Event {
	ev := dataEvent(EventItemRemoved, listID, actor, at)
	ev.ItemID = itemID
	return ev
}

// NewListEvent builds list:created or list:updated.
func NewListEvent(typ EventType, list List, actor Actor, at time.Time) Event {
	ev := dataEvent(typ, list.ID, actor, at)
	l := list
	ev.List = &l
	return ev
}

// NewListDeleted builds list:deleted.
func NewListDeleted(listID string, actor Actor, at time.Time) Event {
	return dataEvent(EventListDeleted, listID, actor, at)
}

// NewCommentEvent builds comment:added or comment:updated.
func NewCommentEvent(typ EventType, listID string, comment Comment, actor Actor, at time.Time) Event {
	ev := dataEvent(typ, listID, actor, at)
	c := comment
	ev.Comment = &c
	ev.ItemID = comment.ItemID
	return ev
}

// NewCommentDeleted builds comment:deleted.
func NewCommentDeleted(listID, itemID, commentID string, actor Actor, at time.Time) Event {
	ev := dataEvent(EventCommentDeleted, listID, actor, at)
	ev.ItemID = itemID
	ev.CommentID = commentID
	return ev
}

// NewAccessRevoked builds access:revoked for the account losing access.
func NewAccessRevoked(listID, accountID string, actor Actor, at time.Time) Event {
	ev := dataEvent(EventAccessRevoked, listID, actor, at)
	ev.AccountID = accountID
	return ev
}

// NewSubscribed acknowledges the list ids the server actually subscribed.
// An empty acknowledgement still carries an empty listIds array.
func NewSubscribed(listIDs []string) Event {
	return Event{Type: EventSubscribed, ListIDs: ackIDs(listIDs)}
}

// NewUnsubscribed acknowledges removed subscriptions.
func NewUnsubscribed(listIDs []string) Event {
	return Event{Type: EventUnsubscribed, ListIDs: ackIDs(listIDs)}
}

func ackIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// NewPong answers a client ping.
func NewPong() Event { return Event{Type: EventPong} }

// NewError builds an error event with a stable code.
func NewError(code, message string) Event {
	return Event{Type: EventError, Code: code, Message: message}
}

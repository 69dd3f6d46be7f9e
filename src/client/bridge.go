package client

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/orchestra-mcp/listsync/src/types"
)

// Notification kinds raised by the bridge.
const (
	NotifySystemList      = "system-list"
	NotifyAccessRevoked   = "access-revoked"
	NotifyListDeleted     = "list-deleted"
	NotifyConnectionError = "connection-error"
)

// Notification is a user-visible message.
type Notification struct {
	Kind    string
	Message string
	ListID  string
	Code    string
}

// EventSource is what the bridge needs from a Manager.
type EventSource interface {
	OnEvent(fn func(types.Event))
	OnStateChange(fn func(State))
	Subscribe(listIDs []string) bool
	Unsubscribe(listIDs []string) bool
}

// Bridge applies inbound events to the local view of lists, the open
// list's items and their comments.
type Bridge struct {
	source    EventSource
	accountID string
	logger    zerolog.Logger

	mu            sync.RWMutex
	state         State
	lists         map[string]types.List
	current       string
	items         map[string]types.Item
	comments      map[string]map[string]types.Comment
	confirmed     map[string]struct{}
	notifications []Notification
	lastEventAt   time.Time
	lastError     *types.Event
	notifyFns     []func(Notification)
}

// NewBridge attaches a bridge for accountID to source.
func NewBridge(source EventSource, accountID string, logger zerolog.Logger) *Bridge {
	b := &Bridge{
		source:    source,
		accountID: accountID,
		logger:    logger.With().Str("component", "bridge").Logger(),
		lists:     make(map[string]types.List),
		items:     make(map[string]types.Item),
		comments:  make(map[string]map[string]types.Comment),
		confirmed: make(map[string]struct{}),
	}
	source.OnEvent(b.handle)
	source.OnStateChange(b.stateChanged)
	return b
}

// OnNotification registers fn for every new notification.
func (b *Bridge) OnNotification(fn func(Notification)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifyFns = append(b.notifyFns, fn)
}

// SetLists replaces the list collection, typically after an initial fetch.
func (b *Bridge) SetLists(lists []types.List) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lists = make(map[string]types.List, len(lists))
	for _, l := range lists {
		b.lists[l.ID] = l
	}
}

// OpenList makes listID the current list with the fetched items and
// comments, and subscribes to it. The previous list is unsubscribed.
func (b *Bridge) OpenList(listID string, items []types.Item, comments []types.Comment) {
	b.mu.Lock()
	previous := b.current
	b.current = listID
	b.items = make(map[string]types.Item, len(items))
	for _, it := range items {
		b.items[it.ID] = it
	}
	b.comments = make(map[string]map[string]types.Comment)
	for _, c := range comments {
		b.putCommentLocked(c)
	}
	b.mu.Unlock()

	if previous != "" && previous != listID {
		b.source.Unsubscribe([]string{previous})
	}
	b.source.Subscribe([]string{listID})
}

// CloseList clears the current list and unsubscribes from it.
func (b *Bridge) CloseList() {
	b.mu.Lock()
	previous := b.current
	b.closeLocked()
	b.mu.Unlock()

	if previous != "" {
		b.source.Unsubscribe([]string{previous})
	}
}

// ApplyLocalItem inserts or replaces an item written by this client. A
// later item:added echo for the same id is ignored.
func (b *Bridge) ApplyLocalItem(item types.Item) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != "" && item.ListID != "" && item.ListID != b.current {
		return
	}
	b.items[item.ID] = item
}

// RemoveLocalItem drops an item removed by this client.
func (b *Bridge) RemoveLocalItem(itemID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, itemID)
	delete(b.comments, itemID)
}

// ApplyLocalComment inserts or replaces a comment written by this client.
func (b *Bridge) ApplyLocalComment(c types.Comment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putCommentLocked(c)
}

func (b *Bridge) stateChanged(s State) {
	b.mu.Lock()
	b.state = s
	if s != Connected {
		clear(b.confirmed)
	}
	current := b.current
	b.mu.Unlock()

	if s == Connected && current != "" {
		b.source.Subscribe([]string{current})
	}
}

func (b *Bridge) handle(ev types.Event) {
	b.mu.Lock()
	if !ev.IsProtocol() && ev.Timestamp != nil && ev.Timestamp.After(b.lastEventAt) {
		b.lastEventAt = *ev.Timestamp
	}

	var notes []Notification
	switch ev.Type {
	case types.EventItemAdded:
		if ev.Item == nil || !b.isCurrentLocked(ev.ListID) {
			break
		}
		if _, dup := b.items[ev.Item.ID]; dup {
			break
		}
		b.items[ev.Item.ID] = *ev.Item

	case types.EventItemUpdated, types.EventItemChecked:
		if ev.Item == nil || !b.isCurrentLocked(ev.ListID) {
			break
		}
		b.items[ev.Item.ID] = *ev.Item

	case types.EventItemRemoved:
		if !b.isCurrentLocked(ev.ListID) {
			break
		}
		delete(b.items, ev.ItemID)
		delete(b.comments, ev.ItemID)

	case types.EventListCreated:
		if ev.List == nil {
			break
		}
		if _, dup := b.lists[ev.List.ID]; dup {
			break
		}
		b.lists[ev.List.ID] = *ev.List
		if ev.Actor != nil && ev.Actor.IsSystem() {
			notes = append(notes, Notification{
				Kind:    NotifySystemList,
				Message: fmt.Sprintf("New list %q was created for you", ev.List.Name),
				ListID:  ev.List.ID,
			})
		}

	case types.EventListUpdated:
		if ev.List == nil {
			break
		}
		b.lists[ev.List.ID] = *ev.List

	case types.EventListDeleted:
		name := b.lists[ev.ListID].Name
		delete(b.lists, ev.ListID)
		if b.isCurrentLocked(ev.ListID) {
			b.closeLocked()
			notes = append(notes, Notification{
				Kind:    NotifyListDeleted,
				Message: fmt.Sprintf("List %q was deleted", name),
				ListID:  ev.ListID,
			})
		}

	case types.EventCommentAdded:
		if ev.Comment == nil || !b.isCurrentLocked(ev.ListID) {
			break
		}
		if _, dup := b.comments[ev.Comment.ItemID][ev.Comment.ID]; dup {
			break
		}
		b.putCommentLocked(*ev.Comment)

	case types.EventCommentUpdated:
		if ev.Comment == nil || !b.isCurrentLocked(ev.ListID) {
			break
		}
		b.putCommentLocked(*ev.Comment)

	case types.EventCommentDeleted:
		if !b.isCurrentLocked(ev.ListID) {
			break
		}
		delete(b.comments[ev.ItemID], ev.CommentID)

	case types.EventAccessRevoked:
		if ev.AccountID != "" && ev.AccountID != b.accountID {
			break
		}
		name := b.lists[ev.ListID].Name
		delete(b.lists, ev.ListID)
		if b.isCurrentLocked(ev.ListID) {
			b.closeLocked()
			notes = append(notes, Notification{
				Kind:    NotifyAccessRevoked,
				Message: fmt.Sprintf("You no longer have access to %q", name),
				ListID:  ev.ListID,
			})
		}

	case types.EventSubscribed:
		for _, id := range ev.ListIDs {
			b.confirmed[id] = struct{}{}
		}

	case types.EventUnsubscribed:
		for _, id := range ev.ListIDs {
			delete(b.confirmed, id)
		}

	case types.EventError:
		last := ev
		b.lastError = &last
		if !isTerminalCode(ev.Code) {
			b.logger.Warn().Str("code", ev.Code).Str("message", ev.Message).Msg("server error")
			break
		}
		notes = append(notes, Notification{
			Kind:    NotifyConnectionError,
			Message: ev.Message,
			Code:    ev.Code,
		})

	case types.EventPong:

	default:
		b.logger.Debug().Str("type", string(ev.Type)).Msg("ignoring event")
	}

	b.notifications = append(b.notifications, notes...)
	fns := append(([]func(Notification))(nil), b.notifyFns...)
	b.mu.Unlock()

	for _, n := range notes {
		for _, fn := range fns {
			fn(n)
		}
	}
}

// isTerminalCode reports whether code ends the connection for good and
// so needs the user's attention.
func isTerminalCode(code string) bool {
	return code == types.CodeAuthFailed || code == types.CodeMaxReconnectAttempts
}

func (b *Bridge) isCurrentLocked(listID string) bool {
	return b.current != "" && b.current == listID
}

func (b *Bridge) closeLocked() {
	b.current = ""
	b.items = make(map[string]types.Item)
	b.comments = make(map[string]map[string]types.Comment)
}

func (b *Bridge) putCommentLocked(c types.Comment) {
	byID, ok := b.comments[c.ItemID]
	if !ok {
		byID = make(map[string]types.Comment)
		b.comments[c.ItemID] = byID
	}
	byID[c.ID] = c
}

// State returns the mirrored connection state.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// CurrentList returns the open list id, or "".
func (b *Bridge) CurrentList() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Lists returns the list collection sorted by name then id.
func (b *Bridge) Lists() []types.List {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.List, 0, len(b.lists))
	for _, l := range b.lists {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Items returns the open list's items sorted by position then id.
func (b *Bridge) Items() []types.Item {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Item, 0, len(b.items))
	for _, it := range b.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Item returns one item of the open list.
func (b *Bridge) Item(id string) (types.Item, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	it, ok := b.items[id]
	return it, ok
}

// Comments returns the comments on itemID, oldest first.
func (b *Bridge) Comments(itemID string) []types.Comment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Comment, 0, len(b.comments[itemID]))
	for _, c := range b.comments[itemID] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Confirmed returns the list ids the server has acknowledged, sorted.
func (b *Bridge) Confirmed() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.confirmed))
	for id := range b.confirmed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Notifications returns every notification raised so far.
func (b *Bridge) Notifications() []Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Notification(nil), b.notifications...)
}

// LastEventAt returns the newest event timestamp seen.
func (b *Bridge) LastEventAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastEventAt
}

// LastError returns the most recent error event, if any.
func (b *Bridge) LastError() (types.Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.lastError == nil {
		return types.Event{}, false
	}
	return *b.lastError, true
}

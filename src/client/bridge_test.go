package client

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestra-mcp/listsync/src/types"
)

type fakeSource struct {
	eventFns  []func(types.Event)
	stateFns  []func(State)
	connected bool
	subs      [][]string
	unsubs    [][]string
}

func (f *fakeSource) OnEvent(fn func(types.Event))  { f.eventFns = append(f.eventFns, fn) }
func (f *fakeSource) OnStateChange(fn func(State)) { f.stateFns = append(f.stateFns, fn) }

func (f *fakeSource) Subscribe(ids []string) bool {
	f.subs = append(f.subs, ids)
	return f.connected
}

func (f *fakeSource) Unsubscribe(ids []string) bool {
	f.unsubs = append(f.unsubs, ids)
	return f.connected
}

func (f *fakeSource) emit(ev types.Event) {
	for _, fn := range f.eventFns {
		fn(ev)
	}
}

func (f *fakeSource) setState(s State) {
	f.connected = s == Connected
	for _, fn := range f.stateFns {
		fn(s)
	}
}

var (
	alice = types.Actor{ID: "acct-alice", DisplayName: "Alice"}
	bob   = types.Actor{ID: "acct-bob", DisplayName: "Bob"}
	at    = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
)

func newBridge(t *testing.T) (*Bridge, *fakeSource) {
	t.Helper()
	src := &fakeSource{}
	b := NewBridge(src, alice.ID, zerolog.Nop())
	b.SetLists([]types.List{{ID: "L1", Name: "Groceries"}, {ID: "L2", Name: "Hardware"}})
	b.OpenList("L1", []types.Item{{ID: "I1", ListID: "L1", Name: "Milk", Position: 1}}, nil)
	return b, src
}

func TestBridgeItemEventsOnlyForCurrentList(t *testing.T) {
	b, src := newBridge(t)

	src.emit(types.NewItemEvent(types.EventItemAdded, "L1", types.Item{ID: "I2", ListID: "L1", Name: "Eggs", Position: 2}, bob, at))
	src.emit(types.NewItemEvent(types.EventItemAdded, "L2", types.Item{ID: "I9", ListID: "L2", Name: "Nails"}, bob, at))

	items := b.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "Milk", items[0].Name)
	assert.Equal(t, "Eggs", items[1].Name)
}

func TestBridgeItemAddedDeduplicated(t *testing.T) {
	b, src := newBridge(t)

	b.ApplyLocalItem(types.Item{ID: "I2", ListID: "L1", Name: "Bread (mine)", Position: 2})
	src.emit(types.NewItemEvent(types.EventItemAdded, "L1", types.Item{ID: "I2", ListID: "L1", Name: "Bread", Position: 2}, alice, at))
	src.emit(types.NewItemEvent(types.EventItemAdded, "L1", types.Item{ID: "I2", ListID: "L1", Name: "Bread", Position: 2}, alice, at))

	assert.Len(t, b.Items(), 2)
	it, ok := b.Item("I2")
	require.True(t, ok)
	assert.Equal(t, "Bread (mine)", it.Name)
}

func TestBridgeItemUpdateCheckRemove(t *testing.T) {
	b, src := newBridge(t)
	b.ApplyLocalComment(types.Comment{ID: "C1", ListID: "L1", ItemID: "I1", Body: "2%"})

	src.emit(types.NewItemEvent(types.EventItemUpdated, "L1", types.Item{ID: "I1", ListID: "L1", Name: "Oat milk", Position: 1}, bob, at))
	it, _ := b.Item("I1")
	assert.Equal(t, "Oat milk", it.Name)

	src.emit(types.NewItemEvent(types.EventItemChecked, "L1", types.Item{ID: "I1", ListID: "L1", Name: "Oat milk", Checked: true, CheckedBy: bob.ID, Position: 1}, bob, at))
	it, _ = b.Item("I1")
	assert.True(t, it.Checked)

	src.emit(types.NewItemRemoved("L1", "I1", bob, at))
	_, ok := b.Item("I1")
	assert.False(t, ok)
	assert.Empty(t, b.Comments("I1"))
}

func TestBridgeListCreated(t *testing.T) {
	b, src := newBridge(t)
	var seen []Notification
	b.OnNotification(func(n Notification) { seen = append(seen, n) })

	peer := types.List{ID: "L3", Name: "Party", OwnerID: alice.ID}
	src.emit(types.NewListEvent(types.EventListCreated, peer, bob, at))
	src.emit(types.NewListEvent(types.EventListCreated, peer, bob, at))
	assert.Len(t, b.Lists(), 3)
	assert.Empty(t, seen)

	weekly := types.List{ID: "L4", Name: "Weekly basics", OwnerID: alice.ID}
	src.emit(types.NewListEvent(types.EventListCreated, weekly, types.SystemActor, at))
	src.emit(types.NewListEvent(types.EventListCreated, weekly, types.SystemActor, at))

	assert.Len(t, b.Lists(), 4)
	require.Len(t, seen, 1)
	assert.Equal(t, NotifySystemList, seen[0].Kind)
	assert.Equal(t, "L4", seen[0].ListID)
	assert.Contains(t, seen[0].Message, "Weekly basics")
	assert.Equal(t, seen, b.Notifications())
}

func TestBridgeListUpdatedAndDeleted(t *testing.T) {
	b, src := newBridge(t)

	src.emit(types.NewListEvent(types.EventListUpdated, types.List{ID: "L2", Name: "Tools"}, bob, at))
	src.emit(types.NewListDeleted("L2", bob, at))
	require.Len(t, b.Lists(), 1)
	assert.Equal(t, "L1", b.CurrentList())
	assert.Empty(t, b.Notifications())

	src.emit(types.NewListDeleted("L1", bob, at))
	assert.Empty(t, b.Lists())
	assert.Equal(t, "", b.CurrentList())
	assert.Empty(t, b.Items())
	require.Len(t, b.Notifications(), 1)
	assert.Equal(t, NotifyListDeleted, b.Notifications()[0].Kind)
}

func TestBridgeComments(t *testing.T) {
	b, src := newBridge(t)
	first := types.Comment{ID: "C1", ListID: "L1", ItemID: "I1", Body: "lactose free", CreatedAt: at}
	second := types.Comment{ID: "C2", ListID: "L1", ItemID: "I1", Body: "two cartons", CreatedAt: at.Add(time.Minute)}

	src.emit(types.NewCommentEvent(types.EventCommentAdded, "L1", second, bob, at))
	src.emit(types.NewCommentEvent(types.EventCommentAdded, "L1", first, bob, at))
	src.emit(types.NewCommentEvent(types.EventCommentAdded, "L1", first, bob, at))
	src.emit(types.NewCommentEvent(types.EventCommentAdded, "L2", types.Comment{ID: "C9", ListID: "L2", ItemID: "I1"}, bob, at))

	comments := b.Comments("I1")
	require.Len(t, comments, 2)
	assert.Equal(t, "C1", comments[0].ID)
	assert.Equal(t, "C2", comments[1].ID)

	first.Body = "oat, lactose free"
	src.emit(types.NewCommentEvent(types.EventCommentUpdated, "L1", first, bob, at))
	assert.Equal(t, "oat, lactose free", b.Comments("I1")[0].Body)

	src.emit(types.NewCommentDeleted("L1", "I1", "C2", bob, at))
	assert.Len(t, b.Comments("I1"), 1)
}

func TestBridgeAccessRevoked(t *testing.T) {
	b, src := newBridge(t)

	src.emit(types.NewAccessRevoked("L1", bob.ID, bob, at))
	assert.Equal(t, "L1", b.CurrentList())

	src.emit(types.NewAccessRevoked("L2", alice.ID, bob, at))
	assert.Len(t, b.Lists(), 1)
	assert.Empty(t, b.Notifications())

	src.emit(types.NewAccessRevoked("L1", alice.ID, bob, at))
	assert.Empty(t, b.Lists())
	assert.Equal(t, "", b.CurrentList())
	require.Len(t, b.Notifications(), 1)
	assert.Equal(t, NotifyAccessRevoked, b.Notifications()[0].Kind)
	assert.Equal(t, "L1", b.Notifications()[0].ListID)
}

func TestBridgeLastEventAtIsMax(t *testing.T) {
	b, src := newBridge(t)
	later := at.Add(time.Minute)

	src.emit(types.NewItemRemoved("L1", "I1", bob, later))
	src.emit(types.NewItemRemoved("L1", "I1", bob, at))
	src.emit(types.NewPong())

	assert.Equal(t, later, b.LastEventAt())
}

func TestBridgeConfirmedSubscriptions(t *testing.T) {
	b, src := newBridge(t)
	src.setState(Connected)

	src.emit(types.NewSubscribed([]string{"L1", "L2"}))
	src.emit(types.NewUnsubscribed([]string{"L2"}))
	assert.Equal(t, []string{"L1"}, b.Confirmed())

	src.setState(Reconnecting)
	assert.Empty(t, b.Confirmed())
	assert.Equal(t, Reconnecting, b.State())
}

func TestBridgeResubscribesOnConnect(t *testing.T) {
	b, src := newBridge(t)
	require.Equal(t, [][]string{{"L1"}}, src.subs)

	src.setState(Connected)
	src.setState(Reconnecting)
	src.setState(Connected)
	assert.Equal(t, [][]string{{"L1"}, {"L1"}, {"L1"}}, src.subs)

	b.OpenList("L2", nil, nil)
	assert.Equal(t, [][]string{{"L1"}}, src.unsubs)
	b.CloseList()
	assert.Equal(t, [][]string{{"L1"}, {"L2"}}, src.unsubs)

	src.setState(Connected)
	assert.Len(t, src.subs, 4)
}

func TestBridgeErrorsBecomeNotifications(t *testing.T) {
	b, src := newBridge(t)

	src.emit(types.NewError(types.CodeAuthFailed, "authentication failed"))

	ev, ok := b.LastError()
	require.True(t, ok)
	assert.Equal(t, types.CodeAuthFailed, ev.Code)
	require.Len(t, b.Notifications(), 1)
	assert.Equal(t, NotifyConnectionError, b.Notifications()[0].Kind)
	assert.Equal(t, types.CodeAuthFailed, b.Notifications()[0].Code)
}

func TestBridgeOnlyTerminalErrorsNotify(t *testing.T) {
	b, src := newBridge(t)

	src.emit(types.NewError(types.CodeUnknownCommand, "unknown command shout"))
	ev, ok := b.LastError()
	require.True(t, ok)
	assert.Equal(t, types.CodeUnknownCommand, ev.Code)
	assert.Empty(t, b.Notifications())

	src.emit(types.NewError(types.CodeMaxReconnectAttempts, "maximum reconnect attempts reached"))
	require.Len(t, b.Notifications(), 1)
	assert.Equal(t, types.CodeMaxReconnectAttempts, b.Notifications()[0].Code)
}

func TestBridgeWithManager(t *testing.T) {
	h := newHarness(t)
	b := NewBridge(h.manager, alice.ID, zerolog.Nop())
	b.OpenList("L1", nil, nil)

	s := h.connect(t)
	cmds := s.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, types.Command{Type: types.CommandSubscribe, ListIDs: []string{"L1"}}, cmds[0])

	s.deliver(types.NewItemEvent(types.EventItemAdded, "L1", types.Item{ID: "I1", ListID: "L1", Name: "Apples"}, bob, at))
	assert.Len(t, b.Items(), 1)
	assert.Equal(t, Connected, b.State())

	s.drop(ClosePolicyViolation)
	assert.Equal(t, Disconnected, b.State())
	ev, ok := b.LastError()
	require.True(t, ok)
	assert.Equal(t, types.CodeAuthFailed, ev.Code)
}

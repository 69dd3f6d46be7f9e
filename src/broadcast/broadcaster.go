// Package broadcast is the façade domain services call after a write has
// been committed. Each method builds the event for one kind of change
// and hands it to the relay.
package broadcast

import (
	"context"

	"github.com/orchestra-mcp/listsync/src/clock"
	"github.com/orchestra-mcp/listsync/src/types"
	"github.com/rs/zerolog"
)

// Publisher is implemented by relay.Relay.
type Publisher interface {
	Publish(ctx context.Context, scope string, ev types.Event) bool
}

// Broadcaster stamps actor and time on domain events and publishes them.
// Call it only after the change is durably committed. A false return
// means the push was lost; the committed write stands.
type Broadcaster struct {
	publisher Publisher
	clock     clock.Clock
	logger    zerolog.Logger
}

// New creates a Broadcaster.
func New(p Publisher, c clock.Clock, logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		publisher: p,
		clock:     c,
		logger:    logger.With().Str("component", "broadcaster").Logger(),
	}
}

func (b *Broadcaster) publish(ctx context.Context, scope string, ev types.Event) bool {
	ok := b.publisher.Publish(ctx, scope, ev)
	if !ok {
		b.logger.Warn().
			Str("type", string(ev.Type)).
			Str("list_id", ev.ListID).
			Msg("broadcast degraded")
		return false
	}
	b.logger.Debug().
		Str("type", string(ev.Type)).
		Str("scope", scope).
		Str("actor", ev.Actor.ID).
		Msg("broadcast")
	return true
}

// ItemAdded announces a new item.
func (b *Broadcaster) ItemAdded(ctx context.Context, listID string, item types.Item, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewItemEvent(types.EventItemAdded, listID, item, actor, b.clock.Now()))
}

// ItemUpdated announces an edited item.
func (b *Broadcaster) ItemUpdated(ctx context.Context, listID string, item types.Item, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewItemEvent(types.EventItemUpdated, listID, item, actor, b.clock.Now()))
}

// ItemChecked announces a checked or unchecked item.
func (b *Broadcaster) ItemChecked(ctx context.Context, listID string, item types.Item, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewItemEvent(types.EventItemChecked, listID, item, actor, b.clock.Now()))
}

// ItemRemoved announces a deleted item.
func (b *Broadcaster) ItemRemoved(ctx context.Context, listID, itemID string, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewItemRemoved(listID, itemID, actor, b.clock.Now()))
}

// ListCreated announces a new list to its owner and, for household
// lists, to the household. The recurring-item scheduler calls this with
// types.SystemActor.
func (b *Broadcaster) ListCreated(ctx context.Context, list types.List, actor types.Actor) bool {
	ev := types.NewListEvent(types.EventListCreated, list, actor, b.clock.Now())
	ok := b.publish(ctx, types.AccountScope(list.OwnerID), ev)
	if list.HouseholdID != "" {
		ok = b.publish(ctx, types.HouseholdScope(list.HouseholdID), ev) && ok
	}
	return ok
}

// ListUpdated announces a renamed or archived list.
func (b *Broadcaster) ListUpdated(ctx context.Context, list types.List, actor types.Actor) bool {
	return b.publish(ctx, list.ID, types.NewListEvent(types.EventListUpdated, list, actor, b.clock.Now()))
}

// ListDeleted announces a deleted list.
func (b *Broadcaster) ListDeleted(ctx context.Context, listID string, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewListDeleted(listID, actor, b.clock.Now()))
}

// CommentAdded announces a new comment.
func (b *Broadcaster) CommentAdded(ctx context.Context, listID string, comment types.Comment, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewCommentEvent(types.EventCommentAdded, listID, comment, actor, b.clock.Now()))
}

// CommentUpdated announces an edited comment.
func (b *Broadcaster) CommentUpdated(ctx context.Context, listID string, comment types.Comment, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewCommentEvent(types.EventCommentUpdated, listID, comment, actor, b.clock.Now()))
}

// CommentDeleted announces a deleted comment.
func (b *Broadcaster) CommentDeleted(ctx context.Context, listID, itemID, commentID string, actor types.Actor) bool {
	return b.publish(ctx, listID, types.NewCommentDeleted(listID, itemID, commentID, actor, b.clock.Now()))
}

// AccessRevoked tells accountID it can no longer see listID.
func (b *Broadcaster) AccessRevoked(ctx context.Context, listID, accountID string, actor types.Actor) bool {
	return b.publish(ctx, types.AccountScope(accountID), types.NewAccessRevoked(listID, accountID, actor, b.clock.Now()))
}

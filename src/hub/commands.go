package hub

import (
	"context"
	"encoding/json"

	"github.com/orchestra-mcp/listsync/src/types"
)

// HandleCommand applies one client command. Malformed payloads are
// dropped and never close the connection.
func (h *Hub) HandleCommand(ctx context.Context, s *Session, data []byte) {
	cmd, err := types.DecodeCommand(data)
	if err != nil {
		h.logger.Debug().Err(err).Str("session_id", s.ID).Msg("dropping malformed command")
		return
	}

	switch cmd.Type {
	case types.CommandSubscribe:
		allowed := h.allowedLists(ctx, s.AccountID, cmd.ListIDs)
		subscribed := h.Subscribe(s.ID, allowed)
		h.reply(s, types.NewSubscribed(subscribed))
		h.logger.Debug().Str("session_id", s.ID).Strs("list_ids", subscribed).Msg("subscribed")
	case types.CommandUnsubscribe:
		lists := clientLists(cmd.ListIDs)
		h.Unsubscribe(s.ID, lists)
		h.reply(s, types.NewUnsubscribed(lists))
		h.logger.Debug().Str("session_id", s.ID).Strs("list_ids", lists).Msg("unsubscribed")
	case types.CommandPing:
		h.reply(s, types.NewPong())
	default:
		h.reply(s, types.NewError(types.CodeUnknownCommand, "unknown command "+string(cmd.Type)))
	}
}

// allowedLists drops reserved scopes and lists the account cannot see.
func (h *Hub) allowedLists(ctx context.Context, accountID string, ids []string) []string {
	lists := clientLists(ids)
	if h.access == nil {
		return lists
	}
	allowed := lists[:0]
	for _, id := range lists {
		if h.access.CanAccessList(ctx, accountID, id) {
			allowed = append(allowed, id)
		} else {
			h.logger.Info().Str("account_id", accountID).Str("list_id", id).Msg("subscribe denied")
		}
	}
	return allowed
}

func clientLists(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || types.IsReservedScope(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func (h *Hub) reply(s *Session, ev types.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Str("type", string(ev.Type)).Msg("encode reply")
		return
	}
	if err := s.enqueue(payload); err != nil {
		h.logger.Warn().Err(err).Str("session_id", s.ID).Msg("dropping reply")
	}
}

package types

import (
	"encoding/json"
	"errors"
)

// CommandType tags a client to server command.
type CommandType string

const (
	CommandSubscribe   CommandType = "subscribe"
	CommandUnsubscribe CommandType = "unsubscribe"
	CommandPing        CommandType = "ping"
)

// Command is a client to server message.
type Command struct {
	Type    CommandType `json:"type"`
	ListIDs []string    `json:"listIds,omitempty"`
}

// ErrMalformedCommand is returned for payloads without a type tag.
var ErrMalformedCommand = errors.New("malformed command")

// DecodeCommand parses a JSON command.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, err
	}
	if cmd.Type == "" {
		return Command{}, ErrMalformedCommand
	}
	return cmd, nil
}

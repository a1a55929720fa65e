package worker

import (
	"github.com/book-expert/events"
	"github.com/book-expert/media-bridge/internal/commands"
)

// CommandRequest is the JSON body sent to "<prefix>.<command>".
type CommandRequest struct {
	Header events.EventHeader `json:"header"`
	Args   commands.Args      `json:"args"`
}

// CommandReply is the JSON body answering a CommandRequest. Error is empty on success.
type CommandReply struct {
	Header  events.EventHeader `json:"header"`
	Command string             `json:"command"`
	Value   string             `json:"value"`
	Error   string             `json:"error,omitempty"`
}

// Subject returns the subject a command is served on.
func Subject(prefix, command string) string {
	return prefix + "." + command
}

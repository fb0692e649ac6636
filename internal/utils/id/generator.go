// Package id produces the prefixed identifiers used across the server.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// NewConversationID generates a conversation identifier.
func NewConversationID() string { return newIdentifier("conv") }

// NewTaskID generates a task identifier.
func NewTaskID() string { return newIdentifier("task") }

// NewMessageID generates a message identifier.
func NewMessageID() string { return newIdentifier("msg") }

// NewStepID generates a plan step identifier. Steps use a short id because
// they are echoed back by the model in validation verdicts.
func NewStepID() string {
	return "step_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// NewDocumentID generates a knowledge document identifier.
func NewDocumentID() string { return newIdentifier("doc") }

func newIdentifier(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

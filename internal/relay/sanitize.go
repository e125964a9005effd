package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/radiosilence/anthropic-play/internal/llm"
)

// Conversation limits enforced before any provider call is made. Requests
// that already violate the provider's conversational contract are rejected
// locally instead of being billed.
const (
	MaxMessageLength      = 10000
	MaxConversationLength = 100
)

// Validation errors carry user-facing text and surface as structured 400
// responses, never as stream events.
var (
	ErrEmptyConversation   = errors.New("Conversation is empty")
	ErrLastMessageNotUser  = errors.New("Conversation must end with a user message")
	ErrConversationTooLong = errors.New("Conversation too long")
)

// validRoles is the set of roles accepted on the send endpoint.
var validRoles = map[llm.Role]bool{
	llm.RoleUser:      true,
	llm.RoleAssistant: true,
}

// ValidateSchema checks the raw request shape: every message must carry a
// known role and non-empty content. Violations are schema errors (HTTP 400),
// distinct from conversation validation below.
func ValidateSchema(messages []llm.Message) error {
	for i, msg := range messages {
		if !validRoles[msg.Role] {
			return fmt.Errorf("invalid role %q at message %d: must be user or assistant", msg.Role, i)
		}
		if msg.Content == "" {
			return fmt.Errorf("empty content at message %d", i)
		}
	}
	return nil
}

// Sanitize drops messages whose trimmed content is empty, then collapses
// consecutive messages from the same role, keeping only the last of each
// run. Idempotent.
func Sanitize(messages []llm.Message) []llm.Message {
	pruned := make([]llm.Message, 0, len(messages))
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		pruned = append(pruned, msg)
	}

	collapsed := make([]llm.Message, 0, len(pruned))
	for _, msg := range pruned {
		if n := len(collapsed); n > 0 && collapsed[n-1].Role == msg.Role {
			collapsed[n-1] = msg
			continue
		}
		collapsed = append(collapsed, msg)
	}
	return collapsed
}

// ValidateConversation enforces the conversational contract on an already
// sanitized message list.
func ValidateConversation(messages []llm.Message) error {
	if len(messages) == 0 {
		return ErrEmptyConversation
	}
	if messages[len(messages)-1].Role != llm.RoleUser {
		return ErrLastMessageNotUser
	}
	for i, msg := range messages {
		if len(msg.Content) > MaxMessageLength {
			return fmt.Errorf("Message %d exceeds %d characters", i, MaxMessageLength)
		}
	}
	if len(messages) > MaxConversationLength {
		return ErrConversationTooLong
	}
	return nil
}

package convo

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("conversation not found")

// Store persists conversations, messages and tool-call audit records.
type Store interface {
	// ActiveConversation returns the user's single active conversation,
	// or ErrNotFound when none exists.
	ActiveConversation(ctx context.Context, userID string) (Conversation, error)
	// GetConversation looks a conversation up by id regardless of owner;
	// callers enforce ownership.
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	// CreateConversation opens a new active conversation for the user and
	// deactivates any previously active one.
	CreateConversation(ctx context.Context, userID string) (Conversation, error)

	// AppendTurn durably writes the turn unit: either all of it lands or
	// none of it does. It bumps the conversation's last_active_at.
	AppendTurn(ctx context.Context, w TurnWrite) (userMsg, assistantMsg Message, err error)

	// Messages returns up to limit most recent messages in ascending
	// sequence order.
	Messages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	// ToolCallRecords returns the conversation's audit records in
	// chronological order.
	ToolCallRecords(ctx context.Context, conversationID string, limit int) ([]ToolCallRecord, error)

	Close() error
}

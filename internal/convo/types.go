package convo

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type CallStatus string

const (
	CallStatusSucceeded    CallStatus = "succeeded"
	CallStatusFailed       CallStatus = "failed"
	CallStatusUnauthorized CallStatus = "unauthorized"
)

// Conversation is the durable container for one user's chat thread.
// At most one conversation per user is active at a time.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Message is one append-only chat entry. Seq is strictly increasing within
// a conversation and defines replay order.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Seq            int       `json:"seq"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToolCallRecord is the audit entry for the single tool invocation a turn
// may perform. It points at the assistant message it supports; foreign keys
// run one way only (record -> message -> conversation).
type ToolCallRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	MessageID      string         `json:"message_id"`
	ToolName       string         `json:"tool_name"`
	Arguments      map[string]any `json:"arguments"`
	Status         CallStatus     `json:"status"`
	ResultSummary  string         `json:"result_summary"`
	CreatedAt      time.Time      `json:"created_at"`
}

// TurnWrite is the unit persisted at the end of a turn: the user message,
// the assistant reply, and the optional audit record, written together.
// The store assigns ids, sequence numbers and timestamps, and fills the
// record's MessageID with the assistant message id.
type TurnWrite struct {
	ConversationID string
	UserText       string
	AssistantText  string
	Record         *ToolCallRecord
}

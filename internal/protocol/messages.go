package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pmontanari/taskchat/internal/convo"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientTurn    MessageType = "client_turn"
	TypeClientControl MessageType = "client_control"
	TypeAssistantTurn MessageType = "assistant_turn"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientTurn carries one user utterance. ConversationID is optional: when
// empty the server routes the turn to the user's active conversation.
type ClientTurn struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Text           string      `json:"text"`
	TSMs           int64       `json:"ts_ms,omitempty"`
}

type ClientControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// AssistantTurn is the server's reply to one ClientTurn.
type AssistantTurn struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Text           string      `json:"text"`
	ToolName       string      `json:"tool_name,omitempty"`
	ToolStatus     string      `json:"tool_status,omitempty"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientTurn:
		var msg ClientTurn
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid client_turn: empty text")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action == "" {
			return nil, errors.New("invalid client_control: empty action")
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, env.Type)
	}
}

func NewAssistantTurn(conversationID, text, toolName string, toolStatus convo.CallStatus) AssistantTurn {
	return AssistantTurn{
		Type:           TypeAssistantTurn,
		ConversationID: conversationID,
		Text:           text,
		ToolName:       toolName,
		ToolStatus:     string(toolStatus),
	}
}

func NewSystemEvent(code, detail string) SystemEvent {
	return SystemEvent{Type: TypeSystemEvent, Code: code, Detail: detail}
}

func NewErrorEvent(code string, retryable bool, detail string) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, Code: code, Retryable: retryable, Detail: detail}
}

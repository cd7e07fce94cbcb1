package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pmontanari/taskchat/internal/convo"
)

func TestParseClientMessageTurn(t *testing.T) {
	raw := []byte(`{"type":"client_turn","conversation_id":"c1","text":"add buy milk","ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	turn, ok := msg.(ClientTurn)
	if !ok {
		t.Fatalf("message type = %T, want ClientTurn", msg)
	}
	if turn.ConversationID != "c1" || turn.Text != "add buy milk" {
		t.Fatalf("unexpected client turn: %+v", turn)
	}
}

func TestParseClientMessageTurnWithoutConversation(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_turn","text":"hello"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	turn := msg.(ClientTurn)
	if turn.ConversationID != "" {
		t.Fatalf("ConversationID = %q, want empty", turn.ConversationID)
	}
}

func TestParseClientMessageRejectsEmptyText(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_turn","text":""}`)); err == nil {
		t.Fatalf("ParseClientMessage() error = nil, want empty-text error")
	}
}

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"ping"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != "ping" {
		t.Fatalf("Action = %q, want %q", control.Action, "ping")
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestAssistantTurnOmitsEmptyToolFields(t *testing.T) {
	out, err := json.Marshal(NewAssistantTurn("c1", "Hi!", "", convo.CallStatus("")))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := decoded["tool_name"]; ok {
		t.Fatalf("tool_name present in %s, want omitted", out)
	}
	if _, ok := decoded["tool_status"]; ok {
		t.Fatalf("tool_status present in %s, want omitted", out)
	}
}

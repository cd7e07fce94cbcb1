package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/engine"
	"github.com/pmontanari/taskchat/internal/protocol"
)

const (
	wsReadLimit     = 64 << 10
	wsReadTimeout   = 120 * time.Second
	wsWriteTimeout  = 10 * time.Second
	wsOutboundDepth = 64
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, wsOutboundDepth)

	// Single writer goroutine; gorilla connections do not allow
	// concurrent writes.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.observeWS("outbound", t)
				}
			}
		}
	}()

	send := func(msg any) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- msg:
			return true
		}
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			if !send(protocol.NewErrorEvent("invalid_client_message", false, err.Error())) {
				break
			}
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.observeWS("inbound", t)
		}

		switch msg := parsed.(type) {
		case protocol.ClientControl:
			if msg.Action == "ping" {
				if !send(protocol.NewSystemEvent("pong", "")) {
					return
				}
			}
		case protocol.ClientTurn:
			// Turns run inline: the engine serializes per conversation
			// anyway, so a second in-flight turn would only queue there.
			result, err := s.engine.HandleTurn(ctx, userID, msg.ConversationID, msg.Text)
			if err != nil {
				if !send(turnErrorEvent(err)) {
					return
				}
				continue
			}
			reply := protocol.NewAssistantTurn(result.ConversationID, result.AssistantText, "", "")
			if result.ToolCall != nil {
				reply = protocol.NewAssistantTurn(result.ConversationID, result.AssistantText,
					result.ToolCall.Name, result.ToolCall.Status)
			}
			if !send(reply) {
				return
			}
		}
	}

	cancel()
	<-writerDone
}

func turnErrorEvent(err error) protocol.ErrorEvent {
	switch {
	case errors.Is(err, engine.ErrEmptyUtterance):
		return protocol.NewErrorEvent("empty_text", false, "text must not be empty")
	case errors.Is(err, convo.ErrNotFound):
		return protocol.NewErrorEvent("conversation_not_found", false, "conversation not found")
	default:
		return protocol.NewErrorEvent("turn_failed", true, err.Error())
	}
}

func (s *Server) observeWS(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, string(t)).Inc()
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientTurn:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantTurn:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}

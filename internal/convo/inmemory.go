package convo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process conversation store for local/dev use
// and tests.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	activeByUser  map[string]string
	messages      map[string][]Message
	records       map[string][]ToolCallRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]*Conversation),
		activeByUser:  make(map[string]string),
		messages:      make(map[string][]Message),
		records:       make(map[string][]ToolCallRecord),
	}
}

func (s *InMemoryStore) ActiveConversation(_ context.Context, userID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := s.activeByUser[userID]
	if id == "" {
		return Conversation{}, ErrNotFound
	}
	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, conversationID string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return *c, nil
}

func (s *InMemoryStore) CreateConversation(_ context.Context, userID string) (Conversation, error) {
	now := time.Now().UTC()
	c := &Conversation{
		ID:           uuid.NewString(),
		UserID:       userID,
		IsActive:     true,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev := s.activeByUser[userID]; prev != "" {
		if pc, ok := s.conversations[prev]; ok {
			pc.IsActive = false
		}
	}
	s.conversations[c.ID] = c
	s.activeByUser[userID] = c.ID
	return *c, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, w TurnWrite) (Message, Message, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[w.ConversationID]
	if !ok {
		return Message{}, Message{}, ErrNotFound
	}

	seq := 0
	if msgs := s.messages[w.ConversationID]; len(msgs) > 0 {
		seq = msgs[len(msgs)-1].Seq
	}

	userMsg := Message{
		ID:             uuid.NewString(),
		ConversationID: w.ConversationID,
		Role:           RoleUser,
		Content:        w.UserText,
		Seq:            seq + 1,
		CreatedAt:      now,
	}
	assistantMsg := Message{
		ID:             uuid.NewString(),
		ConversationID: w.ConversationID,
		Role:           RoleAssistant,
		Content:        w.AssistantText,
		Seq:            seq + 2,
		CreatedAt:      now,
	}
	s.messages[w.ConversationID] = append(s.messages[w.ConversationID], userMsg, assistantMsg)

	if w.Record != nil {
		rec := *w.Record
		rec.ID = uuid.NewString()
		rec.ConversationID = w.ConversationID
		rec.MessageID = assistantMsg.ID
		rec.CreatedAt = now
		if rec.Arguments != nil {
			args := make(map[string]any, len(rec.Arguments))
			for k, v := range rec.Arguments {
				args[k] = v
			}
			rec.Arguments = args
		}
		s.records[w.ConversationID] = append(s.records[w.ConversationID], rec)
	}

	c.LastActiveAt = now
	return userMsg, assistantMsg, nil
}

func (s *InMemoryStore) Messages(_ context.Context, conversationID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	msgs := s.messages[conversationID]
	if limit <= 0 || limit > len(msgs) {
		limit = len(msgs)
	}
	out := make([]Message, limit)
	copy(out, msgs[len(msgs)-limit:])
	return out, nil
}

func (s *InMemoryStore) ToolCallRecords(_ context.Context, conversationID string, limit int) ([]ToolCallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	recs := s.records[conversationID]
	if limit <= 0 || limit > len(recs) {
		limit = len(recs)
	}
	out := make([]ToolCallRecord, limit)
	copy(out, recs[len(recs)-limit:])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

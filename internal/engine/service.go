package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/intent"
	"github.com/pmontanari/taskchat/internal/observability"
	"github.com/pmontanari/taskchat/internal/tools"
)

var (
	ErrEmptyUtterance = errors.New("empty utterance")
)

const (
	greetingReply = "Hi! I can help you manage your tasks. Try \"add buy milk\" or \"show my tasks\"."
	helpReply     = "I can add, list, update, complete and delete tasks. " +
		"For example: \"add buy milk\", \"show my tasks\", \"mark 7 done\", \"delete task 3\"."
	panicReply = "Something went wrong on my end. Please try again."
)

// ToolCallInfo surfaces what the turn dispatched, for API responses.
type ToolCallInfo struct {
	Name   string           `json:"name"`
	Status convo.CallStatus `json:"status"`
}

// TurnResult is the user-visible outcome of one chat turn.
type TurnResult struct {
	ConversationID string        `json:"conversation_id"`
	AssistantText  string        `json:"assistant_text"`
	ToolCall       *ToolCallInfo `json:"tool_call,omitempty"`
}

// Engine orchestrates one chat turn end to end: conversation lookup,
// intent resolution, tool dispatch and durable persistence of the turn.
// Turns on the same conversation are serialized; different conversations
// run concurrently.
type Engine struct {
	store         convo.Store
	resolver      *intent.Resolver
	dispatcher    *tools.Dispatcher
	metrics       *observability.Metrics
	contextWindow int

	userLocks  *lockRegistry
	convoLocks *lockRegistry
}

type Config struct {
	ContextWindow int
	LockIdleTTL   time.Duration
}

func New(store convo.Store, resolver *intent.Resolver, dispatcher *tools.Dispatcher, metrics *observability.Metrics, cfg Config) *Engine {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 10
	}
	return &Engine{
		store:         store,
		resolver:      resolver,
		dispatcher:    dispatcher,
		metrics:       metrics,
		contextWindow: cfg.ContextWindow,
		userLocks:     newLockRegistry(cfg.LockIdleTTL, nil),
		convoLocks:    newLockRegistry(cfg.LockIdleTTL, metrics),
	}
}

// StartJanitor begins background cleanup of idle lock entries. It returns
// once the goroutines are running; they stop when ctx is cancelled.
func (e *Engine) StartJanitor(ctx context.Context, interval time.Duration) {
	e.userLocks.StartJanitor(ctx, interval)
	e.convoLocks.StartJanitor(ctx, interval)
}

// HandleTurn runs one user utterance through the full pipeline. When
// conversationID is empty the user's active conversation is used, or a
// new one is opened. The turn either persists as a whole or not at all.
func (e *Engine) HandleTurn(ctx context.Context, userID, conversationID, utterance string) (result TurnResult, err error) {
	start := time.Now()
	outcome := "error"
	defer func() {
		if r := recover(); r != nil {
			log.Printf("turn panic: user=%s conversation=%s: %v", userID, conversationID, r)
			result = TurnResult{ConversationID: conversationID, AssistantText: panicReply}
			err = nil
			outcome = "panic"
		}
		e.metrics.ObserveTurn(outcome, time.Since(start))
	}()

	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		outcome = "rejected"
		return TurnResult{}, ErrEmptyUtterance
	}
	if strings.TrimSpace(userID) == "" {
		outcome = "rejected"
		return TurnResult{}, errors.New("missing user id")
	}

	conv, err := e.resolveConversation(ctx, userID, conversationID)
	if err != nil {
		outcome = "rejected"
		return TurnResult{}, err
	}

	release := e.convoLocks.acquire(conv.ID)
	defer release()

	recent, err := e.store.Messages(ctx, conv.ID, e.contextWindow)
	if err != nil {
		return TurnResult{}, fmt.Errorf("load context: %w", err)
	}

	decision := e.resolver.Resolve(ctx, userID, utterance, recent)

	var (
		assistantText string
		record        *convo.ToolCallRecord
		toolInfo      *ToolCallInfo
		mutated       bool
	)
	switch decision.Kind {
	case intent.KindGreeting:
		outcome = "greeting"
		assistantText = greetingReply
	case intent.KindHelp:
		outcome = "help"
		assistantText = helpReply
	case intent.KindUnresolved:
		outcome = "clarification"
		assistantText = decision.Clarification
	case intent.KindToolCall:
		res := e.dispatcher.Dispatch(ctx, userID, decision.Tool, decision.Args)
		assistantText = res.Message
		record = res.Record
		toolInfo = &ToolCallInfo{Name: decision.Tool, Status: res.Status}
		outcome = "tool_" + string(res.Status)
		mutated = res.Status == convo.CallStatusSucceeded && decision.Tool != tools.ToolListTasks
	default:
		outcome = "clarification"
		assistantText = decision.Clarification
	}

	// A cancelled caller must not leave a half-written turn behind.
	if ctxErr := ctx.Err(); ctxErr != nil && !mutated {
		return TurnResult{}, ctxErr
	}

	if record != nil {
		record.ConversationID = conv.ID
	}
	_, _, persistErr := e.store.AppendTurn(ctx, convo.TurnWrite{
		ConversationID: conv.ID,
		UserText:       utterance,
		AssistantText:  assistantText,
		Record:         record,
	})
	if persistErr != nil {
		e.metrics.ObservePersistenceFailure()
		if !mutated {
			return TurnResult{}, fmt.Errorf("persist turn: %w", persistErr)
		}
		// The task store already changed; swallowing the reply now would
		// hide a completed action from the user. Log for reconciliation
		// and deliver the confirmation anyway.
		log.Printf("turn persisted tool effect but not transcript: conversation=%s tool=%s err=%v",
			conv.ID, toolInfo.Name, persistErr)
	}

	return TurnResult{
		ConversationID: conv.ID,
		AssistantText:  assistantText,
		ToolCall:       toolInfo,
	}, nil
}

// History returns the conversation's most recent messages after checking
// the caller owns it.
func (e *Engine) History(ctx context.Context, userID, conversationID string, limit int) ([]convo.Message, error) {
	conv, err := e.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return e.store.Messages(ctx, conv.ID, limit)
}

// ToolCallRecords returns the conversation's audit trail after checking
// the caller owns it.
func (e *Engine) ToolCallRecords(ctx context.Context, userID, conversationID string, limit int) ([]convo.ToolCallRecord, error) {
	conv, err := e.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return e.store.ToolCallRecords(ctx, conv.ID, limit)
}

// ActiveConversation returns the user's current active conversation,
// creating one if none exists.
func (e *Engine) ActiveConversation(ctx context.Context, userID string) (convo.Conversation, error) {
	return e.resolveConversation(ctx, userID, "")
}

func (e *Engine) resolveConversation(ctx context.Context, userID, conversationID string) (convo.Conversation, error) {
	if conversationID != "" {
		return e.ownedConversation(ctx, userID, conversationID)
	}

	// Per-user lock so two concurrent first turns cannot both open a
	// fresh conversation.
	release := e.userLocks.acquire(userID)
	defer release()

	conv, err := e.store.ActiveConversation(ctx, userID)
	if errors.Is(err, convo.ErrNotFound) {
		return e.store.CreateConversation(ctx, userID)
	}
	return conv, err
}

// ownedConversation maps both a missing conversation and one owned by a
// different user to ErrNotFound, so responses never confirm another
// user's conversation exists.
func (e *Engine) ownedConversation(ctx context.Context, userID, conversationID string) (convo.Conversation, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return convo.Conversation{}, err
	}
	if conv.UserID != userID {
		return convo.Conversation{}, convo.ErrNotFound
	}
	return conv, nil
}

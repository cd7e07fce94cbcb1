package engine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pmontanari/taskchat/internal/convo"
	"github.com/pmontanari/taskchat/internal/intent"
	"github.com/pmontanari/taskchat/internal/taskstore"
	"github.com/pmontanari/taskchat/internal/tools"
)

type fixture struct {
	engine *Engine
	store  *convo.InMemoryStore
	client *taskstore.InMemoryClient
	mock   *intent.MockClassifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := convo.NewInMemoryStore()
	client := taskstore.NewInMemoryClient()
	mock := intent.NewMockClassifier()
	eng := New(
		store,
		intent.NewResolver(mock, time.Second, nil),
		tools.NewDispatcher(client, time.Second, nil),
		nil,
		Config{},
	)
	return &fixture{engine: eng, store: store, client: client, mock: mock}
}

func TestHandleTurnGreetingSkipsClassifier(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.HandleTurn(context.Background(), "alice", "", "hello")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.AssistantText != greetingReply {
		t.Fatalf("AssistantText = %q, want greeting", res.AssistantText)
	}
	if res.ToolCall != nil {
		t.Fatalf("ToolCall = %+v, want nil", res.ToolCall)
	}
	if f.mock.Calls() != 0 {
		t.Fatalf("classifier calls = %d, want 0 for fast path", f.mock.Calls())
	}

	// Greeting turns still persist as a full user/assistant pair.
	msgs, err := f.store.Messages(context.Background(), res.ConversationID, 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != convo.RoleUser || msgs[1].Role != convo.RoleAssistant {
		t.Fatalf("messages = %+v, want user then assistant", msgs)
	}
}

func TestHandleTurnCreatesTask(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.HandleTurn(context.Background(), "alice", "", "add buy milk")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.ToolCall == nil || res.ToolCall.Name != tools.ToolCreateTask {
		t.Fatalf("ToolCall = %+v, want create_task", res.ToolCall)
	}
	if res.ToolCall.Status != convo.CallStatusSucceeded {
		t.Fatalf("Status = %q, want %q", res.ToolCall.Status, convo.CallStatusSucceeded)
	}
	if !strings.Contains(res.AssistantText, "buy milk") {
		t.Fatalf("AssistantText = %q, want created title echoed", res.AssistantText)
	}

	tasks, err := f.client.List(context.Background(), "alice", taskstore.ListFilter{})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("List() = %v, %v, want one task", tasks, err)
	}

	recs, err := f.store.ToolCallRecords(context.Background(), res.ConversationID, 0)
	if err != nil {
		t.Fatalf("ToolCallRecords() error = %v", err)
	}
	if len(recs) != 1 || recs[0].ToolName != tools.ToolCreateTask || recs[0].Status != convo.CallStatusSucceeded {
		t.Fatalf("records = %+v, want one succeeded create_task record", recs)
	}
	if recs[0].MessageID == "" {
		t.Fatalf("record not linked to the assistant message: %+v", recs[0])
	}
}

func TestHandleTurnListsAndCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.engine.HandleTurn(ctx, "alice", "", "add water plants"); err != nil {
		t.Fatalf("HandleTurn(add) error = %v", err)
	}

	res, err := f.engine.HandleTurn(ctx, "alice", "", "show my tasks")
	if err != nil {
		t.Fatalf("HandleTurn(list) error = %v", err)
	}
	if !strings.Contains(res.AssistantText, "water plants") {
		t.Fatalf("list reply = %q, want task in listing", res.AssistantText)
	}

	res, err = f.engine.HandleTurn(ctx, "alice", "", "mark 1 done")
	if err != nil {
		t.Fatalf("HandleTurn(complete) error = %v", err)
	}
	if res.ToolCall == nil || res.ToolCall.Status != convo.CallStatusSucceeded {
		t.Fatalf("ToolCall = %+v, want succeeded complete", res.ToolCall)
	}

	tasks, _ := f.client.List(ctx, "alice", taskstore.ListFilter{})
	if len(tasks) != 1 || !tasks[0].Completed {
		t.Fatalf("tasks = %+v, want the task completed", tasks)
	}
}

func TestHandleTurnRefusesForeignTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bobTask, err := f.client.Create(ctx, "bob", taskstore.CreateRequest{Title: "bob's plan"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	res, err := f.engine.HandleTurn(ctx, "alice", "", "delete task 1")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.ToolCall == nil || res.ToolCall.Status != convo.CallStatusUnauthorized {
		t.Fatalf("ToolCall = %+v, want unauthorized", res.ToolCall)
	}

	missing, err := f.engine.HandleTurn(ctx, "alice", "", "delete task 9999")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.AssistantText != missing.AssistantText {
		t.Fatalf("refusal = %q, missing = %q, want identical text", res.AssistantText, missing.AssistantText)
	}

	if _, err := f.client.GetOwner(ctx, bobTask.ID); err != nil {
		t.Fatalf("bob's task gone after refusal: %v", err)
	}
}

func TestHandleTurnAsksWhichTask(t *testing.T) {
	f := newFixture(t)
	f.mock.Fixed = &intent.Prediction{
		Tool:      tools.ToolUpdateTask,
		Arguments: map[string]any{"title": "oat milk"},
	}

	res, err := f.engine.HandleTurn(context.Background(), "alice", "", "change the milk task to oat milk")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if res.ToolCall != nil {
		t.Fatalf("ToolCall = %+v, want no dispatch without a task id", res.ToolCall)
	}
	if !strings.Contains(res.AssistantText, "Which task") {
		t.Fatalf("AssistantText = %q, want clarification", res.AssistantText)
	}

	// The clarification turn persists like any other.
	msgs, _ := f.store.Messages(context.Background(), res.ConversationID, 0)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestHandleTurnReusesActiveConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.HandleTurn(ctx, "alice", "", "hello")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	second, err := f.engine.HandleTurn(ctx, "alice", "", "show my tasks")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if first.ConversationID != second.ConversationID {
		t.Fatalf("conversations differ: %s vs %s", first.ConversationID, second.ConversationID)
	}

	msgs, _ := f.store.Messages(ctx, first.ConversationID, 0)
	if len(msgs) != 4 {
		t.Fatalf("messages = %d, want 4", len(msgs))
	}
}

func TestHandleTurnConcurrentSequencesAreGapless(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.HandleTurn(ctx, "alice", "", "hello")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	const concurrent = 8
	var wg sync.WaitGroup
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.HandleTurn(ctx, "alice", first.ConversationID, "show my tasks"); err != nil {
				t.Errorf("HandleTurn() error = %v", err)
			}
		}()
	}
	wg.Wait()

	msgs, err := f.store.Messages(ctx, first.ConversationID, 0)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	want := 2 * (concurrent + 1)
	if len(msgs) != want {
		t.Fatalf("messages = %d, want %d", len(msgs), want)
	}
	seqs := make([]int, len(msgs))
	for i, m := range msgs {
		seqs[i] = m.Seq
	}
	sort.Ints(seqs)
	for i, seq := range seqs {
		if seq != i+1 {
			t.Fatalf("seqs = %v, want gapless 1..%d", seqs, want)
		}
	}
}

func TestHandleTurnRejectsEmptyUtterance(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.HandleTurn(context.Background(), "alice", "", "   ")
	if !errors.Is(err, ErrEmptyUtterance) {
		t.Fatalf("error = %v, want ErrEmptyUtterance", err)
	}

	// Nothing was created or written.
	if _, err := f.store.ActiveConversation(context.Background(), "alice"); !errors.Is(err, convo.ErrNotFound) {
		t.Fatalf("ActiveConversation() error = %v, want ErrNotFound", err)
	}
}

func TestHandleTurnRejectsForeignConversationID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.HandleTurn(ctx, "alice", "", "hello")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	_, err = f.engine.HandleTurn(ctx, "bob", res.ConversationID, "show my tasks")
	if !errors.Is(err, convo.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for foreign conversation", err)
	}
}

func TestHistoryChecksOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.HandleTurn(ctx, "alice", "", "hello")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}

	msgs, err := f.engine.History(ctx, "alice", res.ConversationID, 0)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("History(alice) = %v, %v, want 2 messages", msgs, err)
	}

	if _, err := f.engine.History(ctx, "bob", res.ConversationID, 0); !errors.Is(err, convo.ErrNotFound) {
		t.Fatalf("History(bob) error = %v, want ErrNotFound", err)
	}
}

// failingStore breaks AppendTurn to probe the partial-write policy.
type failingStore struct {
	*convo.InMemoryStore
	appendErr error
}

func (s *failingStore) AppendTurn(ctx context.Context, w convo.TurnWrite) (convo.Message, convo.Message, error) {
	if s.appendErr != nil {
		return convo.Message{}, convo.Message{}, s.appendErr
	}
	return s.InMemoryStore.AppendTurn(ctx, w)
}

func TestHandleTurnPersistFailureAfterMutation(t *testing.T) {
	store := &failingStore{InMemoryStore: convo.NewInMemoryStore(), appendErr: errors.New("disk on fire")}
	client := taskstore.NewInMemoryClient()
	eng := New(
		store,
		intent.NewResolver(intent.NewMockClassifier(), time.Second, nil),
		tools.NewDispatcher(client, time.Second, nil),
		nil,
		Config{},
	)
	ctx := context.Background()

	// The task was created, so the confirmation must still reach the user.
	res, err := eng.HandleTurn(ctx, "alice", "", "add buy milk")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v, want confirmation despite persist failure", err)
	}
	if !strings.Contains(res.AssistantText, "buy milk") {
		t.Fatalf("AssistantText = %q, want confirmation", res.AssistantText)
	}
	tasks, _ := client.List(ctx, "alice", taskstore.ListFilter{})
	if len(tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(tasks))
	}

	// A turn with no side effect surfaces the persistence error instead.
	if _, err := eng.HandleTurn(ctx, "alice", "", "hello"); err == nil {
		t.Fatalf("HandleTurn(greeting) error = nil, want persist error")
	}
}

package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initChatSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initChatSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			last_active_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_user_active ON conversations (user_id, is_active);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			seq INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (conversation_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq ON messages (conversation_id, seq);`,
		`CREATE TABLE IF NOT EXISTS tool_call_records (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			message_id TEXT NOT NULL REFERENCES messages(id),
			tool_name TEXT NOT NULL,
			arguments JSONB NOT NULL DEFAULT '{}'::jsonb,
			status TEXT NOT NULL,
			result_summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tool_call_records_conversation_created ON tool_call_records (conversation_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init chat schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) ActiveConversation(ctx context.Context, userID string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, is_active, created_at, last_active_at
		   FROM conversations
		  WHERE user_id=$1 AND is_active
		  ORDER BY created_at DESC LIMIT 1`,
		userID,
	)
	return scanConversation(row)
}

func (s *PostgresStore) GetConversation(ctx context.Context, conversationID string) (Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, is_active, created_at, last_active_at
		   FROM conversations WHERE id=$1`,
		conversationID,
	)
	return scanConversation(row)
}

func (s *PostgresStore) CreateConversation(ctx context.Context, userID string) (Conversation, error) {
	now := time.Now().UTC()
	c := Conversation{
		ID:           uuid.NewString(),
		UserID:       userID,
		IsActive:     true,
		CreatedAt:    now,
		LastActiveAt: now,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET is_active=FALSE WHERE user_id=$1 AND is_active`,
		userID,
	); err != nil {
		return Conversation{}, fmt.Errorf("deactivate prior conversation: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, user_id, is_active, created_at, last_active_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.UserID, c.IsActive, c.CreatedAt, c.LastActiveAt,
	); err != nil {
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, fmt.Errorf("commit tx: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) AppendTurn(ctx context.Context, w TurnWrite) (Message, Message, error) {
	now := time.Now().UTC()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seq int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id=$1`,
		w.ConversationID,
	).Scan(&seq)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("read last seq: %w", err)
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

	for _, msg := range []Message{userMsg, assistantMsg} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, seq, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.Seq, msg.CreatedAt,
		); err != nil {
			return Message{}, Message{}, fmt.Errorf("insert message: %w", err)
		}
	}

	if w.Record != nil {
		args := w.Record.Arguments
		if args == nil {
			args = map[string]any{}
		}
		payload, err := json.Marshal(args)
		if err != nil {
			return Message{}, Message{}, fmt.Errorf("marshal record arguments: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO tool_call_records (id, conversation_id, message_id, tool_name, arguments, status, result_summary, created_at)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			uuid.NewString(),
			w.ConversationID,
			assistantMsg.ID,
			w.Record.ToolName,
			payload,
			string(w.Record.Status),
			w.Record.ResultSummary,
			now,
		); err != nil {
			return Message{}, Message{}, fmt.Errorf("insert tool call record: %w", err)
		}
	}

	tag, err := tx.Exec(ctx,
		`UPDATE conversations SET last_active_at=$2 WHERE id=$1`,
		w.ConversationID, now,
	)
	if err != nil {
		return Message{}, Message{}, fmt.Errorf("touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Message{}, Message{}, ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, Message{}, fmt.Errorf("commit tx: %w", err)
	}
	return userMsg, assistantMsg, nil
}

func (s *PostgresStore) Messages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, seq, created_at
		   FROM messages WHERE conversation_id=$1
		  ORDER BY seq DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var (
			msg  Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.Seq, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = Role(role)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	// Reverse into ascending sequence order for replay.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresStore) ToolCallRecords(ctx context.Context, conversationID string, limit int) ([]ToolCallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, message_id, tool_name, arguments, status, result_summary, created_at
		   FROM tool_call_records WHERE conversation_id=$1
		  ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list tool call records: %w", err)
	}
	defer rows.Close()

	out := make([]ToolCallRecord, 0, limit)
	for rows.Next() {
		var (
			rec     ToolCallRecord
			status  string
			payload []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.MessageID, &rec.ToolName, &payload, &status, &rec.ResultSummary, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tool call record: %w", err)
		}
		rec.Status = CallStatus(status)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Arguments); err != nil {
				return nil, fmt.Errorf("decode record arguments: %w", err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tool call record rows: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	if err := row.Scan(&c.ID, &c.UserID, &c.IsActive, &c.CreatedAt, &c.LastActiveAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

package estatemcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SQLiteChatHistoryStorage persists conversations in a SQLite database. The
// caller opens the *sql.DB (driver registration stays in the caller, usually
// via github.com/mattn/go-sqlite3).
type SQLiteChatHistoryStorage struct {
	db  *sql.DB
	log Logger
}

// NewSQLiteChatHistoryStorage wraps an open database handle and creates the
// schema when missing.
func NewSQLiteChatHistoryStorage(db *sql.DB, log Logger) (*SQLiteChatHistoryStorage, error) {
	if db == nil {
		return nil, errors.New("database handle cannot be nil")
	}
	if log == nil {
		log = NewNullLogger()
	}

	storage := &SQLiteChatHistoryStorage{db: db, log: log}
	if err := storage.initSchema(context.Background()); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return storage, nil
}

func (s *SQLiteChatHistoryStorage) initSchema(ctx context.Context) error {
	const createChats = `
	CREATE TABLE IF NOT EXISTS chats (
		session_id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);`

	const createMessages = `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		generated_at DATETIME NOT NULL,
		output_token INTEGER DEFAULT 0,
		metadata TEXT DEFAULT '{}',
		FOREIGN KEY (session_id) REFERENCES chats(session_id) ON DELETE CASCADE
	);`

	for _, stmt := range []string{createChats, createMessages} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// CreateChat initializes a new conversation row.
func (s *SQLiteChatHistoryStorage) CreateChat(ctx context.Context) (*ChatHistory, error) {
	chat := &ChatHistory{
		SessionID: uuid.New(),
		Messages:  []HistoryMessage{},
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (session_id, created_at) VALUES (?, ?)`,
		chat.SessionID.String(), chat.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert chat: %w", err)
	}
	return chat, nil
}

// AddMessage appends a message to an existing conversation.
func (s *SQLiteChatHistoryStorage) AddMessage(ctx context.Context, sessionID uuid.UUID, message HistoryMessage) error {
	metadata, err := json.Marshal(message.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, text, generated_at, output_token, metadata)
		 SELECT session_id, ?, ?, ?, ?, ? FROM chats WHERE session_id = ?`,
		string(message.Role), message.Text, message.GeneratedAt,
		message.OutputToken, string(metadata), sessionID.String(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check insert: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chat with session id %s not found", sessionID)
	}
	return nil
}

// GetChat retrieves a conversation and its messages by session id.
func (s *SQLiteChatHistoryStorage) GetChat(ctx context.Context, sessionID uuid.UUID) (*ChatHistory, error) {
	chat := &ChatHistory{SessionID: sessionID}

	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM chats WHERE session_id = ?`, sessionID.String(),
	).Scan(&chat.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat with session id %s not found", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query chat: %w", err)
	}

	messages, err := s.loadMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	chat.Messages = messages
	return chat, nil
}

func (s *SQLiteChatHistoryStorage) loadMessages(ctx context.Context, sessionID uuid.UUID) ([]HistoryMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, generated_at, output_token, metadata
		 FROM messages WHERE session_id = ? ORDER BY id`,
		sessionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []HistoryMessage{}
	for rows.Next() {
		var msg HistoryMessage
		var role, metadata string
		if err := rows.Scan(&role, &msg.Text, &msg.GeneratedAt, &msg.OutputToken, &metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = Role(role)
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
				s.log.WithErr(err).Warn("skipping unreadable message metadata")
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// ListChatHistories returns all stored conversations with their messages.
func (s *SQLiteChatHistoryStorage) ListChatHistories(ctx context.Context) ([]ChatHistory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, created_at FROM chats ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var histories []ChatHistory
	for rows.Next() {
		var chat ChatHistory
		var id string
		if err := rows.Scan(&id, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chat.SessionID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse session id %q: %w", id, err)
		}
		histories = append(histories, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range histories {
		messages, err := s.loadMessages(ctx, histories[i].SessionID)
		if err != nil {
			return nil, err
		}
		histories[i].Messages = messages
	}
	return histories, nil
}

// DeleteChat removes a conversation and its messages.
func (s *SQLiteChatHistoryStorage) DeleteChat(ctx context.Context, sessionID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, sessionID.String()); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE session_id = ?`, sessionID.String())
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chat with session id %s not found", sessionID)
	}
	return tx.Commit()
}

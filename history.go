package estatemcp

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryMessage is one stored conversation entry.
type HistoryMessage struct {
	Role        Role                   `json:"role"`
	Text        string                 `json:"text"`
	GeneratedAt time.Time              `json:"generated_at"`
	OutputToken int64                  `json:"output_token"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ChatHistory is a stored conversation.
type ChatHistory struct {
	SessionID uuid.UUID        `json:"session_id"`
	Messages  []HistoryMessage `json:"messages"`
	CreatedAt time.Time        `json:"created_at"`
}

// ChatHistoryStorage persists conversations across turns.
type ChatHistoryStorage interface {
	// CreateChat initializes a new conversation.
	CreateChat(ctx context.Context) (*ChatHistory, error)

	// AddMessage appends a message to an existing conversation.
	AddMessage(ctx context.Context, sessionID uuid.UUID, message HistoryMessage) error

	// GetChat retrieves a conversation by session id.
	GetChat(ctx context.Context, sessionID uuid.UUID) (*ChatHistory, error)

	// ListChatHistories returns all stored conversations.
	ListChatHistories(ctx context.Context) ([]ChatHistory, error)

	// DeleteChat removes a conversation by session id.
	DeleteChat(ctx context.Context, sessionID uuid.UUID) error
}

package estatemcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryChatHistoryStorage keeps conversations in a map. It is the default
// storage when no database path is configured.
type InMemoryChatHistoryStorage struct {
	conversations map[uuid.UUID]*ChatHistory
	mu            sync.RWMutex
}

// NewInMemoryChatHistoryStorage creates an empty in-memory store.
func NewInMemoryChatHistoryStorage() *InMemoryChatHistoryStorage {
	return &InMemoryChatHistoryStorage{
		conversations: make(map[uuid.UUID]*ChatHistory),
	}
}

// CreateChat initializes a new conversation.
func (s *InMemoryChatHistoryStorage) CreateChat(ctx context.Context) (*ChatHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := &ChatHistory{
		SessionID: uuid.New(),
		Messages:  []HistoryMessage{},
		CreatedAt: time.Now(),
	}
	s.conversations[chat.SessionID] = chat
	return chat, nil
}

// AddMessage appends a message to an existing conversation.
func (s *InMemoryChatHistoryStorage) AddMessage(ctx context.Context, sessionID uuid.UUID, message HistoryMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, exists := s.conversations[sessionID]
	if !exists {
		return fmt.Errorf("chat with session id %s not found", sessionID)
	}
	chat.Messages = append(chat.Messages, message)
	return nil
}

// GetChat retrieves a conversation by session id.
func (s *InMemoryChatHistoryStorage) GetChat(ctx context.Context, sessionID uuid.UUID) (*ChatHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, exists := s.conversations[sessionID]
	if !exists {
		return nil, fmt.Errorf("chat with session id %s not found", sessionID)
	}
	return chat, nil
}

// ListChatHistories returns all stored conversations.
func (s *InMemoryChatHistoryStorage) ListChatHistories(ctx context.Context) ([]ChatHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	histories := make([]ChatHistory, 0, len(s.conversations))
	for _, chat := range s.conversations {
		histories = append(histories, *chat)
	}
	return histories, nil
}

// DeleteChat removes a conversation by session id.
func (s *InMemoryChatHistoryStorage) DeleteChat(ctx context.Context, sessionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[sessionID]; !exists {
		return fmt.Errorf("chat with session id %s not found", sessionID)
	}
	delete(s.conversations, sessionID)
	return nil
}

package estatemcp

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStorage(t *testing.T) *SQLiteChatHistoryStorage {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	storage, err := NewSQLiteChatHistoryStorage(db, NewNullLogger())
	require.NoError(t, err)
	return storage
}

func TestSQLiteStorageLifecycle(t *testing.T) {
	storage := newTestSQLiteStorage(t)
	ctx := context.Background()

	chat, err := storage.CreateChat(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, chat.SessionID)

	messages := []HistoryMessage{
		{Role: RoleUser, Text: "What is the cheapest estate?", GeneratedAt: time.Now().UTC()},
		{Role: RoleModel, Text: "The Sundial Bungalow.", GeneratedAt: time.Now().UTC(), OutputToken: 12,
			Metadata: map[string]interface{}{"model": "gemini-2.0-flash"}},
	}
	for _, msg := range messages {
		require.NoError(t, storage.AddMessage(ctx, chat.SessionID, msg))
	}

	got, err := storage.GetChat(ctx, chat.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, RoleUser, got.Messages[0].Role)
	assert.Equal(t, "The Sundial Bungalow.", got.Messages[1].Text)
	assert.Equal(t, int64(12), got.Messages[1].OutputToken)
	assert.Equal(t, "gemini-2.0-flash", got.Messages[1].Metadata["model"])

	histories, err := storage.ListChatHistories(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 1)
	assert.Len(t, histories[0].Messages, 2)

	require.NoError(t, storage.DeleteChat(ctx, chat.SessionID))
	_, err = storage.GetChat(ctx, chat.SessionID)
	assert.Error(t, err)
}

func TestSQLiteStorageUnknownSession(t *testing.T) {
	storage := newTestSQLiteStorage(t)
	ctx := context.Background()
	missing := uuid.New()

	err := storage.AddMessage(ctx, missing, HistoryMessage{Role: RoleUser, Text: "hi", GeneratedAt: time.Now()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	_, err = storage.GetChat(ctx, missing)
	assert.Error(t, err)

	assert.Error(t, storage.DeleteChat(ctx, missing))
}

func TestSQLiteStorageMessageOrderIsStable(t *testing.T) {
	storage := newTestSQLiteStorage(t)
	ctx := context.Background()

	chat, err := storage.CreateChat(ctx)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, storage.AddMessage(ctx, chat.SessionID, HistoryMessage{
			Role:        RoleUser,
			Text:        fmt.Sprintf("message %d", i),
			GeneratedAt: time.Now().UTC(),
		}))
	}

	got, err := storage.GetChat(ctx, chat.SessionID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 5)
	for i, msg := range got.Messages {
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
	}
}

func TestSQLiteStorageNilDB(t *testing.T) {
	_, err := NewSQLiteChatHistoryStorage(nil, nil)
	assert.Error(t, err)
}

func TestSQLiteStorageQueryFailures(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chats").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS messages").WillReturnResult(sqlmock.NewResult(0, 0))

	storage, err := NewSQLiteChatHistoryStorage(db, NewNullLogger())
	require.NoError(t, err)

	ctx := context.Background()

	mock.ExpectExec("INSERT INTO chats").WillReturnError(fmt.Errorf("disk full"))
	_, err = storage.CreateChat(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	sessionID := uuid.New()
	mock.ExpectQuery("SELECT created_at FROM chats").
		WithArgs(sessionID.String()).
		WillReturnError(fmt.Errorf("table locked"))
	_, err = storage.GetChat(ctx, sessionID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table locked")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStorageSchemaFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS chats").WillReturnError(fmt.Errorf("read-only database"))

	_, err = NewSQLiteChatHistoryStorage(db, NewNullLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize schema")
}

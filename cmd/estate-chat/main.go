// Command estate-chat is an interactive CLI that lets a Gemini model answer
// questions about the estate catalog by calling tools on a spawned
// estate-server subprocess.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/estatemcp/estatemcp"
	"github.com/estatemcp/estatemcp/mcp"
)

// systemInstruction sets tone and tool-use policy for the model. It is opaque
// configuration, not part of the protocol.
const systemInstruction = `You are a friendly real-estate assistant. Answer questions about the
property catalog using the available tools. Call list_estates when you need
the set of property names and get_estate_details when asked about a specific
property. Keep answers short and concrete; never invent listings.`

// Config is loaded from the environment.
type Config struct {
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY"`
	GeminiModel   string `envconfig:"GEMINI_MODEL" default:"gemini-2.0-flash"`
	ServerCommand string `envconfig:"ESTATE_SERVER_COMMAND" default:"estate-server"`
	MaxTokens     int32  `envconfig:"MAX_OUTPUT_TOKENS" default:"1024"`
	HistoryDBPath string `envconfig:"HISTORY_DB_PATH"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	if err := run(context.Background(), cfg, log); err != nil {
		log.WithError(err).Fatal("estate-chat exited")
	}
}

func run(ctx context.Context, cfg Config, log *logrus.Logger) error {
	appLog := estatemcp.NewLogrusLogger(log)

	// A missing credential fails here, before any subprocess is spawned.
	service, err := estatemcp.NewGoogleGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return fmt.Errorf("completion service: %w", err)
	}
	defer service.Close()

	completion, err := estatemcp.NewGeminiCompletion(service, appLog)
	if err != nil {
		return err
	}

	client := mcp.NewStdioClient(mcp.StdioClientConfig{
		Command:       cfg.ServerCommand,
		ClientName:    "estate-chat",
		ClientVersion: "0.1.0",
		Logger:        log,
	})
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to estate server: %w", err)
	}
	defer client.Close()

	storage, closeStorage, err := openStorage(cfg, appLog)
	if err != nil {
		return err
	}
	defer closeStorage()

	session, err := storage.CreateChat(ctx)
	if err != nil {
		return fmt.Errorf("create chat session: %w", err)
	}
	log.WithField("session", session.SessionID).Info("chat session started")

	requestConfig := estatemcp.NewRequestConfig(
		estatemcp.WithMaxOutputTokens(cfg.MaxTokens),
		estatemcp.WithSystemInstruction(systemInstruction),
	)
	orchestrator, err := estatemcp.NewOrchestrator(completion, client, requestConfig, appLog, os.Stdout)
	if err != nil {
		return err
	}

	conv := estatemcp.NewConversation()
	fmt.Println("Ask about the estate catalog (type 'exit' to quit).")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		before := conv.Len()
		if err := orchestrator.RunTurn(ctx, conv, input); err != nil {
			// Fatal per-turn failures end the session; a production server
			// would report per-turn and keep serving.
			return fmt.Errorf("turn failed: %w", err)
		}
		recordTurn(ctx, storage, session, conv, before, appLog)
	}
	return scanner.Err()
}

func openStorage(cfg Config, log estatemcp.Logger) (estatemcp.ChatHistoryStorage, func(), error) {
	if cfg.HistoryDBPath == "" {
		return estatemcp.NewInMemoryChatHistoryStorage(), func() {}, nil
	}

	db, err := sql.Open("sqlite3", cfg.HistoryDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open history database: %w", err)
	}
	storage, err := estatemcp.NewSQLiteChatHistoryStorage(db, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return storage, func() { db.Close() }, nil
}

// recordTurn stores every message the turn appended to the conversation.
func recordTurn(ctx context.Context, storage estatemcp.ChatHistoryStorage, session *estatemcp.ChatHistory, conv *estatemcp.Conversation, from int, log estatemcp.Logger) {
	messages := conv.Messages()
	for _, msg := range messages[from:] {
		entry := estatemcp.HistoryMessage{
			Role:        msg.Role,
			Text:        msg.Text(),
			GeneratedAt: time.Now().UTC(),
		}
		if err := storage.AddMessage(ctx, session.SessionID, entry); err != nil {
			log.WithErr(err).Warn("failed to record chat history message")
			return
		}
	}
}

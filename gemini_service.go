package estatemcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiModelService defines the interface for interacting with the Gemini
// model, kept narrow so tests can substitute a scripted implementation.
type GeminiModelService interface {
	ConfigureModel(config *genai.GenerationConfig, tools []*genai.Tool, system *genai.Content) error
	StartChat(history []*genai.Content) ChatSessionService
}

// ChatSessionService manages one chat session's history and message sends.
type ChatSessionService interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
	History() []*genai.Content
	AppendHistory(content *genai.Content)
}

// GoogleGeminiService implements GeminiModelService using the genai client.
type GoogleGeminiService struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGoogleGeminiService builds the real Gemini-backed service. A missing
// api key is a startup failure surfaced here, before any protocol traffic.
func NewGoogleGeminiService(ctx context.Context, apiKey, modelName string) (*GoogleGeminiService, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is not set")
	}
	if modelName == "" {
		return nil, errors.New("gemini model name is not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GoogleGeminiService{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// ConfigureModel applies generation config, the tool catalog and the system
// instruction to the underlying model.
func (g *GoogleGeminiService) ConfigureModel(config *genai.GenerationConfig, tools []*genai.Tool, system *genai.Content) error {
	g.model.GenerationConfig = *config
	g.model.Tools = tools
	g.model.SystemInstruction = system
	return nil
}

// StartChat opens a chat session seeded with the given history.
func (g *GoogleGeminiService) StartChat(history []*genai.Content) ChatSessionService {
	cs := g.model.StartChat()
	cs.History = history
	return &googleChatSession{cs: cs}
}

// Close releases the underlying client.
func (g *GoogleGeminiService) Close() error {
	return g.client.Close()
}

type googleChatSession struct {
	cs *genai.ChatSession
}

func (s *googleChatSession) SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	return s.cs.SendMessage(ctx, parts...)
}

func (s *googleChatSession) History() []*genai.Content {
	return s.cs.History
}

func (s *googleChatSession) AppendHistory(content *genai.Content) {
	s.cs.History = append(s.cs.History, content)
}

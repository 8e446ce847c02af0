package estatemcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/estatemcp/estatemcp/mcp"
)

// Gemini wire roles.
const (
	geminiRoleUser     = "user"
	geminiRoleModel    = "model"
	geminiRoleFunction = "function"
)

// GeminiCompletion implements CompletionService on top of a Gemini model
// service. It performs a single completion per call; deciding whether to run
// a tool and requesting a follow-up belongs to the orchestrator, not here.
type GeminiCompletion struct {
	service GeminiModelService
	log     Logger
}

// NewGeminiCompletion wraps a model service.
func NewGeminiCompletion(service GeminiModelService, log Logger) (*GeminiCompletion, error) {
	if service == nil {
		return nil, errors.New("gemini model service cannot be nil")
	}
	if log == nil {
		log = NewNullLogger()
	}
	return &GeminiCompletion{service: service, log: log}, nil
}

// Complete sends the conversation and tool catalog to Gemini and maps the
// first response's candidates back into conversation messages.
func (p *GeminiCompletion) Complete(ctx context.Context, messages []Message, tools []mcp.Tool, config RequestConfig) ([]Candidate, error) {
	if len(messages) == 0 {
		return nil, errors.New("cannot complete an empty conversation")
	}

	genaiConfig, err := mapRequestConfig(config)
	if err != nil {
		return nil, fmt.Errorf("map request config: %w", err)
	}

	genaiTools := make([]*genai.Tool, 0, len(tools))
	for _, tool := range tools {
		gTool, err := ConvertToGenaiTool(tool)
		if err != nil {
			return nil, fmt.Errorf("convert tool %q: %w", tool.Name, err)
		}
		genaiTools = append(genaiTools, gTool)
	}

	var system *genai.Content
	if config.SystemInstruction != "" {
		system = &genai.Content{Parts: []genai.Part{genai.Text(config.SystemInstruction)}}
	}
	if err := p.service.ConfigureModel(genaiConfig, genaiTools, system); err != nil {
		return nil, fmt.Errorf("configure gemini model: %w", err)
	}

	contents, err := mapMessagesToGenaiContent(messages)
	if err != nil {
		return nil, fmt.Errorf("map conversation: %w", err)
	}

	// The session is seeded with everything but the final message; the final
	// message's parts are what we send.
	history := contents[:len(contents)-1]
	sendParts := contents[len(contents)-1].Parts
	if len(sendParts) == 0 {
		return nil, errors.New("final conversation message has no parts")
	}

	session := p.service.StartChat(history)
	p.log.WithFields(map[string]interface{}{
		"history": len(history),
		"tools":   len(tools),
	}).Debug("sending completion request")

	resp, err := session.SendMessage(ctx, sendParts...)
	if err != nil {
		return nil, fmt.Errorf("gemini send message: %w", err)
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return nil, fmt.Errorf("request blocked by api: %s", resp.PromptFeedback.BlockReason.String())
		}
		return nil, errors.New("gemini returned no candidates")
	}

	var tokenCount int32
	if resp.UsageMetadata != nil {
		tokenCount = resp.UsageMetadata.CandidatesTokenCount
	}

	candidates := make([]Candidate, 0, len(resp.Candidates))
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		msg, err := mapGenaiContentToMessage(cand.Content)
		if err != nil {
			return nil, fmt.Errorf("map candidate: %w", err)
		}
		candidates = append(candidates, Candidate{Message: msg, TokenCount: tokenCount})
	}
	if len(candidates) == 0 {
		return nil, errors.New("gemini candidates carried no content")
	}
	return candidates, nil
}

func mapMessagesToGenaiContent(messages []Message) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role, err := genaiRoleFor(msg)
		if err != nil {
			return nil, err
		}

		parts := make([]genai.Part, 0, len(msg.Parts))
		for _, part := range msg.Parts {
			switch v := part.(type) {
			case TextPart:
				parts = append(parts, genai.Text(v.Text))
			case FunctionCallPart:
				parts = append(parts, genai.FunctionCall{Name: v.Name, Args: v.Args})
			case FunctionResponsePart:
				parts = append(parts, genai.FunctionResponse{Name: v.Name, Response: v.Response})
			default:
				return nil, fmt.Errorf("unknown part type %T", part)
			}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	if len(contents) > 0 && contents[0].Role == geminiRoleModel {
		return nil, errors.New("conversation cannot start with a model message")
	}
	return contents, nil
}

// genaiRoleFor maps a message role to the Gemini wire role. A user message
// carrying a function response goes over as the dedicated function role.
func genaiRoleFor(msg Message) (string, error) {
	for _, part := range msg.Parts {
		if _, ok := part.(FunctionResponsePart); ok {
			return geminiRoleFunction, nil
		}
	}
	switch msg.Role {
	case RoleUser:
		return geminiRoleUser, nil
	case RoleModel:
		return geminiRoleModel, nil
	default:
		return "", fmt.Errorf("unsupported message role %q", msg.Role)
	}
}

func mapGenaiContentToMessage(content *genai.Content) (Message, error) {
	msg := Message{Role: RoleModel}
	for _, part := range content.Parts {
		switch v := part.(type) {
		case genai.Text:
			msg.Parts = append(msg.Parts, TextPart{Text: string(v)})
		case genai.FunctionCall:
			msg.Parts = append(msg.Parts, FunctionCallPart{Name: v.Name, Args: v.Args})
		case *genai.FunctionCall:
			msg.Parts = append(msg.Parts, FunctionCallPart{Name: v.Name, Args: v.Args})
		default:
			// Other part kinds (blobs, executable code) are outside this
			// system's conversation model; drop them rather than fail.
			continue
		}
	}
	if len(msg.Parts) == 0 {
		return Message{}, errors.New("candidate content had no usable parts")
	}
	return msg, nil
}

func mapRequestConfig(config RequestConfig) (*genai.GenerationConfig, error) {
	genaiConfig := &genai.GenerationConfig{}
	if config.MaxOutputTokens > 0 {
		maxTokens := config.MaxOutputTokens
		genaiConfig.MaxOutputTokens = &maxTokens
	}
	if config.Temperature >= 0 {
		temp := config.Temperature
		genaiConfig.Temperature = &temp
	}
	if config.TopP > 0 {
		topP := config.TopP
		genaiConfig.TopP = &topP
	}
	if config.TopK > 0 {
		topK := config.TopK
		genaiConfig.TopK = &topK
	}
	return genaiConfig, nil
}

// IntermediateJSONSchema is the subset of JSON Schema carried by tool
// input schemas.
type IntermediateJSONSchema struct {
	Type        string                             `json:"type"`
	Description string                             `json:"description,omitempty"`
	Properties  map[string]*IntermediateJSONSchema `json:"properties,omitempty"`
	Required    []string                           `json:"required,omitempty"`
	Items       *IntermediateJSONSchema            `json:"items,omitempty"`
	Enum        []string                           `json:"enum,omitempty"`
}

func convertJSONSchemaToGenaiSchema(js *IntermediateJSONSchema) (*genai.Schema, error) {
	if js == nil {
		return nil, nil
	}

	gs := &genai.Schema{
		Description: js.Description,
		Required:    js.Required,
		Enum:        js.Enum,
	}

	switch js.Type {
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	case "array":
		gs.Type = genai.TypeArray
		items, err := convertJSONSchemaToGenaiSchema(js.Items)
		if err != nil {
			return nil, fmt.Errorf("convert array items: %w", err)
		}
		gs.Items = items
	case "object":
		gs.Type = genai.TypeObject
		if len(js.Properties) > 0 {
			gs.Properties = make(map[string]*genai.Schema, len(js.Properties))
			for k, v := range js.Properties {
				prop, err := convertJSONSchemaToGenaiSchema(v)
				if err != nil {
					return nil, fmt.Errorf("convert property %q: %w", k, err)
				}
				gs.Properties[k] = prop
			}
		}
	case "":
		gs.Type = genai.TypeUnspecified
	default:
		return nil, fmt.Errorf("unsupported json schema type %q", js.Type)
	}

	return gs, nil
}

// ConvertToGenaiTool maps a protocol tool descriptor to a genai function
// declaration.
func ConvertToGenaiTool(tool mcp.Tool) (*genai.Tool, error) {
	var parameters *genai.Schema
	if len(tool.InputSchema) > 0 && string(tool.InputSchema) != "null" {
		var intermediate IntermediateJSONSchema
		if err := json.Unmarshal(tool.InputSchema, &intermediate); err != nil {
			return nil, fmt.Errorf("unmarshal input schema: %w", err)
		}
		var err error
		parameters, err = convertJSONSchemaToGenaiSchema(&intermediate)
		if err != nil {
			return nil, fmt.Errorf("convert input schema: %w", err)
		}
	}

	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  parameters,
		}},
	}, nil
}

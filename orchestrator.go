package estatemcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/estatemcp/estatemcp/mcp"
)

// ToolExecutor is the slice of the session layer the orchestrator needs: the
// negotiated tool catalog and the ability to invoke one tool. *mcp.StdioClient
// satisfies it.
type ToolExecutor interface {
	Tools() []mcp.Tool
	CallTool(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error)
}

// turnState tracks where a single user turn is in its lifecycle. The state is
// explicit rather than inferred from the shape of the last response.
type turnState int

const (
	turnAwaitingCompletion turnState = iota
	turnAwaitingToolResult
	turnAwaitingFollowUp
	turnDone
)

func (s turnState) String() string {
	switch s {
	case turnAwaitingCompletion:
		return "awaiting-completion"
	case turnAwaitingToolResult:
		return "awaiting-tool-result"
	case turnAwaitingFollowUp:
		return "awaiting-follow-up"
	case turnDone:
		return "done"
	default:
		return fmt.Sprintf("turnState(%d)", int(s))
	}
}

// Orchestrator runs tool-augmented completion turns: it sends the
// conversation and the tool catalog to the completion service, executes at
// most one tool call per turn against the server, and requests exactly one
// follow-up completion after a tool result.
type Orchestrator struct {
	completion CompletionService
	executor   ToolExecutor
	config     RequestConfig
	log        Logger
	out        io.Writer
}

// NewOrchestrator wires the orchestrator. out receives the model's text for
// the user and defaults to stdout.
func NewOrchestrator(completion CompletionService, executor ToolExecutor, config RequestConfig, log Logger, out io.Writer) (*Orchestrator, error) {
	if completion == nil {
		return nil, fmt.Errorf("completion service cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("tool executor cannot be nil")
	}
	if log == nil {
		log = NewNullLogger()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Orchestrator{
		completion: completion,
		executor:   executor,
		config:     config,
		log:        log,
		out:        out,
	}, nil
}

// RunTurn appends the user's input to the conversation and drives one turn to
// completion. Errors from the completion service or a non-JSON tool result
// are not recovered here; they propagate so the caller can end the turn.
func (o *Orchestrator) RunTurn(ctx context.Context, conv *Conversation, input string) error {
	conv.AppendUserText(input)

	state := turnAwaitingCompletion
	var pendingCall FunctionCallPart

	for state != turnDone {
		o.log.WithFields(map[string]interface{}{"state": state.String()}).Debug("turn step")

		switch state {
		case turnAwaitingCompletion:
			msg, err := o.complete(ctx, conv)
			if err != nil {
				return err
			}
			if call, ok := lastFunctionCall(msg); ok {
				pendingCall = call
				state = turnAwaitingToolResult
				continue
			}
			o.printText(msg)
			state = turnDone

		case turnAwaitingToolResult:
			if err := o.executeTool(ctx, conv, pendingCall); err != nil {
				return err
			}
			state = turnAwaitingFollowUp

		case turnAwaitingFollowUp:
			msg, err := o.complete(ctx, conv)
			if err != nil {
				return err
			}
			if _, ok := lastFunctionCall(msg); ok {
				// One tool call per turn. A second request is not honored.
				o.log.Warn("model requested another tool call after the follow-up; ending turn")
			}
			o.printText(msg)
			state = turnDone
		}
	}
	return nil
}

// complete sends the conversation to the completion service, appends the
// first candidate's message and returns it.
func (o *Orchestrator) complete(ctx context.Context, conv *Conversation) (Message, error) {
	if call, unanswered := conv.UnansweredCall(); unanswered {
		return Message{}, fmt.Errorf("conversation has an unanswered call to %q; refusing to complete", call.Name)
	}

	candidates, err := o.completion.Complete(ctx, conv.Messages(), o.executor.Tools(), o.config)
	if err != nil {
		return Message{}, fmt.Errorf("completion failed: %w", err)
	}
	if len(candidates) == 0 {
		return Message{}, fmt.Errorf("completion service returned no candidates")
	}

	msg := candidates[0].Message
	conv.Append(msg)
	return msg, nil
}

// executeTool issues the tools/call, parses the text payload as JSON and
// appends the function response to the conversation.
func (o *Orchestrator) executeTool(ctx context.Context, conv *Conversation, call FunctionCallPart) error {
	ctx, span := StartSpan(ctx, "Orchestrator.ExecuteTool")
	defer span.End()
	span.SetAttributes(attribute.String("tool_name", call.Name))

	args, err := json.Marshal(call.Args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("marshal arguments for %q: %w", call.Name, err)
	}

	o.log.WithFields(map[string]interface{}{
		"tool": call.Name,
		"args": string(args),
	}).Info("invoking tool")

	result, err := o.executor.CallTool(ctx, mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("tool call %q failed: %w", call.Name, err)
	}

	payload, err := parseToolPayload(result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("tool %q: %w", call.Name, err)
	}
	span.SetAttributes(attribute.Int("content_length", len(result.Content)))

	conv.Append(Message{
		Role: RoleUser,
		Parts: []Part{FunctionResponsePart{
			ID:       call.ID,
			Name:     call.Name,
			Response: payload,
		}},
	})
	return nil
}

// parseToolPayload extracts the first text content of a tool result and
// parses it as a JSON object.
func parseToolPayload(result mcp.CallToolResult) (map[string]interface{}, error) {
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("result carried no content")
	}
	var text string
	for _, c := range result.Content {
		if c.Type == "text" {
			text = c.Text
			break
		}
	}
	if text == "" {
		return nil, fmt.Errorf("result carried no text content")
	}

	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("result text is not valid JSON: %w", err)
	}
	return payload, nil
}

// lastFunctionCall inspects only the final part of a message for a function
// call. Responses occasionally carry text parts before the call; earlier
// parts are deliberately not scanned so behavior stays deterministic with
// services that always place the call last.
func lastFunctionCall(msg Message) (FunctionCallPart, bool) {
	if len(msg.Parts) == 0 {
		return FunctionCallPart{}, false
	}
	call, ok := msg.Parts[len(msg.Parts)-1].(FunctionCallPart)
	return call, ok
}

func (o *Orchestrator) printText(msg Message) {
	if text := msg.Text(); text != "" {
		fmt.Fprintln(o.out, text)
	}
}

package estatemcp

import (
	"encoding/json"
	"fmt"
)

// Role tags the originator of a conversation message. Function results are
// user-originated context even though the process produced them.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one element of a message. It is a closed set of variants: plain
// text, a function-call request from the model, or the function result fed
// back into the conversation.
type Part interface {
	partKind() string
}

// TextPart is plain text content.
type TextPart struct {
	Text string
}

// FunctionCallPart is a model-originated request to invoke a tool. ID is an
// optional correlation id; some completion services never supply one, in
// which case responses correlate by Name.
type FunctionCallPart struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// FunctionResponsePart carries a tool result back into the conversation,
// paired with the call it answers.
type FunctionResponsePart struct {
	ID       string
	Name     string
	Response map[string]interface{}
}

func (TextPart) partKind() string             { return "text" }
func (FunctionCallPart) partKind() string     { return "functionCall" }
func (FunctionResponsePart) partKind() string { return "functionResponse" }

// Message is one turn element: a role plus an ordered list of parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Text concatenates the message's text parts.
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if t, ok := p.(TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// partEnvelope is the serialized form of a Part, tagged by type and validated
// when decoded.
type partEnvelope struct {
	Type     string                 `json:"type"`
	Text     string                 `json:"text,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Name     string                 `json:"name,omitempty"`
	Args     map[string]interface{} `json:"args,omitempty"`
	Response map[string]interface{} `json:"response,omitempty"`
}

// MarshalJSON encodes the message with type-tagged parts.
func (m Message) MarshalJSON() ([]byte, error) {
	envelopes := make([]partEnvelope, 0, len(m.Parts))
	for _, p := range m.Parts {
		switch v := p.(type) {
		case TextPart:
			envelopes = append(envelopes, partEnvelope{Type: "text", Text: v.Text})
		case FunctionCallPart:
			envelopes = append(envelopes, partEnvelope{Type: "functionCall", ID: v.ID, Name: v.Name, Args: v.Args})
		case FunctionResponsePart:
			envelopes = append(envelopes, partEnvelope{Type: "functionResponse", ID: v.ID, Name: v.Name, Response: v.Response})
		default:
			return nil, fmt.Errorf("unknown part type %T", p)
		}
	}
	return json.Marshal(struct {
		Role  Role           `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}{Role: m.Role, Parts: envelopes})
}

// UnmarshalJSON decodes a message, rejecting unknown roles and part types at
// the boundary instead of trusting free-form data.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire struct {
		Role  Role           `json:"role"`
		Parts []partEnvelope `json:"parts"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Role != RoleUser && wire.Role != RoleModel {
		return fmt.Errorf("unknown message role %q", wire.Role)
	}

	parts := make([]Part, 0, len(wire.Parts))
	for _, env := range wire.Parts {
		switch env.Type {
		case "text":
			parts = append(parts, TextPart{Text: env.Text})
		case "functionCall":
			if env.Name == "" {
				return fmt.Errorf("functionCall part missing name")
			}
			parts = append(parts, FunctionCallPart{ID: env.ID, Name: env.Name, Args: env.Args})
		case "functionResponse":
			if env.Name == "" {
				return fmt.Errorf("functionResponse part missing name")
			}
			parts = append(parts, FunctionResponsePart{ID: env.ID, Name: env.Name, Response: env.Response})
		default:
			return fmt.Errorf("unknown part type %q", env.Type)
		}
	}

	m.Role = wire.Role
	m.Parts = parts
	return nil
}

// Conversation is the ordered, append-only message history for a session.
// It is the unit of context sent to the completion service on every call.
type Conversation struct {
	messages []Message
}

// NewConversation returns an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

// Append adds a message to the end of the history.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// AppendUserText adds a single user text message.
func (c *Conversation) AppendUserText(text string) {
	c.Append(Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}})
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int { return len(c.messages) }

// Last returns the final message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// UnansweredCall returns the latest function call that has no matching
// function response appended after it. Calls and responses match by
// correlation id when one was supplied, otherwise by tool name. The
// conversation must have no unanswered call when it is sent to the
// completion service, or the service's context becomes inconsistent.
func (c *Conversation) UnansweredCall() (FunctionCallPart, bool) {
	for i := len(c.messages) - 1; i >= 0; i-- {
		for j := len(c.messages[i].Parts) - 1; j >= 0; j-- {
			p, ok := c.messages[i].Parts[j].(FunctionCallPart)
			if !ok {
				continue
			}
			if c.answeredAfter(i, p) {
				return FunctionCallPart{}, false
			}
			return p, true
		}
	}
	return FunctionCallPart{}, false
}

func (c *Conversation) answeredAfter(idx int, call FunctionCallPart) bool {
	for i := idx; i < len(c.messages); i++ {
		for _, part := range c.messages[i].Parts {
			resp, ok := part.(FunctionResponsePart)
			if !ok {
				continue
			}
			if call.ID != "" {
				if resp.ID == call.ID {
					return true
				}
				continue
			}
			if resp.Name == call.Name {
				return true
			}
		}
	}
	return false
}

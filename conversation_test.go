package estatemcp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessagePartTagging(t *testing.T) {
	msg := Message{
		Role: RoleModel,
		Parts: []Part{
			TextPart{Text: "Let me check."},
			FunctionCallPart{ID: "call-1", Name: "get_estate_details", Args: map[string]interface{}{"name": "Willow Creek Cottage"}},
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Parts, 2)
	assert.Equal(t, TextPart{Text: "Let me check."}, decoded.Parts[0])

	call, ok := decoded.Parts[1].(FunctionCallPart)
	require.True(t, ok)
	assert.Equal(t, "call-1", call.ID)
	assert.Equal(t, "get_estate_details", call.Name)
}

func TestMessageUnmarshalRejectsBadData(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown role", `{"role":"narrator","parts":[{"type":"text","text":"hi"}]}`},
		{"unknown part type", `{"role":"user","parts":[{"type":"image"}]}`},
		{"call without name", `{"role":"model","parts":[{"type":"functionCall","args":{}}]}`},
		{"response without name", `{"role":"user","parts":[{"type":"functionResponse"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var msg Message
			assert.Error(t, json.Unmarshal([]byte(tt.data), &msg))
		})
	}
}

func TestConversationAppendOnly(t *testing.T) {
	conv := NewConversation()
	conv.AppendUserText("hello")
	require.Equal(t, 1, conv.Len())

	// Mutating the returned slice must not affect the conversation.
	messages := conv.Messages()
	messages[0] = Message{Role: RoleModel}
	last, ok := conv.Last()
	require.True(t, ok)
	assert.Equal(t, RoleUser, last.Role)
}

func TestUnansweredCall(t *testing.T) {
	conv := NewConversation()
	conv.AppendUserText("which estates are there?")
	_, pending := conv.UnansweredCall()
	assert.False(t, pending)

	conv.Append(Message{
		Role:  RoleModel,
		Parts: []Part{FunctionCallPart{ID: "c1", Name: "list_estates"}},
	})
	call, pending := conv.UnansweredCall()
	require.True(t, pending)
	assert.Equal(t, "list_estates", call.Name)

	conv.Append(Message{
		Role:  RoleUser,
		Parts: []Part{FunctionResponsePart{ID: "c1", Name: "list_estates", Response: map[string]interface{}{"estates": []string{}}}},
	})
	_, pending = conv.UnansweredCall()
	assert.False(t, pending)
}

func TestUnansweredCallMatchesByNameWithoutID(t *testing.T) {
	conv := NewConversation()
	conv.AppendUserText("details please")
	conv.Append(Message{
		Role:  RoleModel,
		Parts: []Part{FunctionCallPart{Name: "get_estate_details", Args: map[string]interface{}{"name": "x"}}},
	})
	conv.Append(Message{
		Role:  RoleUser,
		Parts: []Part{FunctionResponsePart{Name: "get_estate_details", Response: map[string]interface{}{}}},
	})
	_, pending := conv.UnansweredCall()
	assert.False(t, pending)
}

func TestUnansweredCallRequiresMatchingID(t *testing.T) {
	conv := NewConversation()
	conv.AppendUserText("details please")
	conv.Append(Message{
		Role:  RoleModel,
		Parts: []Part{FunctionCallPart{ID: "c1", Name: "get_estate_details"}},
	})
	conv.Append(Message{
		Role:  RoleUser,
		Parts: []Part{FunctionResponsePart{ID: "other", Name: "get_estate_details", Response: map[string]interface{}{}}},
	})
	_, pending := conv.UnansweredCall()
	assert.True(t, pending, "a response with a different correlation id does not answer the call")
}

func TestMessageText(t *testing.T) {
	msg := Message{
		Role: RoleModel,
		Parts: []Part{
			TextPart{Text: "part one "},
			FunctionCallPart{Name: "ignored"},
			TextPart{Text: "part two"},
		},
	}
	assert.Equal(t, "part one part two", msg.Text())
}

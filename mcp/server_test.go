package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	echoHandler := func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
		var input map[string]interface{}
		if len(args) > 0 {
			require.NoError(t, json.Unmarshal(args, &input))
		}
		payload, err := json.Marshal(map[string]interface{}{"echo": input})
		require.NoError(t, err)
		return CallToolResult{
			Content: []ToolResultContent{{Type: "text", Text: string(payload)}},
		}, nil
	}

	registry, err := NewRegistry(
		[]ServerTool{
			{
				Tool: Tool{
					Name:        "echo",
					Description: "Echoes its arguments back as JSON.",
					InputSchema: json.RawMessage(`{
						"type": "object",
						"properties": {
							"message": {"type": "string", "description": "Text to echo."}
						},
						"required": ["message"]
					}`),
				},
				Handler: echoHandler,
			},
			{
				Tool: Tool{
					Name:        "boom",
					Description: "Always fails at the handler level.",
				},
				Handler: func(ctx context.Context, args json.RawMessage) (CallToolResult, error) {
					return CallToolResult{}, fmt.Errorf("handler exploded")
				},
			},
		},
		[]ServerResource{
			{
				Resource: Resource{
					URI:      "test://greeting",
					Name:     "Greeting",
					MimeType: "text/plain",
				},
				TextContent: "hello",
			},
		},
	)
	require.NoError(t, err)
	return registry
}

// runServer feeds the scripted lines to a server and returns one parsed
// response per output line.
func runServer(t *testing.T, registry *Registry, lines ...string) []Response {
	t.Helper()

	var out bytes.Buffer
	srv := NewServer(registry, ServerConfig{
		Logger: testLogger(),
		Reader: strings.NewReader(strings.Join(lines, "\n") + "\n"),
		Writer: &out,
	})
	require.NoError(t, srv.Run(context.Background()))

	var responses []Response
	for _, raw := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if raw == "" {
			continue
		}
		var resp Response
		require.NoError(t, json.Unmarshal([]byte(raw), &resp), "output line %q", raw)
		responses = append(responses, resp)
	}
	return responses
}

func TestServerInitialize(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"test","version":"0.0.1"}}}`,
	)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)
	require.NotNil(t, responses[0].ID)
	assert.EqualValues(t, 1, *responses[0].ID)

	var result InitializeResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	assert.Equal(t, "2025-03-26", result.ProtocolVersion)
	assert.NotNil(t, result.Capabilities.Tools)
	assert.NotNil(t, result.Capabilities.Resources)
	assert.Equal(t, "estate-server", result.ServerInfo.Name)
}

func TestServerOneResponsePerRequestInOrder(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	)
	require.Len(t, responses, 3)
	for i, resp := range responses {
		require.NotNil(t, resp.ID)
		assert.EqualValues(t, i+1, *resp.ID)
	}
}

func TestServerNotificationProducesNoResponse(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
	)
	require.Len(t, responses, 1)
	assert.EqualValues(t, 1, *responses[0].ID)
}

func TestServerSkipsMalformedLines(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`this is not json`,
		`{"some":"json","but":"not a request"}`,
		`{"jsonrpc":"1.0","id":9,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
	)
	require.Len(t, responses, 1)
	assert.EqualValues(t, 1, *responses[0].ID)
}

func TestServerUnknownMethod(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"no/such/method"}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrorCodeMethodNotFound, responses[0].Error.Code)
}

func TestServerUnknownToolReturnsInvalidParams(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"nope","arguments":{}}}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrorCodeInvalidParams, responses[0].Error.Code)
	assert.Contains(t, responses[0].Error.Message, "nope")
}

func TestServerUnknownResourceReturnsInvalidParams(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"resources/read","params":{"uri":"test://missing"}}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrorCodeInvalidParams, responses[0].Error.Code)
}

func TestServerToolsCallWrapsContent(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"hi"}}}`,
	)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	var result CallToolResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &result))
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
	assert.False(t, result.IsError)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &payload))
	assert.Contains(t, payload, "echo")
}

func TestServerToolHandlerErrorBecomesInternalError(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"boom","arguments":{}}}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrorCodeInternal, responses[0].Error.Code)
}

func TestServerResourcesListAndRead(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"resources/read","params":{"uri":"test://greeting"}}`,
	)
	require.Len(t, responses, 2)

	var list ListResourcesResult
	require.NoError(t, json.Unmarshal(responses[0].Result, &list))
	require.Len(t, list.Resources, 1)
	assert.Equal(t, "test://greeting", list.Resources[0].URI)

	var read ReadResourceResult
	require.NoError(t, json.Unmarshal(responses[1].Result, &read))
	require.Len(t, read.Contents, 1)
	assert.Equal(t, "hello", read.Contents[0].Text)
	assert.Equal(t, "text/plain", read.Contents[0].MimeType)
}

func TestServerPingReturnsEmptySuccess(t *testing.T) {
	responses := runServer(t, testRegistry(t),
		`{"jsonrpc":"2.0","id":1,"method":"ping"}`,
	)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)
	assert.JSONEq(t, `{}`, string(responses[0].Result))
}

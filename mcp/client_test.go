package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startClientServer wires a client to an in-process server over pipes and
// runs the full Connect handshake.
func startClientServer(t *testing.T, registry *Registry) *StdioClient {
	t.Helper()

	clientReader, serverWriter := io.Pipe()
	serverReader, clientWriter := io.Pipe()

	srv := NewServer(registry, ServerConfig{
		Logger: testLogger(),
		Reader: serverReader,
		Writer: serverWriter,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		clientWriter.Close()
		serverWriter.Close()
		<-done
	})

	client := NewStdioClient(StdioClientConfig{
		Logger: testLogger(),
		Reader: clientReader,
		Writer: clientWriter,
	})
	require.NoError(t, client.Connect(context.Background()))
	return client
}

func TestClientHandshake(t *testing.T) {
	client := startClientServer(t, testRegistry(t))

	assert.True(t, client.IsInitialized())
	assert.Equal(t, "2025-03-26", client.ProtocolVersion())
	assert.Equal(t, "estate-server", client.ServerInfo().Name)
	require.NotNil(t, client.Capabilities().Tools)
	require.NotNil(t, client.Capabilities().Resources)

	tools := client.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)

	resources := client.Resources()
	require.Len(t, resources, 1)
	assert.Equal(t, "test://greeting", resources[0].URI)
}

func TestClientCallTool(t *testing.T) {
	client := startClientServer(t, testRegistry(t))

	result, err := client.CallTool(context.Background(), CallToolParams{
		Name:      "echo",
		Arguments: json.RawMessage(`{"message":"hi"}`),
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &payload))
	assert.Contains(t, payload, "echo")
}

func TestClientCallUnknownToolIsInspectableError(t *testing.T) {
	client := startClientServer(t, testRegistry(t))

	_, err := client.CallTool(context.Background(), CallToolParams{
		Name:      "no-such-tool",
		Arguments: json.RawMessage(`{}`),
	})
	require.Error(t, err)

	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr), "protocol errors must surface as *Error values")
	assert.Equal(t, ErrorCodeInvalidParams, rpcErr.Code)
}

func TestClientRefusesUnadvertisedCapability(t *testing.T) {
	empty, err := NewRegistry(nil, nil)
	require.NoError(t, err)
	client := startClientServer(t, empty)

	_, err = client.CallTool(context.Background(), CallToolParams{Name: "echo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not advertise")

	_, err = client.ReadResource(context.Background(), "test://greeting")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not advertise")
}

func TestClientReadResource(t *testing.T) {
	client := startClientServer(t, testRegistry(t))

	result, err := client.ReadResource(context.Background(), "test://greeting")
	require.NoError(t, err)
	require.Len(t, result.Contents, 1)
	assert.Equal(t, "hello", result.Contents[0].Text)

	_, err = client.ReadResource(context.Background(), "test://missing")
	require.Error(t, err)
	var rpcErr *Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, ErrorCodeInvalidParams, rpcErr.Code)
}

func TestClientPing(t *testing.T) {
	client := startClientServer(t, testRegistry(t))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClientConnectTwiceFails(t *testing.T) {
	client := startClientServer(t, testRegistry(t))
	err := client.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")
}

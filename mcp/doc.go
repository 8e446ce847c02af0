// Package mcp implements a line-delimited JSON-RPC 2.0 protocol between a
// client process and a tool server running as its subprocess. The server
// reads one request per line on stdin and writes one response per line on
// stdout; the client spawns the server, performs the initialize handshake,
// and then issues synchronous tools/call and resources/read requests.
//
// Example server:
//
//	package main
//
//	import (
//		"context"
//		"encoding/json"
//		"fmt"
//
//		"github.com/estatemcp/estatemcp/mcp"
//	)
//
//	func main() {
//		weatherTool := mcp.ServerTool{
//			Tool: mcp.Tool{
//				Name:        "get_weather",
//				Description: "Get the current weather for a given location.",
//				InputSchema: json.RawMessage(`{
//					"type": "object",
//					"properties": {
//						"location": {
//							"type": "string",
//							"description": "The city and state, e.g. San Francisco, CA"
//						}
//					},
//					"required": ["location"]
//				}`),
//			},
//			Handler: func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
//				var input struct {
//					Location string `json:"location"`
//				}
//				if err := json.Unmarshal(args, &input); err != nil {
//					return mcp.CallToolResult{}, err
//				}
//				return mcp.CallToolResult{
//					Content: []mcp.ToolResultContent{
//						{Type: "text", Text: fmt.Sprintf(`{"weather": "Sunny, 72F in %s"}`, input.Location)},
//					},
//				}, nil
//			},
//		}
//
//		registry, err := mcp.NewRegistry([]mcp.ServerTool{weatherTool}, nil)
//		if err != nil {
//			panic(err)
//		}
//
//		server := mcp.NewServer(registry, mcp.ServerConfig{})
//		if err := server.Run(context.Background()); err != nil {
//			panic(err)
//		}
//	}
//
// Example client:
//
//	client := mcp.NewStdioClient(mcp.StdioClientConfig{Command: "weather-server"})
//	if err := client.Connect(ctx); err != nil {
//		panic(err)
//	}
//	defer client.Close()
//
//	result, err := client.CallTool(ctx, mcp.CallToolParams{
//		Name:      "get_weather",
//		Arguments: json.RawMessage(`{"location": "San Francisco, CA"}`),
//	})
package mcp

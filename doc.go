// Package estatemcp wires a tool-capable completion service to a local tool
// server speaking line-delimited JSON-RPC over stdio. The mcp subpackage
// implements the wire protocol and session layer; this package holds the
// conversation model, the completion-service abstraction with its Gemini
// implementation, the tool-augmented turn orchestrator and conversation
// history storage.
package estatemcp

package estatemcp

import (
	"context"

	"github.com/estatemcp/estatemcp/mcp"
)

// Candidate is one possible completion returned by the service: a message
// holding text parts and/or a function-call request, plus the output token
// count the service reported.
type Candidate struct {
	Message    Message
	TokenCount int32
}

// CompletionService is the boundary to an external text-completion API that
// accepts a message history and a tool catalog and returns candidates. The
// wire schema of the vendor is an implementation detail behind this
// interface.
type CompletionService interface {
	Complete(ctx context.Context, messages []Message, tools []mcp.Tool, config RequestConfig) ([]Candidate, error)
}

// RequestConfig bounds a completion request and carries the fixed system
// instruction describing tone and tool-use policy. It is opaque
// configuration, not part of the protocol.
type RequestConfig struct {
	MaxOutputTokens   int32
	Temperature       float32
	TopP              float32
	TopK              int32
	SystemInstruction string
}

// RequestOption mutates a RequestConfig.
type RequestOption func(*RequestConfig)

// NewRequestConfig applies options over sensible defaults.
func NewRequestConfig(opts ...RequestOption) RequestConfig {
	config := RequestConfig{
		MaxOutputTokens: 1024,
		Temperature:     0.7,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

// WithMaxOutputTokens bounds the response length.
func WithMaxOutputTokens(n int32) RequestOption {
	return func(c *RequestConfig) { c.MaxOutputTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) RequestOption {
	return func(c *RequestConfig) { c.Temperature = t }
}

// WithTopP sets nucleus sampling.
func WithTopP(p float32) RequestOption {
	return func(c *RequestConfig) { c.TopP = p }
}

// WithTopK sets top-k sampling.
func WithTopK(k int32) RequestOption {
	return func(c *RequestConfig) { c.TopK = k }
}

// WithSystemInstruction sets the natural-language system instruction.
func WithSystemInstruction(s string) RequestOption {
	return func(c *RequestConfig) { c.SystemInstruction = s }
}

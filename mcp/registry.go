package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ToolHandler executes a tool with the raw JSON arguments from a tools/call
// request.
type ToolHandler func(ctx context.Context, args json.RawMessage) (CallToolResult, error)

// ServerTool pairs a tool descriptor with its handler.
type ServerTool struct {
	Tool
	Handler ToolHandler
}

// ServerResource pairs a resource descriptor with the content it serves.
type ServerResource struct {
	Resource
	TextContent string
}

// Registry is the immutable catalog of tools and resources a server
// dispatches against. It is built once at startup and never mutated, so the
// server needs no locking around it.
type Registry struct {
	tools       []ServerTool
	toolIndex   map[string]int
	resources   []ServerResource
	resourceIdx map[string]int
}

// NewRegistry validates every tool and resource and builds the catalog.
// Tool names and resource URIs must be unique; input schemas must be valid
// JSON Schema.
func NewRegistry(tools []ServerTool, resources []ServerResource) (*Registry, error) {
	r := &Registry{
		tools:       make([]ServerTool, 0, len(tools)),
		toolIndex:   make(map[string]int, len(tools)),
		resources:   make([]ServerResource, 0, len(resources)),
		resourceIdx: make(map[string]int, len(resources)),
	}

	for _, t := range tools {
		if err := validateTool(t); err != nil {
			return nil, fmt.Errorf("tool %q: %w", t.Name, err)
		}
		if _, dup := r.toolIndex[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		r.toolIndex[t.Name] = len(r.tools)
		r.tools = append(r.tools, t)
	}

	for _, res := range resources {
		if res.URI == "" {
			return nil, fmt.Errorf("resource %q: uri cannot be empty", res.Name)
		}
		if _, dup := r.resourceIdx[res.URI]; dup {
			return nil, fmt.Errorf("duplicate resource uri %q", res.URI)
		}
		r.resourceIdx[res.URI] = len(r.resources)
		r.resources = append(r.resources, res)
	}

	return r, nil
}

func validateTool(t ServerTool) error {
	if t.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if t.Description == "" {
		return fmt.Errorf("description cannot be empty")
	}
	if t.Handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	if len(t.InputSchema) > 0 {
		loader := gojsonschema.NewStringLoader(string(t.InputSchema))
		if _, err := gojsonschema.NewSchema(loader); err != nil {
			return fmt.Errorf("invalid input schema: %w", err)
		}
	}
	return nil
}

// Tools returns the tool catalog in registration order.
func (r *Registry) Tools() []Tool {
	out := make([]Tool, len(r.tools))
	for i, t := range r.tools {
		out[i] = t.Tool
	}
	return out
}

// Tool looks up a tool by exact name.
func (r *Registry) Tool(name string) (ServerTool, bool) {
	i, ok := r.toolIndex[name]
	if !ok {
		return ServerTool{}, false
	}
	return r.tools[i], true
}

// Resources returns the resource catalog in registration order.
func (r *Registry) Resources() []Resource {
	out := make([]Resource, len(r.resources))
	for i, res := range r.resources {
		out[i] = res.Resource
	}
	return out
}

// Resource looks up a resource by exact uri.
func (r *Registry) Resource(uri string) (ServerResource, bool) {
	i, ok := r.resourceIdx[uri]
	if !ok {
		return ServerResource{}, false
	}
	return r.resources[i], true
}

// HasTools reports whether any tool is registered; it decides whether the
// tools capability is advertised.
func (r *Registry) HasTools() bool { return len(r.tools) > 0 }

// HasResources reports whether any resource is registered.
func (r *Registry) HasResources() bool { return len(r.resources) > 0 }

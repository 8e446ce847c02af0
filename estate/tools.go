package estate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/estatemcp/estatemcp/mcp"
)

// Tool names exposed by the estate server.
const (
	ToolListEstates      = "list_estates"
	ToolGetEstateDetails = "get_estate_details"
)

// ListingsURI is the resource uri serving the full catalog.
const ListingsURI = "estate://listings"

// NewRegistry builds the immutable tool and resource registry for a catalog.
func NewRegistry(catalog *Catalog) (*mcp.Registry, error) {
	tools := []mcp.ServerTool{
		{
			Tool: mcp.Tool{
				Name:        ToolListEstates,
				Description: "List the names of every property currently in the estate catalog. Takes no arguments.",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {}
				}`),
			},
			Handler: listEstatesHandler(catalog),
		},
		{
			Tool: mcp.Tool{
				Name:        ToolGetEstateDetails,
				Description: "Get the full record for a single property by its name. Use list_estates first if the exact name is unknown.",
				InputSchema: json.RawMessage(`{
					"type": "object",
					"properties": {
						"name": {
							"type": "string",
							"description": "The property name, e.g. Willow Creek Cottage. Matching ignores case."
						}
					},
					"required": ["name"]
				}`),
			},
			Handler: getEstateDetailsHandler(catalog),
		},
	}

	resources, err := catalogResources(catalog)
	if err != nil {
		return nil, err
	}

	return mcp.NewRegistry(tools, resources)
}

func listEstatesHandler(catalog *Catalog) mcp.ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
		return textResult(map[string]interface{}{
			"estates": catalog.Names(),
		})
	}
}

func getEstateDetailsHandler(catalog *Catalog) mcp.ToolHandler {
	return func(ctx context.Context, args json.RawMessage) (mcp.CallToolResult, error) {
		var params struct {
			Name string `json:"name"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &params); err != nil {
				return mcp.CallToolResult{}, fmt.Errorf("invalid arguments: %w", err)
			}
		}

		listing, ok := catalog.Lookup(params.Name)
		if !ok {
			// The lookup itself succeeded: a missing name is a data error
			// carried in the payload, not a protocol error.
			return textResult(map[string]interface{}{
				"error": fmt.Sprintf("no estate named %q in the catalog", params.Name),
			})
		}
		return textResult(listing)
	}
}

func textResult(payload interface{}) (mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return mcp.CallToolResult{}, fmt.Errorf("marshal tool payload: %w", err)
	}
	return mcp.CallToolResult{
		Content: []mcp.ToolResultContent{{Type: "text", Text: string(raw)}},
	}, nil
}

func catalogResources(catalog *Catalog) ([]mcp.ServerResource, error) {
	full, err := json.Marshal(map[string]interface{}{"listings": catalog.Listings()})
	if err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}

	resources := []mcp.ServerResource{
		{
			Resource: mcp.Resource{
				URI:         ListingsURI,
				Name:        "All listings",
				Description: "The full estate catalog as a JSON document.",
				MimeType:    "application/json",
			},
			TextContent: string(full),
		},
	}

	for _, listing := range catalog.Listings() {
		raw, err := json.Marshal(listing)
		if err != nil {
			return nil, fmt.Errorf("marshal listing %q: %w", listing.Name, err)
		}
		resources = append(resources, mcp.ServerResource{
			Resource: mcp.Resource{
				URI:         fmt.Sprintf("%s/%s", ListingsURI, Slug(listing.Name)),
				Name:        listing.Name,
				MimeType:    "application/json",
			},
			TextContent: string(raw),
		})
	}
	return resources, nil
}

// Package agent exposes the bridge operations as MCP tools.
package agent

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/slighter12/ae-bridge-go/bridgeclient"
	"github.com/slighter12/ae-bridge-go/scanner"
)

const ServerName = "AfterEffects MCP Bridge"

// Bridge is the subset of the bridge client the tools need.
type Bridge interface {
	Layers(ctx context.Context) ([]scanner.Layer, error)
	Properties(ctx context.Context, layerID int, opts scanner.Options) ([]scanner.PropertyNode, error)
	SelectedProperties(ctx context.Context) ([]scanner.SelectedProperty, error)
	SetExpression(ctx context.Context, layerID int, propertyPath, expression string) (string, error)
}

var _ Bridge = (*bridgeclient.Client)(nil)

// NewServer creates an MCP server with the bridge tools registered.
func NewServer(bridge Bridge, version string) *server.MCPServer {
	h := &Handlers{bridge: bridge}
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(true),
	)

	s.AddTool(
		mcp.NewTool("get_layers",
			mcp.WithDescription("Return all layers from the active composition."),
		),
		h.HandleGetLayers,
	)

	s.AddTool(
		mcp.NewTool("get_selected_properties",
			mcp.WithDescription("Return the currently selected properties across selected layers."),
		),
		h.HandleGetSelectedProperties,
	)

	s.AddTool(
		mcp.NewTool("get_properties",
			mcp.WithDescription("Return the property tree for a specific layer with optional filters."),
			mcp.WithNumber("layer_id", mcp.Required(), mcp.Description("1-based layer index from get_layers")),
			mcp.WithArray("include_groups", mcp.Items(map[string]any{"type": "string"}),
				mcp.Description("Only scan these top-level groups, by matchName (e.g. ADBE Transform Group)")),
			mcp.WithArray("exclude_groups", mcp.Items(map[string]any{"type": "string"}),
				mcp.Description("Skip these top-level groups, by matchName")),
			mcp.WithNumber("max_depth", mcp.Description("Maximum traversal depth; omit for unbounded")),
		),
		h.HandleGetProperties,
	)

	s.AddTool(
		mcp.NewTool("set_expression",
			mcp.WithDescription("Apply an expression to a specific property."),
			mcp.WithNumber("layer_id", mcp.Required(), mcp.Description("1-based layer index from get_layers")),
			mcp.WithString("property_path", mcp.Required(), mcp.Description("Property path as returned by get_properties")),
			mcp.WithString("expression", mcp.Required(), mcp.Description("Expression source; empty clears it")),
		),
		h.HandleSetExpression,
	)

	return s
}

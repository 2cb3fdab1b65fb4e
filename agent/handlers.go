package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/slighter12/ae-bridge-go/logger"
	"github.com/slighter12/ae-bridge-go/scanner"
)

// Handlers implements the MCP tools on top of a Bridge.
type Handlers struct {
	bridge Bridge
}

func NewHandlers(bridge Bridge) *Handlers {
	return &Handlers{bridge: bridge}
}

func (h *Handlers) HandleGetLayers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	layers, err := h.bridge.Layers(ctx)
	if err != nil {
		return failed("Layer retrieval", err), nil
	}
	return jsonResult(layers)
}

func (h *Handlers) HandleGetSelectedProperties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	selected, err := h.bridge.SelectedProperties(ctx)
	if err != nil {
		return failed("Selected property retrieval", err), nil
	}
	return jsonResult(selected)
}

func (h *Handlers) HandleGetProperties(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	layerID, err := intArg(args, "layer_id", true)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	maxDepth, err := intArg(args, "max_depth", false)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	opts := scanner.Options{
		IncludeGroups: stringsArg(args, "include_groups"),
		ExcludeGroups: stringsArg(args, "exclude_groups"),
		MaxDepth:      maxDepth,
	}

	props, err := h.bridge.Properties(ctx, layerID, opts)
	if err != nil {
		return failed("Property retrieval", err), nil
	}
	return jsonResult(props)
}

func (h *Handlers) HandleSetExpression(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	layerID, err := intArg(args, "layer_id", true)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	path, _ := args["property_path"].(string)
	if strings.TrimSpace(path) == "" {
		return errorResult("property_path argument is required"), nil
	}
	expression, ok := args["expression"].(string)
	if !ok {
		return errorResult("expression argument must be a string"), nil
	}

	msg, err := h.bridge.SetExpression(ctx, layerID, path, expression)
	if err != nil {
		return failed("Expression application", err), nil
	}
	return jsonResult(map[string]string{"status": "success", "message": msg})
}

func failed(action string, err error) *mcp.CallToolResult {
	logger.Warn("Bridge tool call failed", "action", action, "error", err)
	return errorResult(fmt.Sprintf("%s failed: %v", action, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return textResult(string(data)), nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}

// intArg reads a JSON number argument. Absent optional arguments are 0.
func intArg(args map[string]any, name string, required bool) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		if required {
			return 0, fmt.Errorf("%s argument is required", name)
		}
		return 0, nil
	}
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int(v), nil
	case int:
		return v, nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int(n), nil
	}
	return 0, fmt.Errorf("%s must be a number", name)
}

func stringsArg(args map[string]any, name string) []string {
	switch v := args[name].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	case string:
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return nil
}

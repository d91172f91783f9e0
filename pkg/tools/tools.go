// Package tools wires the memory, graph, and handoff operations into MCP
// tools so any MCP-speaking agent client can drive the store. The tool
// layer does argument plumbing and JSON shaping only; semantics live in
// pkg/memory.
package tools

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/engramdb/engram/pkg/memory"
)

// Registry bundles the services the tool handlers close over.
type Registry struct {
	Store *memory.Store
	Index *memory.Index
	Graph *memory.Graph
	Bus   memory.MessageBus
}

// Register attaches every tool to the supplied MCP server instance.
func (r *Registry) Register(srv *server.MCPServer) {
	r.registerMemoryTools(srv)
	r.registerGraphTools(srv)
	r.registerHandoffTools(srv)
}

// jsonResult marshals v into a text tool result. Marshalling our own result
// structs cannot realistically fail; a failure is reported as a tool error
// rather than swallowed.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError surfaces a typed service error to the MCP client. The kind
// prefix survives in the message so the client can decide whether to retry.
func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func stringMap(raw any) map[string]string {
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

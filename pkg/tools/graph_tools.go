package tools

// Knowledge-graph tools: linking memories, removing links, and walking the
// relationship graph outward from a starting memory.

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/engramdb/engram/pkg/memory"
)

func (r *Registry) registerGraphTools(srv *server.MCPServer) {
	srv.AddTool(buildLinkTool(), r.handleLink)
	srv.AddTool(buildUnlinkTool(), r.handleUnlink)
	srv.AddTool(buildRelatedTool(), r.handleRelated)
	srv.AddTool(buildTraverseTool(), r.handleTraverse)
}

func buildLinkTool() mcp.Tool {
	return mcp.NewTool(
		"link_memories",
		mcp.WithDescription("Creates a weighted, typed relationship between two memories. Returns the edge ID."),
		mcp.WithString("source_id",
			mcp.Description("ID of the source memory"),
			mcp.Required(),
		),
		mcp.WithString("target_id",
			mcp.Description("ID of the target memory"),
			mcp.Required(),
		),
		mcp.WithString("relationship",
			mcp.Description("Relationship type, e.g. 'justified_by', 'supersedes', 'related_to'"),
			mcp.Required(),
		),
		mcp.WithNumber("weight",
			mcp.Description("Edge strength between 0.0 and 1.0 (default 0.5)"),
		),
		mcp.WithBoolean("bidirectional",
			mcp.Description("When true the edge is traversed in both directions"),
		),
		mcp.WithString("reason",
			mcp.Description("Optional free-text note explaining the link"),
		),
	)
}

func buildUnlinkTool() mcp.Tool {
	return mcp.NewTool(
		"unlink_memories",
		mcp.WithDescription("Deletes edges between two memories. Returns the number of edges removed."),
		mcp.WithString("source_id",
			mcp.Description("ID of the source memory"),
			mcp.Required(),
		),
		mcp.WithString("target_id",
			mcp.Description("ID of the target memory"),
			mcp.Required(),
		),
		mcp.WithString("relationship",
			mcp.Description("Only delete edges of this type; omit to delete all edges between the pair"),
		),
	)
}

func buildRelatedTool() mcp.Tool {
	return mcp.NewTool(
		"related_memories",
		mcp.WithDescription("Lists the direct neighbors of a memory with relationship type, weight, and direction."),
		mcp.WithString("memory_id",
			mcp.Description("ID of the memory whose neighbors to list"),
			mcp.Required(),
		),
	)
}

func buildTraverseTool() mcp.Tool {
	return mcp.NewTool(
		"memory_graph",
		mcp.WithDescription("Walks the relationship graph breadth-first from a starting memory, strongest edges first."),
		mcp.WithString("start_id",
			mcp.Description("ID of the memory to start from"),
			mcp.Required(),
		),
		mcp.WithNumber("max_depth",
			mcp.Description("How many hops to walk (default 2, 0 returns only the start)"),
		),
		mcp.WithNumber("result_limit",
			mcp.Description("Hard cap on the number of memories returned (default 50)"),
		),
	)
}

func (r *Registry) handleLink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	weight := 0.5
	if v, ok := args["weight"].(float64); ok {
		weight = v
	}

	edge, err := r.Graph.Link(ctx, memory.LinkRequest{
		SourceID:      stringArg(args, "source_id"),
		TargetID:      stringArg(args, "target_id"),
		Relationship:  stringArg(args, "relationship"),
		Weight:        weight,
		Bidirectional: boolArg(args, "bidirectional"),
		Reason:        stringArg(args, "reason"),
	})
	if err != nil {
		return toolError(err)
	}
	return jsonResult(edge)
}

func (r *Registry) handleUnlink(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	removed, err := r.Graph.Unlink(ctx,
		stringArg(args, "source_id"),
		stringArg(args, "target_id"),
		stringArg(args, "relationship"),
	)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]int{"removed": removed})
}

func (r *Registry) handleRelated(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	neighbors, err := r.Graph.Related(ctx, stringArg(req.GetArguments(), "memory_id"))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"neighbors": neighbors})
}

func (r *Registry) handleTraverse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	maxDepth := 2
	if v, ok := args["max_depth"].(float64); ok {
		maxDepth = int(v)
	}

	res, err := r.Graph.Traverse(ctx, stringArg(args, "start_id"), maxDepth, intArg(args, "result_limit"))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(res)
}

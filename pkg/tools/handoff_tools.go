package tools

// Handoff tools: the durable message bus agents use to pass context to each
// other across sessions.

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func (r *Registry) registerHandoffTools(srv *server.MCPServer) {
	srv.AddTool(buildHandoffSendTool(), r.handleHandoffSend)
	srv.AddTool(buildHandoffGetTool(), r.handleHandoffGet)
	srv.AddTool(buildHandoffMarkReadTool(), r.handleHandoffMarkRead)
}

func buildHandoffSendTool() mcp.Tool {
	return mcp.NewTool(
		"handoff_send",
		mcp.WithDescription("Sends a durable message to another agent instance, or to every instance with target 'all'."),
		mcp.WithString("from_instance",
			mcp.Description("Identifier of the sending instance"),
			mcp.Required(),
		),
		mcp.WithString("to_instance",
			mcp.Description("Identifier of the receiving instance, or 'all' to broadcast"),
			mcp.Required(),
		),
		mcp.WithString("content",
			mcp.Description("Message body"),
			mcp.Required(),
		),
		mcp.WithObject("metadata",
			mcp.Description("Arbitrary string key/value metadata to attach"),
		),
	)
}

func buildHandoffGetTool() mcp.Tool {
	return mcp.NewTool(
		"handoff_get",
		mcp.WithDescription("Fetches pending messages addressed to an instance, oldest first. Broadcasts are included."),
		mcp.WithString("instance_id",
			mcp.Description("Identifier of the receiving instance"),
			mcp.Required(),
		),
		mcp.WithBoolean("include_read",
			mcp.Description("When true, already-read messages are returned as well"),
		),
	)
}

func buildHandoffMarkReadTool() mcp.Tool {
	return mcp.NewTool(
		"handoff_mark_read",
		mcp.WithDescription("Marks a message as read so it stops appearing in pending fetches. Safe to repeat."),
		mcp.WithString("message_id",
			mcp.Description("ID of the message to mark"),
			mcp.Required(),
		),
		mcp.WithString("read_by",
			mcp.Description("Identifier of the instance that read the message"),
			mcp.Required(),
		),
	)
}

func (r *Registry) handleHandoffSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	msg, err := r.Bus.Send(ctx,
		stringArg(args, "from_instance"),
		stringArg(args, "to_instance"),
		stringArg(args, "content"),
		stringMap(args["metadata"]),
	)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(msg)
}

func (r *Registry) handleHandoffGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	msgs, err := r.Bus.Get(ctx, stringArg(args, "instance_id"), boolArg(args, "include_read"))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{"messages": msgs, "count": len(msgs)})
}

func (r *Registry) handleHandoffMarkRead(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	id := stringArg(args, "message_id")
	if err := r.Bus.MarkRead(ctx, id, stringArg(args, "read_by")); err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]string{"read": id})
}

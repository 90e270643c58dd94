package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RegisterAnnotationTools adds the annotation review and send-wait tools to
// the server.
func RegisterAnnotationTools(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_annotations",
		Description: "List all pinned page annotations, open and resolved.",
	}, makeListAnnotationsHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_annotation",
		Description: "Mark a single annotation resolved by id.",
	}, makeResolveAnnotationHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wait_for_send",
		Description: "Block until the human clicks send in the overlay, or the timeout elapses. Returns whether a send happened.",
	}, makeWaitForSendHandler(d))
}

func makeListAnnotationsHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			return jsonResult(d.Annotations.Annotations()), nil
		})
		return result, nil, err
	}
}

type ResolveAnnotationInput struct {
	ID string `json:"id"`
}

func makeResolveAnnotationHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, ResolveAnnotationInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ResolveAnnotationInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			ann, err := d.Annotations.Resolve(input.ID)
			if err != nil {
				return errorResult(err.Error()), nil
			}
			return jsonResult(ann), nil
		})
		return result, nil, err
	}
}

type WaitForSendInput struct {
	TimeoutMs int `json:"timeout_ms,omitempty" jsonschema:"Deadline in milliseconds, capped at 600000, default 30000"`
}

func makeWaitForSendHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, WaitForSendInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input WaitForSendInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			timeoutMs := input.TimeoutMs
			if timeoutMs <= 0 {
				timeoutMs = 30000
			}
			sent := d.Annotations.WaitForSend(timeoutMs)
			return jsonResult(map[string]bool{"sent": sent}), nil
		})
		return result, nil, err
	}
}

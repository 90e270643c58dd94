// Package tools implements the agent-facing MCP tool surface — browser
// control, managed-process control, and annotation review — plus the
// processing-state coordinator that sits between tool calls and the
// in-page overlay.
package tools

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/samsolomon/relay-inspect/internal/annotation"
	"github.com/samsolomon/relay-inspect/internal/browser"
	"github.com/samsolomon/relay-inspect/internal/config"
	"github.com/samsolomon/relay-inspect/internal/process"
)

// maxBodyDump is the truncation threshold for network body payloads
// returned to the caller.
const maxBodyDump = 10 * 1024

// Deps bundles the process-wide component handles every tool needs.
type Deps struct {
	Browser     *browser.Manager
	Annotations *annotation.Server
	Processes   *process.ProcessManager
	Config      *config.Config
	State       *stateCoordinator
}

func NewDeps(mgr *browser.Manager, ann *annotation.Server, pm *process.ProcessManager, cfg *config.Config) *Deps {
	return &Deps{
		Browser:     mgr,
		Annotations: ann,
		Processes:   pm,
		Config:      cfg,
		State:       newStateCoordinator(mgr),
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// jsonResult marshals v into a single JSON text content block. Tool
// handlers use this instead of the SDK's implicit output-struct
// serialization so the response-envelope augmentation has a text block it
// can parse and extend (pending_annotations, appended annotation content).
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult("internal: failed to encode result: " + err.Error())
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: string(data)}}}
}

var safeIdentifier = regexp.MustCompile(`^[a-f0-9-]*$`)

// sanitizeIdentifier whitelists an agent-supplied identifier before it is
// interpolated into a page-script expression. A rejected identifier
// becomes the empty string, which evaluates to a harmless no-op selector
// rather than injecting arbitrary script.
func sanitizeIdentifier(id string) string {
	if safeIdentifier.MatchString(id) {
		return id
	}
	return ""
}

// truncateBody caps a body payload at maxBodyDump bytes, reporting
// whether truncation occurred.
func truncateBody(body string) (string, bool) {
	if len(body) <= maxBodyDump {
		return body, false
	}
	return body[:maxBodyDump], true
}

// runAugmented wraps a tool's core handler with the response-envelope
// mutation every tool call goes through after its own logic runs.
func runAugmented(d *Deps, ctx context.Context, core func() (*mcp.CallToolResult, error)) (*mcp.CallToolResult, error) {
	result, err := core()
	if err != nil {
		return result, err
	}
	return d.augmentResult(ctx, result), nil
}

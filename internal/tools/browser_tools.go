package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/samsolomon/relay-inspect/internal/browser"
)

// RegisterBrowserTools adds the connection, evaluation, console/network,
// DOM, screenshot, reload and navigate tools to the server.
func RegisterBrowserTools(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "connect",
		Description: "Ensure a live browser connection, or select a specific page target by id or URL pattern.",
	}, makeConnectHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate",
		Description: "Evaluate a JavaScript expression in the connected page and return its value.",
	}, makeEvaluateHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "console_logs",
		Description: "Retrieve buffered console and browser log entries.",
	}, makeConsoleHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "network_requests",
		Description: "Retrieve buffered network requests, or fetch a response body by request id.",
	}, makeNetworkHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "query_dom",
		Description: "Query the page DOM with a CSS selector and return matching elements' outer HTML.",
	}, makeQueryDOMHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "wait_for",
		Description: "Poll a JS expression until it is truthy or the timeout elapses, then return its value.",
	}, makeWaitForHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "screenshot",
		Description: "Capture a screenshot of the page, optionally clipped to a rectangle.",
	}, makeScreenshotHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reload",
		Description: "Reload the current page.",
	}, makeReloadHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "navigate",
		Description: "Navigate the page to a URL. Only http, https, and file schemes are permitted.",
	}, makeNavigateHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reinject_overlay",
		Description: "Re-inject the feedback overlay script into the current page.",
	}, makeReinjectHandler(d))
}

type ConnectInput struct {
	ID         string `json:"id,omitempty" jsonschema:"Exact page target id"`
	URLPattern string `json:"url_pattern,omitempty" jsonschema:"Case-insensitive substring match against the target URL"`
	WaitMs     int    `json:"wait_ms,omitempty" jsonschema:"Milliseconds to poll for a matching target to appear"`
}

func makeConnectHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, ConnectInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ConnectInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			if input.ID == "" && input.URLPattern == "" {
				if err := d.Browser.EnsureConnected(ctx); err != nil {
					return errorResult(connectErrorHint(d, err)), nil
				}
				return jsonResult(map[string]any{"connected": true}), nil
			}

			target, err := d.Browser.ConnectToPage(ctx, browser.ConnectOptions{
				ID: input.ID, URLPattern: input.URLPattern, WaitMs: input.WaitMs,
			})
			if err != nil {
				return errorResult(connectErrorHint(d, err)), nil
			}
			return jsonResult(target), nil
		})
		return result, nil, err
	}
}

func connectErrorHint(d *Deps, err error) string {
	if d.Config.AutoLaunch {
		return fmt.Sprintf("connection failed: %v (auto-launch is enabled; check that a Chromium-family browser is installed)", err)
	}
	return fmt.Sprintf("connection failed: %v (auto-launch is disabled; start the browser manually with remote debugging on port %d)", err, d.Config.DebugPort)
}

type EvaluateInput struct {
	Expression string `json:"expression" jsonschema:"JavaScript expression to evaluate"`
}

func makeEvaluateHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, EvaluateInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input EvaluateInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			raw, err := d.Browser.Evaluate(ctx, input.Expression)
			if err != nil {
				return errorResult(err.Error()), nil
			}
			return jsonResult(json.RawMessage(raw)), nil
		})
		return result, nil, err
	}
}

type ConsoleInput struct {
	Drain bool `json:"drain,omitempty" jsonschema:"Clear the buffer after reading"`
}

func makeConsoleHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, ConsoleInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ConsoleInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			if input.Drain {
				return jsonResult(d.Browser.DrainConsole()), nil
			}
			return jsonResult(d.Browser.Console()), nil
		})
		return result, nil, err
	}
}

type NetworkInput struct {
	RequestID string `json:"request_id,omitempty" jsonschema:"Fetch the response body for this request id instead of listing"`
	Drain     bool   `json:"drain,omitempty" jsonschema:"Clear the buffer after reading (ignored with request_id)"`
}

func makeNetworkHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, NetworkInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input NetworkInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			if input.RequestID != "" {
				id := sanitizeIdentifier(input.RequestID)
				if id == "" {
					return errorResult("request_id must match [a-f0-9-]"), nil
				}
				body, base64Encoded, err := d.Browser.NetworkResponseBody(ctx, id)
				if err != nil {
					return errorResult(err.Error()), nil
				}
				truncated := false
				if !base64Encoded {
					body, truncated = truncateBody(body)
				}
				return jsonResult(map[string]any{
					"requestId":     id,
					"body":          body,
					"base64Encoded": base64Encoded,
					"truncated":     truncated,
				}), nil
			}

			if input.Drain {
				return jsonResult(d.Browser.DrainNetwork()), nil
			}
			return jsonResult(d.Browser.Network()), nil
		})
		return result, nil, err
	}
}

type QueryDOMInput struct {
	Selector string `json:"selector" jsonschema:"CSS selector"`
}

func makeQueryDOMHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, QueryDOMInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input QueryDOMInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			matches, err := d.Browser.QuerySelectorAll(ctx, input.Selector)
			if err != nil {
				return errorResult(err.Error()), nil
			}
			return jsonResult(map[string]any{"matches": matches, "count": len(matches)}), nil
		})
		return result, nil, err
	}
}

type WaitForInput struct {
	Expression string `json:"expression" jsonschema:"JavaScript expression polled until truthy"`
	TimeoutMs  int    `json:"timeout_ms,omitempty" jsonschema:"Poll deadline in milliseconds, default 5000"`
}

func makeWaitForHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, WaitForInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input WaitForInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			timeout := time.Duration(input.TimeoutMs) * time.Millisecond
			if timeout <= 0 {
				timeout = 5 * time.Second
			}
			deadline := time.Now().Add(timeout)

			for {
				raw, err := d.Browser.Evaluate(ctx, input.Expression)
				if err == nil {
					var truthy any
					if json.Unmarshal(raw, &truthy) == nil && isTruthy(truthy) {
						return jsonResult(json.RawMessage(raw)), nil
					}
				}
				if time.Now().After(deadline) {
					return errorResult("timed out waiting for expression to become truthy"), nil
				}
				select {
				case <-time.After(200 * time.Millisecond):
				case <-ctx.Done():
					return errorResult(ctx.Err().Error()), nil
				}
			}
		})
		return result, nil, err
	}
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}

type ScreenshotInput struct {
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

func makeScreenshotHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, ScreenshotInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ScreenshotInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			var clip *browser.ScreenshotClip
			if input.Width > 0 && input.Height > 0 {
				clip = &browser.ScreenshotClip{X: input.X, Y: input.Y, Width: input.Width, Height: input.Height}
			}
			dataURL, err := d.Browser.CaptureScreenshot(ctx, clip)
			if err != nil {
				return errorResult(err.Error()), nil
			}
			return &mcp.CallToolResult{Content: []mcp.Content{
				&mcp.ImageContent{Data: []byte(dataURLPayload(dataURL)), MIMEType: "image/png"},
			}}, nil
		})
		return result, nil, err
	}
}

func dataURLPayload(dataURL string) string {
	const prefix = "data:image/png;base64,"
	if len(dataURL) > len(prefix) && dataURL[:len(prefix)] == prefix {
		return dataURL[len(prefix):]
	}
	return dataURL
}

func makeReloadHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			if err := d.Browser.Reload(ctx); err != nil {
				return errorResult(err.Error()), nil
			}
			return jsonResult(map[string]bool{"success": true}), nil
		})
		return result, nil, err
	}
}

type NavigateInput struct {
	URL string `json:"url" jsonschema:"Destination URL; scheme must be http, https, or file"`
}

var allowedNavigateSchemes = map[string]bool{"http": true, "https": true, "file": true}

func makeNavigateHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, NavigateInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input NavigateInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			scheme := urlScheme(input.URL)
			if !allowedNavigateSchemes[scheme] {
				return errorResult("navigate: scheme must be http, https, or file"), nil
			}
			if err := d.Browser.Navigate(ctx, input.URL); err != nil {
				return errorResult(err.Error()), nil
			}
			return jsonResult(map[string]bool{"success": true}), nil
		})
		return result, nil, err
	}
}

func urlScheme(u string) string {
	for i := 0; i < len(u); i++ {
		if u[i] == ':' {
			return u[:i]
		}
		if !isSchemeChar(u[i]) {
			return ""
		}
	}
	return ""
}

func isSchemeChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9') || b == '+' || b == '-' || b == '.'
}

func makeReinjectHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			script := browser.BuildOverlayScript(d.Config.AnnotationPort)
			if _, err := d.Browser.Evaluate(ctx, script); err != nil {
				return errorResult(err.Error()), nil
			}
			return jsonResult(map[string]bool{"success": true}), nil
		})
		return result, nil, err
	}
}

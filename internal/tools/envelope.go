package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/sjson"

	"github.com/samsolomon/relay-inspect/internal/annotation"
)

// dataURLPrefix identifies a base64 PNG data URL; everything after the
// comma is the raw base64 payload an image content block expects.
const dataURLPrefix = "data:image/png;base64,"

// augmentResult applies the response-envelope mutation every successful
// tool call goes through: advancing a stale processing marker to done,
// folding in newly-sent annotations, or noting how many are still open.
// It never replaces a handler error; it only extends a successful result.
func (d *Deps) augmentResult(ctx context.Context, result *mcp.CallToolResult) *mcp.CallToolResult {
	if result == nil {
		result = &mcp.CallToolResult{}
	}
	if result.IsError {
		return result
	}

	if d.Annotations.ConsumeSentState() {
		open := d.Annotations.OpenAnnotations()
		result.Content = append(result.Content, renderOpenAnnotations(open)...)
		d.State.enterProcessing(ctx)
		d.Annotations.AutoResolveOpen()
		reinjectOverlayBadges(ctx, d)
		return result
	}

	if d.State.get() == stateProcessing {
		d.State.advanceIfProcessing(ctx)
	}

	if openCount := len(d.Annotations.OpenAnnotations()); openCount > 0 {
		result.Content = injectPendingCount(result.Content, openCount)
	}

	return result
}

func renderOpenAnnotations(open []annotation.Annotation) []mcp.Content {
	var blocks []mcp.Content
	for _, a := range open {
		summary := fmt.Sprintf("[%s] %s — %s", a.SelectorConfidence, a.Selector, a.Text)
		blocks = append(blocks, &mcp.TextContent{Text: summary})
		if strings.HasPrefix(a.ScreenshotDataURL, dataURLPrefix) {
			raw := strings.TrimPrefix(a.ScreenshotDataURL, dataURLPrefix)
			if _, err := base64.StdEncoding.DecodeString(raw); err == nil {
				blocks = append(blocks, &mcp.ImageContent{Data: []byte(raw), MIMEType: "image/png"})
			}
		}
	}
	return blocks
}

// injectPendingCount adds a pending_annotations field to the first text
// block that parses as a JSON object; other blocks are left untouched.
func injectPendingCount(content []mcp.Content, n int) []mcp.Content {
	for i, block := range content {
		text, ok := block.(*mcp.TextContent)
		if !ok {
			continue
		}
		updated, err := sjson.Set(text.Text, "pending_annotations", n)
		if err != nil {
			continue
		}
		content[i] = &mcp.TextContent{Text: updated}
		break
	}
	return content
}

func reinjectOverlayBadges(ctx context.Context, d *Deps) {
	d.Browser.EvaluateBestEffort(ctx, "window.__relayInspectOverlay && window.__relayInspectOverlay.refresh()")
}

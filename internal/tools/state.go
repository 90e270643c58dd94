package tools

import (
	"context"
	"sync/atomic"

	"github.com/samsolomon/relay-inspect/internal/browser"
)

// processingState is the idle/processing/done marker pushed to the
// overlay while an agent is acting on a batch of annotations.
type processingState int32

const (
	stateIdle processingState = iota
	stateProcessing
	stateDone
)

func (s processingState) String() string {
	switch s {
	case stateProcessing:
		return "processing"
	case stateDone:
		return "done"
	default:
		return "idle"
	}
}

// stateCoordinator holds the process-wide processing-state marker. It
// pushes transitions to the page as a best-effort Runtime.evaluate call;
// a disconnected session silently drops the push.
type stateCoordinator struct {
	current atomic.Int32
	mgr     *browser.Manager
}

func newStateCoordinator(mgr *browser.Manager) *stateCoordinator {
	return &stateCoordinator{mgr: mgr}
}

func (c *stateCoordinator) get() processingState {
	return processingState(c.current.Load())
}

func (c *stateCoordinator) set(ctx context.Context, s processingState) {
	c.current.Store(int32(s))
	c.mgr.EvaluateBestEffort(ctx, "window.__relayInspectOverlay && window.__relayInspectOverlay.setProcessingState("+quoteJS(s.String())+")")
}

// enterProcessing transitions idle -> processing on "send consumed".
func (c *stateCoordinator) enterProcessing(ctx context.Context) {
	c.set(ctx, stateProcessing)
}

// advanceIfProcessing transitions processing -> done at the start of the
// next tool call that is not itself a new send.
func (c *stateCoordinator) advanceIfProcessing(ctx context.Context) {
	if c.get() == stateProcessing {
		c.set(ctx, stateDone)
	}
}

func quoteJS(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	out = append(out, '"')
	return string(out)
}

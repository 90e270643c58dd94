package tools

import (
	"context"
	"testing"

	"github.com/samsolomon/relay-inspect/internal/browser"
	"github.com/samsolomon/relay-inspect/internal/config"
)

func newTestCoordinator(t *testing.T) *stateCoordinator {
	t.Helper()
	mgr := browser.NewManager(config.Default())
	return newStateCoordinator(mgr)
}

func TestStateCoordinatorStartsIdle(t *testing.T) {
	c := newTestCoordinator(t)
	if got := c.get(); got != stateIdle {
		t.Fatalf("initial state = %v, want idle", got)
	}
}

func TestStateCoordinatorEnterProcessing(t *testing.T) {
	c := newTestCoordinator(t)
	c.enterProcessing(context.Background())
	if got := c.get(); got != stateProcessing {
		t.Fatalf("state after enterProcessing = %v, want processing", got)
	}
}

func TestStateCoordinatorAdvanceOnlyFromProcessing(t *testing.T) {
	c := newTestCoordinator(t)

	// Idle -> advance is a no-op.
	c.advanceIfProcessing(context.Background())
	if got := c.get(); got != stateIdle {
		t.Fatalf("advance from idle = %v, want idle unchanged", got)
	}

	c.enterProcessing(context.Background())
	c.advanceIfProcessing(context.Background())
	if got := c.get(); got != stateDone {
		t.Fatalf("advance from processing = %v, want done", got)
	}

	// Done -> advance is a no-op.
	c.advanceIfProcessing(context.Background())
	if got := c.get(); got != stateDone {
		t.Fatalf("advance from done = %v, want done unchanged", got)
	}
}

func TestProcessingStateString(t *testing.T) {
	cases := map[processingState]string{
		stateIdle:       "idle",
		stateProcessing: "processing",
		stateDone:       "done",
		processingState(99): "idle",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", state, got, want)
		}
	}
}

func TestQuoteJS(t *testing.T) {
	cases := map[string]string{
		"done":        `"done"`,
		`say "hi"`:    `"say \"hi\""`,
		`back\slash`:  `"back\\slash"`,
	}
	for in, want := range cases {
		if got := quoteJS(in); got != want {
			t.Errorf("quoteJS(%q) = %q, want %q", in, got, want)
		}
	}
}

package tools

import (
	"context"
	"testing"
	"time"

	"github.com/samsolomon/relay-inspect/internal/process"
)

func TestProcessSummaryIncludesRuntimeAfterCompletion(t *testing.T) {
	pm := process.NewProcessManager(process.DefaultManagerConfig())
	defer pm.Shutdown(context.Background())

	proc, err := pm.StartCommand(context.Background(), process.ProcessConfig{
		ID:          "summary-test",
		ProjectPath: "/tmp",
		Command:     "echo",
		Args:        []string{"hi"},
	})
	if err != nil {
		t.Fatalf("StartCommand failed: %v", err)
	}

	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not complete in time")
	}

	summary := processSummary(proc)
	if summary["id"] != "summary-test" {
		t.Errorf("id = %v, want summary-test", summary["id"])
	}
	if summary["state"] != "stopped" {
		t.Errorf("state = %v, want stopped", summary["state"])
	}
	if _, ok := summary["started_at"]; !ok {
		t.Error("expected started_at to be present for a completed process")
	}
	if _, ok := summary["exit_code"]; !ok {
		t.Error("expected exit_code to be present for a completed process")
	}
	if _, ok := summary["runtime_seconds"]; !ok {
		t.Error("expected runtime_seconds to be present")
	}
}

func TestProcessSummaryOmitsExitCodeWhileRunning(t *testing.T) {
	pm := process.NewProcessManager(process.DefaultManagerConfig())
	defer pm.Shutdown(context.Background())

	proc, err := pm.StartCommand(context.Background(), process.ProcessConfig{
		ID:          "summary-running",
		ProjectPath: "/tmp",
		Command:     "sleep",
		Args:        []string{"60"},
	})
	if err != nil {
		t.Fatalf("StartCommand failed: %v", err)
	}
	defer pm.Stop(context.Background(), proc.ID)

	time.Sleep(100 * time.Millisecond)

	summary := processSummary(proc)
	if _, ok := summary["exit_code"]; ok {
		t.Error("running process summary should not have exit_code")
	}
	if _, ok := summary["runtime_seconds"]; !ok {
		t.Error("running process summary should still report runtime_seconds")
	}
}

package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/samsolomon/relay-inspect/internal/process"
)

// RegisterProcessTools adds the managed-process start/stop/list/logs tools
// to the server.
func RegisterProcessTools(server *mcp.Server, d *Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "start_process",
		Description: "Start a managed background process (dev server, build watcher, test runner). Reuses an already-running process with the same id and project path.",
	}, makeStartProcessHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "stop_process",
		Description: "Stop a managed process by id, gracefully then forcefully.",
	}, makeStopProcessHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_processes",
		Description: "List all managed processes and their current state.",
	}, makeListProcessesHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "process_logs",
		Description: "Retrieve buffered stdout/stderr log lines for a managed process.",
	}, makeProcessLogsHandler(d))
}

type StartProcessInput struct {
	ID          string   `json:"id" jsonschema:"Caller-chosen identifier, unique per project path"`
	ProjectPath string   `json:"project_path" jsonschema:"Working directory the process runs in"`
	Command     string   `json:"command" jsonschema:"Executable to run"`
	Args        []string `json:"args,omitempty"`
	UsePTY      bool     `json:"use_pty,omitempty" jsonschema:"Attach a pseudo-terminal instead of plain pipes"`
}

func makeStartProcessHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, StartProcessInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StartProcessInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			if input.ID == "" || input.Command == "" {
				return errorResult("start_process: id and command are required"), nil
			}

			res, err := d.Processes.StartOrReuse(ctx, process.ProcessConfig{
				ID:          input.ID,
				ProjectPath: input.ProjectPath,
				Command:     input.Command,
				Args:        input.Args,
				UsePTY:      input.UsePTY,
			})
			if err != nil {
				return errorResult(err.Error()), nil
			}

			return jsonResult(map[string]any{
				"id":            res.Process.ID,
				"pid":           res.Process.PID(),
				"state":         res.Process.State().String(),
				"reused":        res.Reused,
				"cleaned":       res.Cleaned,
				"port_retried":  res.PortRetried,
				"ports_cleared": res.PortsCleared,
				"port_error":    res.PortError,
			}), nil
		})
		return result, nil, err
	}
}

type StopProcessInput struct {
	ID string `json:"id"`
}

func makeStopProcessHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, StopProcessInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StopProcessInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			proc, err := d.Processes.Get(input.ID)
			if err != nil {
				return errorResult(err.Error()), nil
			}
			if err := d.Processes.StopProcess(ctx, proc); err != nil {
				return errorResult(err.Error()), nil
			}
			return jsonResult(map[string]any{"id": proc.ID, "state": proc.State().String()}), nil
		})
		return result, nil, err
	}
}

func makeListProcessesHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, struct{}) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			procs := d.Processes.List()
			summaries := make([]map[string]any, 0, len(procs))
			for _, p := range procs {
				summaries = append(summaries, processSummary(p))
			}
			return jsonResult(summaries), nil
		})
		return result, nil, err
	}
}

func processSummary(p *process.ManagedProcess) map[string]any {
	summary := map[string]any{
		"id":           p.ID,
		"project_path": p.ProjectPath,
		"command":      p.Command,
		"args":         p.Args,
		"pid":          p.PID(),
		"state":        p.State().String(),
	}
	if start := p.StartTime(); start != nil {
		summary["started_at"] = start.Format(time.RFC3339)
		end := p.EndTime()
		if end == nil {
			summary["runtime_seconds"] = time.Since(*start).Seconds()
		} else {
			summary["runtime_seconds"] = end.Sub(*start).Seconds()
			summary["exit_code"] = p.ExitCode()
		}
	}
	return summary
}

type ProcessLogsInput struct {
	ID     string `json:"id"`
	Stream string `json:"stream,omitempty" jsonschema:"stdout, stderr, or combined (default combined)"`
}

func makeProcessLogsHandler(d *Deps) func(context.Context, *mcp.CallToolRequest, ProcessLogsInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ProcessLogsInput) (*mcp.CallToolResult, any, error) {
		result, err := runAugmented(d, ctx, func() (*mcp.CallToolResult, error) {
			proc, err := d.Processes.Get(input.ID)
			if err != nil {
				return errorResult(err.Error()), nil
			}

			switch input.Stream {
			case "stdout":
				return jsonResult(proc.StdoutLines()), nil
			case "stderr":
				return jsonResult(proc.StderrLines()), nil
			default:
				body, _ := proc.CombinedOutput()
				text, truncated := truncateBody(string(body))
				return jsonResult(map[string]any{"logs": text, "truncated": truncated}), nil
			}
		})
		return result, nil, err
	}
}

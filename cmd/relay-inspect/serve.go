package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/samsolomon/relay-inspect/internal/config"
	"github.com/samsolomon/relay-inspect/internal/lifecycle"
	"github.com/samsolomon/relay-inspect/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `Run the browser control bridge as an MCP server communicating over stdio.

Does not contact the browser at startup: the session connects lazily on the
first tool call that needs it. The annotation service's loopback listener is
likewise lazy, binding the first time the overlay script is injected into a
connected page.`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	log.SetOutput(os.Stderr)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app := lifecycle.New(cfg)
	defer app.ShutdownSync()

	ctx, cancel := lifecycle.Signal()
	defer cancel()

	server := mcp.NewServer(
		&mcp.Implementation{Name: appName, Version: appVersion},
		&mcp.ServerOptions{
			HasTools: true,
			Instructions: `Browser control bridge. The session connects to the browser lazily, on
the first tool call that needs it, not at startup.

Available tools:
- connect: ensure a connection, or select a page by id or URL pattern
- evaluate: run JavaScript in the page
- console_logs, network_requests: retrieve captured console and network activity
- query_dom: run a CSS selector against the page
- wait_for: poll a JS expression until truthy
- screenshot, reload, navigate: page control
- reinject_overlay: re-inject the feedback overlay script
- start_process, stop_process, list_processes, process_logs: managed background processes
- list_annotations, resolve_annotation, wait_for_send: review and consume human-pinned page feedback

Every successful tool call's response is annotated with any pending or
newly-sent page feedback, so you don't need to poll the annotation tools
unless you want to inspect them directly.`,
		},
	)

	tools.RegisterAll(server, app.Deps)

	go func() {
		<-ctx.Done()
		log.Println("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		app.Shutdown(shutdownCtx)
	}()

	log.Printf("starting %s v%s", appName, appVersion)
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		if ctx.Err() == nil {
			log.Fatalf("server error: %v", err)
		}
	}
	log.Println("shutdown complete")
}

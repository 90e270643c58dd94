package tools

import "github.com/modelcontextprotocol/go-sdk/mcp"

// RegisterAll wires every tool group onto server, sharing one Deps.
func RegisterAll(server *mcp.Server, d *Deps) {
	RegisterBrowserTools(server, d)
	RegisterProcessTools(server, d)
	RegisterAnnotationTools(server, d)
}

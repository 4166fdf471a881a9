// Command genobridged runs the tool-dispatch broker: an MCP stdio server
// on stdin/stdout, plus a downstream HTTP/WebSocket surface for
// interactive genome-browser clients.
package main

func main() {
	Execute()
}

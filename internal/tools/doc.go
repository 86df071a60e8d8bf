// Package tools exposes the request/reply coordinator as MCP tools.
//
// Each tool runs one round against the connected clients and decides what
// an empty reply set means: send_broadcast_message returns it as is,
// read_folder reports an error status and update_folder a warning.
package tools

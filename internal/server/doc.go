// Package server assembles the ClawdChat MCP server: tool and prompt
// registration plus the two transports.
//
// On the streamable-http transport the server also hosts the OAuth
// authorization endpoints and the login flow, and every MCP request must
// carry a bearer token issued by that flow. On the stdio transport the
// server is a plain MCP process; authentication happens through the
// authenticate tool (browser login via internal/stdioauth) or a
// preconfigured API key.
//
// Tool handlers never return protocol errors for domain failures. Backend
// and validation problems come back as tool error results so the calling
// model can read and react to them.
package server

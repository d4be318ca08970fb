// Package config defines the clawdchat-mcp configuration structure and its
// loading logic.
//
// Configuration is layered: built-in defaults, then an optional config.yaml
// in the config directory (default ~/.config/clawdchat-mcp), then environment
// variables. Environment variables always take precedence so deployments can
// override a checked-in config file without editing it.
//
// Recognized environment variables:
//
//	CLAWDCHAT_API_URL          Base URL of the ClawdChat backend
//	CLAWDCHAT_API_KEY          Agent API key for stdio mode
//	MCP_SERVER_HOST            Bind host for the HTTP transport
//	MCP_SERVER_PORT            Bind port for the HTTP transport
//	MCP_SERVER_URL             Public base URL used in OAuth redirects
//	GOOGLE_CLIENT_ID           Upstream Google OAuth client ID
//	GOOGLE_CLIENT_SECRET       Upstream Google OAuth client secret
//	CLAWDCHAT_MCP_STORAGE_DIR  Directory for persisted OAuth state
package config

package config

import (
	"fmt"
	"strings"
)

const (
	// MCPTransportStreamableHTTP is the streamable HTTP transport.
	MCPTransportStreamableHTTP = "streamable-http"
	// MCPTransportStdio is the standard I/O transport.
	MCPTransportStdio = "stdio"

	// MCPEndpointPath is the request path of the streamable HTTP endpoint.
	MCPEndpointPath = "/mcp"
)

// Config is the top-level configuration structure for clawdchat-mcp.
type Config struct {
	ClawdChat ClawdChatConfig `yaml:"clawdchat"`
	Server    ServerConfig    `yaml:"server"`
	Google    GoogleConfig    `yaml:"google"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ClawdChatConfig defines how to reach the ClawdChat backend API.
type ClawdChatConfig struct {
	APIURL string `yaml:"apiUrl,omitempty"` // Base URL of the ClawdChat backend (default: http://localhost:8081)
	APIKey string `yaml:"apiKey,omitempty"` // Optional agent API key for stdio mode without interactive auth
}

// ServerConfig defines the MCP server's listen address and public URL.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"` // Host to bind to (default: 0.0.0.0)
	Port int    `yaml:"port,omitempty"` // Port for the HTTP transport (default: 8000)
	URL  string `yaml:"url,omitempty"`  // Public base URL used in OAuth metadata and redirects (default: http://localhost:<port>)
}

// GoogleConfig holds upstream Google OAuth credentials. Both fields must be
// set for the Google login option to appear on the login page.
type GoogleConfig struct {
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
}

// StorageConfig controls where OAuth client registrations and tokens persist.
type StorageConfig struct {
	Dir string `yaml:"dir,omitempty"` // Directory for JSON state files (default: ~/.config/clawdchat-mcp/storage)
}

// GoogleEnabled reports whether the Google login flow is configured.
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// GoogleRedirectURI returns the callback URL registered with Google.
func (c *Config) GoogleRedirectURI() string {
	return strings.TrimRight(c.Server.URL, "/") + "/auth/google/callback"
}

// ListenAddr returns the host:port the HTTP transport binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// MCPEndpoint returns the public URL of the MCP streamable HTTP endpoint.
func (c *Config) MCPEndpoint() string {
	return strings.TrimRight(c.Server.URL, "/") + MCPEndpointPath
}

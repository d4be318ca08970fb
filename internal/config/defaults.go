package config

import "fmt"

const (
	defaultAPIURL     = "http://localhost:8081"
	defaultServerHost = "0.0.0.0"
	defaultServerPort = 8000
)

// GetDefaultConfig returns the built-in defaults. A loaded config file and
// environment overrides are layered on top of this.
func GetDefaultConfig() Config {
	return Config{
		ClawdChat: ClawdChatConfig{
			APIURL: defaultAPIURL,
		},
		Server: ServerConfig{
			Host: defaultServerHost,
			Port: defaultServerPort,
			URL:  fmt.Sprintf("http://localhost:%d", defaultServerPort),
		},
	}
}

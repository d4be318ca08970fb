package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"clawdchat-mcp/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/clawdchat-mcp"
	configFileName = "config.yaml"
	storageDirName = "storage"
)

func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}

	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory. Defaults are
// applied first, then config.yaml if present, then environment variables.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			applyEnvOverrides(&config)
			applyDerived(&config, configPath)
			return config, nil
		}
		logging.Info("ConfigLoader", "Error loading config.yaml from %s: %s", configFilePath, err)
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	applyEnvOverrides(&config)
	applyDerived(&config, configPath)
	return config, nil
}

// applyEnvOverrides layers environment variables over the loaded config.
// Environment always wins so deployments can override a shared config file.
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("CLAWDCHAT_API_URL"); v != "" {
		c.ClawdChat.APIURL = v
	}
	if v := os.Getenv("CLAWDCHAT_API_KEY"); v != "" {
		c.ClawdChat.APIKey = v
	}
	if v := os.Getenv("MCP_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("MCP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		} else {
			logging.Warn("ConfigLoader", "Ignoring invalid MCP_SERVER_PORT %q", v)
		}
	}
	if v := os.Getenv("MCP_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
	if v := os.Getenv("CLAWDCHAT_MCP_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
}

// applyDerived fills values that depend on other settings once the final
// host and port are known.
func applyDerived(c *Config, configPath string) {
	if c.Server.URL == "" || c.Server.URL == fmt.Sprintf("http://localhost:%d", defaultServerPort) {
		c.Server.URL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(configPath, storageDirName)
	}
}

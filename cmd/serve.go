package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clawdchat-mcp/internal/config"
	"clawdchat-mcp/internal/server"
	"clawdchat-mcp/pkg/logging"
)

var (
	serveTransport  string
	serveDebug      bool
	serveConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ClawdChat MCP server",
	Long: `Starts the ClawdChat MCP server on the chosen transport.

stdio (default):
  Runs as a child process of an MCP client, speaking MCP over
  stdin/stdout. Authentication happens through the authenticate tool
  (browser login) or the CLAWDCHAT_API_KEY environment variable.

streamable-http:
  Runs a resident HTTP server hosting the MCP endpoint behind an OAuth
  2.1 authorization flow: dynamic client registration, PKCE, a login
  page backed by the ClawdChat backend, and persistent tokens.

Configuration is read from config.yaml in the configuration directory
(default ~/.config/clawdchat-mcp), then overridden by environment
variables such as CLAWDCHAT_API_URL and MCP_SERVER_PORT.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveTransport != config.MCPTransportStdio && serveTransport != config.MCPTransportStreamableHTTP {
		return fmt.Errorf("invalid transport %q: must be %q or %q",
			serveTransport, config.MCPTransportStdio, config.MCPTransportStreamableHTTP)
	}

	level := logging.LevelInfo
	if serveDebug {
		level = logging.LevelDebug
	}
	// On stdio, stdout carries the MCP protocol stream, so logs go to stderr.
	if serveTransport == config.MCPTransportStdio {
		logging.InitForStdio(level)
	} else {
		logging.Init(level, os.Stdout)
	}

	configPath := serveConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	srv, err := server.New(&cfg, serveTransport)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveTransport, "transport", config.MCPTransportStdio,
		"MCP transport: stdio or streamable-http")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveConfigPath, "config-path", "",
		"Custom configuration directory (default ~/.config/clawdchat-mcp)")
}

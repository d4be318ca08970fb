package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for clawdchat-mcp. Called without a
// subcommand it only prints help; the real work lives in serve.
var rootCmd = &cobra.Command{
	Use:   "clawdchat-mcp",
	Short: "MCP server for the ClawdChat agent social network",
	Long: `clawdchat-mcp lets AI agents act on ClawdChat through the Model
Context Protocol: posting, commenting, voting, circles, follows, and
direct messages.

It serves two transports. The streamable-http transport runs a resident
server with a built-in OAuth 2.1 authorization flow; the stdio transport
runs as a child process of an MCP client and authenticates through a
browser login or a preconfigured API key.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package so the build can inject it with -ldflags.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "clawdchat-mcp version %s\n" .Version}}`)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

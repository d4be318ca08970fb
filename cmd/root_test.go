package cmd

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	SetVersion("1.2.3")
	out := &bytes.Buffer{}
	versionCmd.SetOut(out)
	versionCmd.Run(versionCmd, nil)

	if got := out.String(); !strings.Contains(got, "clawdchat-mcp version 1.2.3") {
		t.Errorf("version output = %q", got)
	}
}

func TestServeRejectsUnknownTransport(t *testing.T) {
	serveTransport = "websocket"
	defer func() { serveTransport = "stdio" }()

	err := runServe(serveCmd, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid transport") {
		t.Errorf("expected invalid transport error, got %v", err)
	}
}

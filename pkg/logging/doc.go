// Package logging provides structured logging built on Go's standard slog
// package, with a subsystem identifier on every entry and level filtering.
//
// Initialize once at startup:
//
//	logging.Init(logging.LevelInfo, os.Stdout)
//
// For the stdio MCP transport use InitForStdio, which routes all log output
// to stderr so that protocol traffic on stdout is never corrupted:
//
//	logging.InitForStdio(logging.LevelInfo)
//
// Then log with a subsystem tag:
//
//	logging.Info("OAuth", "Registered client %s", clientID)
//	logging.Error("Storage", err, "Failed to persist token table")
//
// SECURITY: callers must never pass token or API key values as log
// arguments. Log identifiers (client IDs, agent names) instead.
package logging

// Package logging provides structured logging for the dictionary server.
//
// It wraps a process-global zap logger with convenience functions used
// throughout the server, plus a handful of domain helpers for connections,
// HTTP exchanges, websocket frames and device dictionary changes.
//
// # Log Levels
//
//   - Debug: per-request detail, frame dumps, dictionary change events
//   - Info: startup, dictionary install and removal, sync results
//   - Warn: recoverable problems (sync failures, skipped log inserts)
//   - Error: failures that end a connection or abort startup
//
// # Configuration
//
// Initialize logging once at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to the DICTSERVER_LOG_LEVEL environment
// variable; if that is unset too the logger is a no-op, which keeps the CLI
// client quiet.
//
// # Access Log
//
// AccessLog writes one line per completed HTTP exchange in the common log
// format, separate from the zap output:
//
//	192.168.1.20:53122 - - [18/Oct/2026:10:30:45 +0000] "GET /index.html HTTP/1.1" 200 512
package logging

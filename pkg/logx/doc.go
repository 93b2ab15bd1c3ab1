// Package logx configures miunlock's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Non-TTY output JSON-structured (plays well with the systemd journal)
package logx

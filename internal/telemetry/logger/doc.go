// Package logger provides structured logging for dzmesh.
//
// This package wraps log/slog:
//
//   - logger.go: Logger interface, configuration and the shared level
//   - context.go: Context-aware logging with message, expedition and request ids
//   - redact.go: Connection-string and secret redaction
//
// Features:
//
//   - JSON and text output formats
//   - Runtime level changes through SetLevel (config hot reload)
//   - Automatic masking of database passwords
//
// @req RQ-0403
// @design DS-0402
package logger

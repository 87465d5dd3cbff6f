// Package logger provides structured logging for sockhttp on log/slog.
//
//   - logger.go: Logger interface, JSON or text output, shared level
//   - context.go: loggers, request IDs and connection IDs carried in a context
//   - redact.go: masking of credential values and sensitive keys
//
// A connection logger is bound to a context holding the connection ID and
// each request context adds the request ID, so records from either carry
// conn_id and request_id. Components given no logger use Nop.
package logger

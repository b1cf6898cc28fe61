// Package transport defines the handler interfaces and middleware chain that
// expose the engine to remote callers.
//
// A [Request] names a query kind, a message and the caller parameters. A
// [QueryHandler] turns it into a query, runs it, and writes the outcome to a
// [ResponseWriter]: streaming events when the request asked for a stream, a
// single JSON reply otherwise.
//
// # Middleware
//
// The middleware chain wraps a QueryHandler with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
//
// # Server-Sent Events
//
// [SSEWriter] frames events as "data: <json>\n\n" on any io.Writer, flushing
// after each event. It is shared by the HTTP adapter and the CLI, which
// streams to stdout.
package transport

package transport

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that emits one structured log entry per
// request with the request ID, query kind, stream flag, duration and
// outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next QueryHandler) QueryHandler {
		return QueryHandlerFunc(func(ctx context.Context, req *Request, w ResponseWriter) error {
			start := time.Now()

			err := next.HandleQuery(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("kind", string(req.Kind)),
				slog.Bool("stream", req.Stream),
				slog.Bool("feedback", req.Feedback),
				slog.Duration("duration", time.Since(start)),
			}
			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "query failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "query completed", attrs...)
			}
			return err
		})
	}
}

package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/brubru/aiengine/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server errors. The server keeps accepting requests
// after a recovered panic.
func Recovery() Middleware {
	return func(next QueryHandler) QueryHandler {
		return QueryHandlerFunc(func(ctx context.Context, req *Request, w ResponseWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("query handler panicked", "request_id", RequestIDFromContext(ctx), "panic", r)
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.HandleQuery(ctx, req, w)
		})
	}
}

package server

import (
	"context"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor logs every unary call with its procedure, outcome and
// duration. Client errors are logged at Warn, internal ones at Error.
func LoggingInterceptor(logger *slog.Logger) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := []any{
				"procedure", req.Spec().Procedure,
				"duration", time.Since(start),
			}
			switch code := connect.CodeOf(err); {
			case err == nil:
				logger.DebugContext(ctx, "rpc", attrs...)
			case code == connect.CodeInternal || code == connect.CodeUnknown:
				logger.ErrorContext(ctx, "rpc failed", append(attrs, "code", code.String(), "error", err)...)
			default:
				logger.WarnContext(ctx, "rpc rejected", append(attrs, "code", code.String(), "error", err)...)
			}
			return resp, err
		}
	}
}

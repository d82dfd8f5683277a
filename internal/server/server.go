package server

import (
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/atlekbai/accessql/internal/middleware"
)

// ConnectService is implemented by each service to register its connect handler.
type ConnectService interface {
	RegisterHandler(interceptors ...connect.Interceptor) (string, http.Handler)
}

// NewHandler mounts services on a mux behind the logging and recovery
// middleware. extra registers additional plain HTTP routes.
func NewHandler(logger *slog.Logger, services []ConnectService, extra ...func(*http.ServeMux)) http.Handler {
	interceptors := []connect.Interceptor{
		LoggingInterceptor(logger),
	}
	mux := http.NewServeMux()
	for _, svc := range services {
		path, handler := svc.RegisterHandler(interceptors...)
		mux.Handle(path, handler)
		logger.Debug("registered service", "path", path)
	}
	for _, register := range extra {
		register(mux)
	}
	return middleware.Chain(mux, middleware.Logging(logger), middleware.Recovery(logger))
}

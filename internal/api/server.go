package api

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Server wraps the HTTP listener with sane timeouts and graceful shutdown.
type Server struct {
	handler http.Handler
	server  *http.Server
}

func NewServer(h *Handlers, feedbackWebhook http.Handler) *Server {
	handler := SetupRoutes(h, feedbackWebhook)
	return &Server{
		handler: handler,
		server: &http.Server{
			Handler:           handler,
			ReadTimeout:       30 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			// Large batches hold the connection for chunked fan-out plus
			// inter-chunk pauses.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// ListenAndServe blocks serving requests on addr. Returns
// http.ErrServerClosed after a graceful Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	return s.server.ListenAndServe()
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.server.Serve(ln)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.handler }

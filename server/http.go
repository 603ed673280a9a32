package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// HTTPServer hosts the websocket endpoint and shuts down gracefully
// when its context is canceled.
type HTTPServer struct {
	server *http.Server
	log    *slog.Logger
}

func NewHTTPServer(addr string, handler *Handler, log *slog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	return &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Run serves until the context is canceled, then drains connections
// within the shutdown timeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

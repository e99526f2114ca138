package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
)

const readHeaderTimeout = 10 * time.Second

// Server runs the HTTP API until its context is cancelled.
type Server struct {
	handler http.Handler
	cfg     Config
	log     logger.Logger
}

func NewServer(h *Handler, cfg Config, log logger.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.New().Wrap(ErrInvalidConfig, err)
	}

	return &Server{
		handler: h.Router(),
		cfg:     cfg,
		log:     log,
	}, nil
}

func (s *Server) String() string {
	return "api"
}

// Serve listens on the configured address and shuts down gracefully when
// ctx is done. A fresh http.Server is used per call so a supervisor can
// restart it.
func (s *Server) Serve(ctx context.Context) error {
	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errFactory.Wrap(ErrServe, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	errFactory := errors.New()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("API listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errFactory.Wrap(ErrServe, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errFactory.Wrap(ErrShutdown, err)
	}
	s.log.Info().Msg("API stopped")

	return ctx.Err()
}

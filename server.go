package drawrelay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"
)

const shutdownTimeout = 10 * time.Second

// Server is a relay Handler bound to a listening address.
type Server struct {
	Handler *Handler
	srv     *http.Server
}

// NewServer builds the handler, peer bus and webhook described by cfg.
func NewServer(cfg *Config) (*Server, error) {
	protocol, err := ParseProtocol(cfg.Protocol)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Protocol:       protocol,
		AllowedOrigin:  cfg.AllowedOrigin,
		StaticDir:      cfg.StaticDir,
		MaxMessageSize: cfg.MaxMessageSize,
	}

	if cfg.RedisURL != "" {
		bus, err := NewRedisPeerBusFromURL(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			return nil, err
		}
		opts.PeerBus = bus
	}

	handler := NewHandler(opts)
	handler.SetCompressionAllowed(cfg.Compression)
	handler.SetSecretUser(cfg.SecretUser, cfg.SecretPassword)
	if cfg.WebhookURL != "" {
		handler.SetWebhookURL(cfg.WebhookURL, cfg.WebhookDelay)
	}

	return &Server{
		Handler: handler,
		srv: &http.Server{
			Addr:              net.JoinHostPort("", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server is running on %s", ln.Addr())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.Handler.Close()
		return err
	case <-ctx.Done():
	}

	log.Printf("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.srv.Shutdown(shutdownCtx)

	// hijacked websocket connections are not tracked by Shutdown
	s.Handler.Close()
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	return err
}

// Package api implements the companion HTTP service: ticket issuance
// against stored credentials, account administration and an online-sessions
// view. It lives next to the notification listener, not in its data path.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/pkg/adapter/notification"
	"github.com/retroproto/msnpd/pkg/config"
	"github.com/retroproto/msnpd/pkg/store"
)

// PresenceSource is the read-only view of online sessions the API exposes.
// The notification registry implements it.
type PresenceSource interface {
	Presences() []notification.PresenceEntry
}

// Server is the ticket/admin HTTP service.
type Server struct {
	store    store.Store
	tickets  *TicketService
	presence PresenceSource
	httpSrv  *http.Server
}

// NewServer creates the API server. The presence source may be nil, in which
// case the sessions endpoint reports an empty list.
func NewServer(cfg config.APIConfig, st store.Store, presence PresenceSource) (*Server, error) {
	tickets, err := NewTicketService(TicketConfig{
		Secret: cfg.JWTSecret,
		TTL:    cfg.TicketTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("ticket service: %w", err)
	}

	s := &Server{
		store:    st,
		tickets:  tickets,
		presence: presence,
	}

	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	return s, nil
}

// router builds the chi router with the full middleware stack and routes.
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		// Ticket issuance is the unauthenticated entry point.
		r.Post("/tickets", s.issueTicket)

		r.Group(func(r chi.Router) {
			r.Use(s.requireTicket)

			r.Get("/users", s.listUsers)
			r.Post("/users", s.createUser)
			r.Get("/users/{identity}", s.getUser)
			r.Delete("/users/{identity}", s.deleteUser)

			r.Get("/sessions", s.listSessions)
		})
	})

	return r
}

// Handler exposes the configured router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Serve runs the HTTP server until the context is cancelled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "address", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("API server shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

// requestLogger logs each request through the internal logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}

// ABOUTME: Gateway server wiring: router assembly, HTTP lifecycle, graceful shutdown.
// ABOUTME: Run blocks until the context is cancelled or the listener fails.

package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/2389/parley/internal/dispatch"
	"github.com/2389/parley/internal/snapshot"
	"github.com/2389/parley/internal/store"
	"github.com/2389/parley/internal/ws"
)

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Addr        string
	Store       store.Store
	Broadcaster *dispatch.Broadcaster
	Dispatcher  *dispatch.Dispatcher
	Logger      *slog.Logger
}

// Server owns the HTTP surface: the JSON API, the websocket rooms, and the
// health endpoint.
type Server struct {
	addr       string
	store      store.Store
	dispatcher *dispatch.Dispatcher
	hub        *ws.Hub
	handlers   *Handlers
	logger     *slog.Logger
}

// NewServer assembles a server from its collaborators.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:       opts.Addr,
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		hub:        ws.NewHub(opts.Broadcaster, logger),
		handlers: &Handlers{
			Store:      opts.Store,
			Transcript: snapshot.NewTranscriptRenderer(),
			Logger:     logger.With("component", "api"),
		},
		logger: logger.With("component", "gateway"),
	}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.hub.HandleWS)
	MountRoutes(r, s.handlers)

	return r
}

// Run starts the dispatcher and the HTTP listener, blocking until ctx is
// cancelled or the listener fails. Shutdown drains in-flight robot turns.
func (s *Server) Run(ctx context.Context) error {
	if s.dispatcher != nil {
		s.dispatcher.Start(ctx)
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}

		if s.dispatcher != nil {
			s.dispatcher.Wait()
		}
		return nil
	})

	return g.Wait()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"connections": s.hub.ConnectionCount(),
	})
}

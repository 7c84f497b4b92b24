// Package httpapi serves the admin adjudication API, the media-server
// webhook, health and metrics over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/nyamedia/nyabot/bots/nyamedia/domain"
	"github.com/nyamedia/nyabot/bots/nyamedia/notify"
	coremetrics "github.com/nyamedia/nyabot/core/metrics"
	"github.com/nyamedia/nyabot/core/logger"
)

// Ledger is the request ledger as seen by administrators.
type Ledger interface {
	ListPending(ctx context.Context) ([]domain.RequestView, error)
	ListArchived(ctx context.Context) ([]domain.RequestView, error)
	Adjudicate(ctx context.Context, id int64, to domain.Status) (domain.MediaRequest, error)
	BatchFetchMissingMetadata(ctx context.Context) (domain.BatchReport, error)
}

// Directory looks up registrations.
type Directory interface {
	Get(ctx context.Context, chatID int64) (domain.Registration, error)
}

// Arrivals receives media-server library events.
type Arrivals interface {
	OnLibraryArrival(ctx context.Context, ev notify.Event) notify.Outcome
}

// Options configures a Server.
type Options struct {
	Listen     string
	AdminToken string

	Ledger    Ledger
	Directory Directory
	Arrivals  Arrivals
}

// Server is the HTTP surface.
type Server struct {
	listen string
	router *mux.Router
}

// New builds the router.
func New(opts Options) *Server {
	h := &handlers{ledger: opts.Ledger, dir: opts.Directory, arrivals: opts.Arrivals}

	r := mux.NewRouter()
	r.Use(recoverMiddleware, requestIDMiddleware, accessLogMiddleware, metricsMiddleware)

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", coremetrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/webhook", h.webhook).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(bearerAuth(opts.AdminToken))
	api.HandleFunc("/requests/pending", h.listPending).Methods(http.MethodGet)
	api.HandleFunc("/requests/archived", h.listArchived).Methods(http.MethodGet)
	api.HandleFunc("/requests/status", h.updateStatus).Methods(http.MethodPost)
	api.HandleFunc("/requests/fetch-metadata", h.fetchMetadata).Methods(http.MethodPost)
	api.HandleFunc("/registrations/{chat_id:-?[0-9]+}", h.registration).Methods(http.MethodGet)

	return &Server{listen: opts.Listen, router: r}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http", "listen", slog.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http", "shutdown", slog.String("status", "fail"), logger.Err(err))
		return err
	}
	logger.Info(ctx, "http", "shutdown", slog.String("status", "ok"))
	return nil
}

// Package httpapi exposes the vault over HTTP: multipart upload, link
// configuration, artifact info, and download streaming. It owns the
// mapping from the core error taxonomy to status codes; not-found and
// unauthorized deliberately share one opaque response so an unauthenticated
// prober cannot learn whether an artifact exists.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/droplocker/droplocker/internal/logging"
	"github.com/droplocker/droplocker/internal/server/vault"
)

// maxUploadBytes bounds a single upload (form data included).
const maxUploadBytes = 100 << 20

type Server struct {
	addr       string
	baseURL    string
	vault      *vault.Service
	logger     logging.Logger
	linkSecret []byte
}

func NewServer(addr, baseURL string, l logging.Logger, v *vault.Service, linkSecret string) *Server {
	return &Server{
		addr:       addr,
		baseURL:    baseURL,
		vault:      v,
		logger:     l.With("module", "http_server"),
		linkSecret: []byte(linkSecret),
	}
}

// Routes builds the HTTP handler, middleware included.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/link", s.handleLink).Methods(http.MethodPost)
	api.HandleFunc("/info/{id}", s.handleInfo).Methods(http.MethodGet)
	api.HandleFunc("/download/{id}", s.handleDownload).Methods(http.MethodGet)

	return s.withLogging(s.withRecover(r))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

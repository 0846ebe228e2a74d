package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/gemcaller/types"
)

// StatusProvider reports engine state for /healthz
type StatusProvider interface {
	Status() types.Status
}

// Server is the liveness + metrics HTTP endpoint
type Server struct {
	router *mux.Router
	server *http.Server
	status StatusProvider
}

// NewServer creates a server on port. metrics may be nil.
func NewServer(port int, status StatusProvider, metrics http.Handler) *Server {
	s := &Server{router: mux.NewRouter(), status: status}

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) {
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("🌐 Health server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Health server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Health server shutdown")
		}
	}()
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "gemcaller running")
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "alive")
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var st types.Status
	if s.status != nil {
		st = s.status.Status()
	}
	if err := json.NewEncoder(w).Encode(st); err != nil {
		log.Debug().Err(err).Msg("healthz encode")
	}
}

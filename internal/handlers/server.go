package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cineplex/internal/config"
	"cineplex/internal/utils"
)

type Server struct {
	config     *config.Config
	logger     *utils.Logger
	httpServer *http.Server
	apiHandler *APIHandler
	auth       *Authenticator
	issuer     *KeyIssuer
	socket     *AutocompleteSocket
	gatherer   prometheus.Gatherer
}

// NewServer wires the HTTP surface. issuer may be nil to leave /api/keys
// unmounted and gatherer may be nil to skip /metrics.
func NewServer(cfg *config.Config, service FilmService, issuer *KeyIssuer, gatherer prometheus.Gatherer, logger *utils.Logger) *Server {
	auth := NewAuthenticator(cfg.App.JWTSecret, cfg.App.UIPassword)
	return &Server{
		config:     cfg,
		logger:     logger,
		auth:       auth,
		apiHandler: NewAPIHandler(service, auth, logger),
		issuer:     issuer,
		socket:     NewAutocompleteSocket(service, cfg.AutocompleteDebounce(), logger),
		gatherer:   gatherer,
	}
}

func (s *Server) Router() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/login", s.apiHandler.Login).Methods("POST")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(s.auth.Middleware)

	protected.HandleFunc("/search", s.apiHandler.Search).Methods("GET")
	protected.HandleFunc("/autocomplete", s.apiHandler.Autocomplete).Methods("GET")
	protected.HandleFunc("/films/{id}", s.apiHandler.GetFilm).Methods("GET")
	protected.HandleFunc("/films/{id}/similar", s.apiHandler.GetSimilar).Methods("GET")
	protected.HandleFunc("/history", s.apiHandler.GetHistory).Methods("GET")
	protected.HandleFunc("/history", s.apiHandler.ClearHistory).Methods("DELETE")
	protected.HandleFunc("/favorites", s.apiHandler.GetFavorites).Methods("GET")
	protected.HandleFunc("/favorites/{id}", s.apiHandler.ToggleFavorite).Methods("POST")
	protected.HandleFunc("/status", s.apiHandler.GetSystemStatus).Methods("GET")

	router.Handle("/ws/autocomplete", s.auth.Middleware(s.socket))

	if s.issuer != nil {
		router.Handle("/api/keys", s.issuer).Methods("GET")
	}
	if s.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return router
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.App.Port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.logger.Info("Starting server on port", s.config.App.Port)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

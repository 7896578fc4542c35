package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"cineplex/internal/clients/credentials"
	"cineplex/internal/clients/fetch"
	"cineplex/internal/clients/metadata"
	"cineplex/internal/core"
	"cineplex/internal/database/models"
	"cineplex/internal/utils"
)

// FilmService is what the API needs from the core manager.
type FilmService interface {
	Search(ctx context.Context, query string) (*core.FilmView, error)
	Autocomplete(ctx context.Context, query string) ([]core.Suggestion, error)
	Load(ctx context.Context, id int) (*core.FilmView, error)
	Similar(ctx context.Context, id int) ([]models.MovieRef, error)
	History() ([]models.MovieRef, error)
	ClearHistory() error
	Favorites() ([]models.MovieRef, error)
	ToggleFavorite(ctx context.Context, id int) (bool, error)
	GetSystemStatus(ctx context.Context) core.SystemStatus
}

type APIHandler struct {
	service FilmService
	auth    *Authenticator
	logger  *utils.Logger
}

// A helper function to respond with JSON
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to respond with a JSON error
func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, core.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, credentials.ErrNoCredentialAvailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, fetch.ErrResourceUnavailable), errors.Is(err, metadata.ErrInvalidPayload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *APIHandler) fail(w http.ResponseWriter, what string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(what+":", err)
	} else {
		h.logger.Debug(what+":", err)
	}
	respondError(w, status, err.Error())
}

func NewAPIHandler(service FilmService, auth *Authenticator, logger *utils.Logger) *APIHandler {
	return &APIHandler{service: service, auth: auth, logger: logger}
}

// Login exchanges the UI password for a session token.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if !h.auth.Enabled() {
		respondJSON(w, http.StatusOK, map[string]string{"token": ""})
		return
	}
	if !h.auth.CheckPassword(req.Password) {
		respondError(w, http.StatusUnauthorized, "Incorrect password")
		return
	}

	token, err := h.auth.IssueToken()
	if err != nil {
		h.logger.Error("Failed to sign token:", err)
		respondError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandler) Search(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, "Search failed", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *APIHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.service.Autocomplete(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, "Autocomplete failed", err)
		return
	}
	respondJSON(w, http.StatusOK, suggestions)
}

func (h *APIHandler) GetFilm(w http.ResponseWriter, r *http.Request) {
	id, ok := filmID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Load(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to load film", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (h *APIHandler) GetSimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := filmID(w, r)
	if !ok {
		return
	}
	similar, err := h.service.Similar(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to load similar films", err)
		return
	}
	respondJSON(w, http.StatusOK, similar)
}

func (h *APIHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History()
	if err != nil {
		h.fail(w, "Failed to read history", err)
		return
	}
	respondJSON(w, http.StatusOK, history)
}

func (h *APIHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearHistory(); err != nil {
		h.fail(w, "Failed to clear history", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := h.service.Favorites()
	if err != nil {
		h.fail(w, "Failed to read favorites", err)
		return
	}
	respondJSON(w, http.StatusOK, favorites)
}

func (h *APIHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := filmID(w, r)
	if !ok {
		return
	}
	favorite, err := h.service.ToggleFavorite(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to toggle favorite", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "favorite": favorite})
}

func (h *APIHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.GetSystemStatus(r.Context()))
}

func filmID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "Invalid film ID")
		return 0, false
	}
	return id, true
}

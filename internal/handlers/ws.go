package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"cineplex/internal/core"
	"cineplex/internal/utils"
)

const (
	wsWriteWait = 10 * time.Second
	wsMaxQuery  = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type autocompleteReply struct {
	Query       string            `json:"query"`
	Suggestions []core.Suggestion `json:"suggestions"`
}

// AutocompleteSocket answers typed queries over a websocket. Each text frame
// replaces the pending query; a lookup runs once the client has been quiet
// for the debounce interval.
type AutocompleteSocket struct {
	service  FilmService
	debounce time.Duration
	logger   *utils.Logger
}

func NewAutocompleteSocket(service FilmService, debounce time.Duration, logger *utils.Logger) *AutocompleteSocket {
	return &AutocompleteSocket{service: service, debounce: debounce, logger: logger}
}

func (s *AutocompleteSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade error:", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxQuery)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	queries := make(chan string, 1)
	go func() {
		defer close(queries)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			select {
			case queries <- strings.TrimSpace(string(msg)):
			case <-ctx.Done():
				return
			}
		}
	}()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	pending := ""
	for {
		select {
		case q, ok := <-queries:
			if !ok {
				return
			}
			pending = q
			timer.Reset(s.debounce)
		case <-timer.C:
			suggestions, err := s.service.Autocomplete(ctx, pending)
			if err != nil {
				s.logger.Warn("Autocomplete failed:", err)
				suggestions = []core.Suggestion{}
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(autocompleteReply{Query: pending, Suggestions: suggestions}); err != nil {
				s.logger.Debug("Websocket write error:", err)
				return
			}
		}
	}
}

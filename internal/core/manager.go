package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/host"
	"github.com/shirou/gopsutil/mem"

	"cineplex/internal/clients/fetch"
	"cineplex/internal/clients/metadata"
	"cineplex/internal/config"
	"cineplex/internal/database/models"
	"cineplex/internal/utils"
)

var (
	ErrEmptyQuery = errors.New("empty search query")
	ErrNotFound   = errors.New("movie not found")
)

// MetadataAPI is the typed metadata API the manager reads from.
type MetadataAPI interface {
	SearchByKeyword(ctx context.Context, keyword string) (*metadata.SearchResult, error)
	Film(ctx context.Context, id int) (*metadata.Film, error)
	Staff(ctx context.Context, filmID int) ([]metadata.StaffMember, error)
	Similars(ctx context.Context, id int) (*metadata.SimilarResult, error)
}

// CredentialStore is the part of the credential store the manager drives.
type CredentialStore interface {
	Refresh(ctx context.Context)
	Stats() (size int, refreshedAt time.Time)
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Year   string `json:"year,omitempty"`
	Rating string `json:"rating,omitempty"`
	Poster string `json:"poster,omitempty"`
}

// Person is a director or cast member shown with a film.
type Person struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Player describes how the browser should embed the external video player.
type Player struct {
	KinopoiskID int    `json:"kinopoisk_id"`
	ScriptURL   string `json:"script_url"`
	Token       string `json:"token,omitempty"`
}

// FilmView is everything the movie page needs in one payload.
type FilmView struct {
	Film      *metadata.Film    `json:"film"`
	Title     string            `json:"title"`
	Rating    float64           `json:"rating"`
	Genre     string            `json:"genre"`
	Directors []Person          `json:"directors"`
	Cast      []Person          `json:"cast"`
	Similar   []models.MovieRef `json:"similar"`
	Player    *Player           `json:"player,omitempty"`
	Favorite  bool              `json:"favorite"`
}

type SystemStatus struct {
	CredentialPoolSize int        `json:"credential_pool_size"`
	CredentialsAt      *time.Time `json:"credentials_refreshed_at,omitempty"`
	MemoEntries        int        `json:"memo_entries"`
	HistoryEntries     int        `json:"history_entries"`
	FavoriteEntries    int        `json:"favorite_entries"`
	MemoryTotal        uint64     `json:"memory_total,omitempty"`
	MemoryUsedPercent  float64    `json:"memory_used_percent,omitempty"`
	HostUptime         uint64     `json:"host_uptime_seconds,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
}

type Manager struct {
	api          MetadataAPI
	credentials  CredentialStore
	memo         fetch.Memo
	historyRepo  *models.HistoryRepository
	favoriteRepo *models.FavoriteRepository
	logger       *utils.Logger
	scheduler    *cron.Cron
	startedAt    time.Time

	mu  sync.RWMutex
	cfg *config.Config
}

func NewManager(cfg *config.Config, db *sql.DB, api MetadataAPI, store CredentialStore, memo fetch.Memo, logger *utils.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		api:          api,
		credentials:  store,
		memo:         memo,
		historyRepo:  models.NewHistoryRepository(db),
		favoriteRepo: models.NewFavoriteRepository(db),
		logger:       logger,
		scheduler:    cron.New(),
		startedAt:    time.Now(),
	}
}

// UpdateConfig swaps in a reloaded config for limits and player settings.
func (m *Manager) UpdateConfig(cfg *config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
}

func (m *Manager) current() *config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Search resolves query to the first keyword hit and loads it.
func (m *Manager) Search(ctx context.Context, query string) (*FilmView, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	result, err := m.api.SearchByKeyword(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(result.Films) == 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, query)
	}

	m.logger.Debug("Search", query, "resolved to film", result.Films[0].FilmID)
	return m.Load(ctx, result.Films[0].FilmID)
}

// Autocomplete returns a few suggestions once the query is long enough.
// Short queries and API failures both yield an empty list.
func (m *Manager) Autocomplete(ctx context.Context, query string) ([]Suggestion, error) {
	cfg := m.current()
	query = strings.TrimSpace(query)
	suggestions := []Suggestion{}
	if utf8.RuneCountInString(query) < cfg.Limits.AutocompleteMinChars {
		return suggestions, nil
	}

	result, err := m.api.SearchByKeyword(ctx, query)
	if err != nil {
		m.logger.Warn("Autocomplete for", query, "failed:", err)
		return suggestions, nil
	}

	for _, film := range result.Films {
		if len(suggestions) >= cfg.Limits.Autocomplete {
			break
		}
		s := Suggestion{
			ID:     film.FilmID,
			Name:   film.DisplayName(),
			Year:   film.Year,
			Poster: film.PosterURLPreview,
		}
		if film.HasRating() {
			s.Rating = film.Rating
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

// Load fetches a film with its staff and similar titles and records it in
// the history. Staff and similar titles are optional: failures leave them empty.
func (m *Manager) Load(ctx context.Context, id int) (*FilmView, error) {
	cfg := m.current()

	film, err := m.api.Film(ctx, id)
	if err != nil {
		return nil, err
	}

	view := &FilmView{
		Film:      film,
		Title:     film.DisplayName(),
		Rating:    film.Rating(),
		Genre:     film.PrimaryGenre(),
		Directors: []Person{},
		Cast:      []Person{},
		Similar:   []models.MovieRef{},
		Player: &Player{
			KinopoiskID: film.KinopoiskID,
			ScriptURL:   cfg.Player.ScriptURL,
			Token:       cfg.Player.Token,
		},
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		staff, err := m.api.Staff(ctx, film.KinopoiskID)
		if err != nil {
			m.logger.Warn("Failed to load staff for", film.KinopoiskID, ":", err)
			return
		}
		view.Directors = people(metadata.FilterStaff(staff, metadata.ProfessionDirector, cfg.Limits.Directors))
		view.Cast = people(metadata.FilterStaff(staff, metadata.ProfessionActor, cfg.Limits.Actors))
	}()
	go func() {
		defer wg.Done()
		similar, err := m.similar(ctx, film.KinopoiskID, cfg.Limits.Similar)
		if err != nil {
			m.logger.Warn("Failed to load similar films for", film.KinopoiskID, ":", err)
			return
		}
		view.Similar = similar
	}()
	wg.Wait()

	if view.Favorite, err = m.favoriteRepo.IsFavorite(film.KinopoiskID); err != nil {
		m.logger.Error("Failed to read favorite state:", err)
	}

	ref := refFromFilm(film)
	if err := m.historyRepo.Add(ref, cfg.Limits.History); err != nil {
		m.logger.Error("Failed to record history for", ref.ID, ":", err)
	}

	return view, nil
}

func (m *Manager) Similar(ctx context.Context, id int) ([]models.MovieRef, error) {
	return m.similar(ctx, id, m.current().Limits.Similar)
}

func (m *Manager) similar(ctx context.Context, id, limit int) ([]models.MovieRef, error) {
	result, err := m.api.Similars(ctx, id)
	if err != nil {
		return nil, err
	}

	refs := []models.MovieRef{}
	for _, item := range metadata.WithPosters(result.Items, limit) {
		refs = append(refs, models.MovieRef{
			ID:     item.FilmID,
			Name:   item.DisplayName(),
			Poster: item.PosterURLPreview,
		})
	}
	return refs, nil
}

func (m *Manager) History() ([]models.MovieRef, error) {
	return m.historyRepo.List()
}

func (m *Manager) ClearHistory() error {
	return m.historyRepo.Clear()
}

func (m *Manager) Favorites() ([]models.MovieRef, error) {
	return m.favoriteRepo.List()
}

// ToggleFavorite flips the favorite state of a film and reports the new state.
func (m *Manager) ToggleFavorite(ctx context.Context, id int) (bool, error) {
	favorite, err := m.favoriteRepo.IsFavorite(id)
	if err != nil {
		return false, err
	}

	ref := models.MovieRef{ID: id}
	if !favorite {
		film, err := m.api.Film(ctx, id)
		if err != nil {
			return false, err
		}
		ref = refFromFilm(film)
	}

	on, err := m.favoriteRepo.Toggle(ref)
	if err != nil {
		return false, fmt.Errorf("failed to toggle favorite %d: %w", id, err)
	}
	m.logger.Info("Favorite", id, "set to", on)
	return on, nil
}

// StartScheduler warms the credential pool and keeps refreshing it on the
// configured schedule.
func (m *Manager) StartScheduler() error {
	schedule := m.current().Credentials.RefreshSchedule
	_, err := m.scheduler.AddFunc(schedule, m.refreshCredentials)
	if err != nil {
		return fmt.Errorf("invalid refresh schedule '%s': %w", schedule, err)
	}
	m.scheduler.Start()
	m.logger.Info("Scheduler started. Performing initial credential refresh.")
	go m.refreshCredentials()
	return nil
}

func (m *Manager) Stop() {
	if m.scheduler != nil {
		<-m.scheduler.Stop().Done()
	}
}

func (m *Manager) refreshCredentials() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m.credentials.Refresh(ctx)
	size, _ := m.credentials.Stats()
	m.logger.Info("Credential pool holds", size, "keys")
}

func (m *Manager) GetSystemStatus(ctx context.Context) SystemStatus {
	size, refreshedAt := m.credentials.Stats()
	status := SystemStatus{
		CredentialPoolSize: size,
		StartedAt:          m.startedAt,
	}
	if !refreshedAt.IsZero() {
		status.CredentialsAt = &refreshedAt
	}
	if m.memo != nil {
		status.MemoEntries = m.memo.Len(ctx)
	}
	if history, err := m.historyRepo.List(); err == nil {
		status.HistoryEntries = len(history)
	}
	if favorites, err := m.favoriteRepo.List(); err == nil {
		status.FavoriteEntries = len(favorites)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status.MemoryTotal = vm.Total
		status.MemoryUsedPercent = vm.UsedPercent
	} else {
		m.logger.Debug("Failed to read memory stats:", err)
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		status.HostUptime = uptime
	}

	return status
}

func refFromFilm(film *metadata.Film) models.MovieRef {
	return models.MovieRef{
		ID:     film.KinopoiskID,
		Name:   film.DisplayName(),
		Poster: film.Poster(),
		Year:   film.Year,
	}
}

func people(staff []metadata.StaffMember) []Person {
	out := make([]Person, 0, len(staff))
	for _, member := range staff {
		out = append(out, Person{ID: member.StaffID, Name: member.DisplayName()})
	}
	return out
}

package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cineplex/internal/clients/fetch"
	"cineplex/internal/clients/metadata"
	"cineplex/internal/config"
	"cineplex/internal/database"
	"cineplex/internal/utils"
)

type fakeAPI struct {
	mu       sync.Mutex
	films    map[int]*metadata.Film
	search   map[string][]metadata.SearchFilm
	staff    map[int][]metadata.StaffMember
	similars map[int][]metadata.SimilarFilm
	failing  map[string]bool
	searches int
}

func (f *fakeAPI) SearchByKeyword(ctx context.Context, keyword string) (*metadata.SearchResult, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()
	if f.failing["search"] {
		return nil, fetch.ErrResourceUnavailable
	}
	return &metadata.SearchResult{Keyword: keyword, Films: f.search[keyword]}, nil
}

func (f *fakeAPI) Film(ctx context.Context, id int) (*metadata.Film, error) {
	film, ok := f.films[id]
	if !ok {
		return nil, fetch.ErrResourceUnavailable
	}
	return film, nil
}

func (f *fakeAPI) Staff(ctx context.Context, filmID int) ([]metadata.StaffMember, error) {
	if f.failing["staff"] {
		return nil, fetch.ErrResourceUnavailable
	}
	return f.staff[filmID], nil
}

func (f *fakeAPI) Similars(ctx context.Context, id int) (*metadata.SimilarResult, error) {
	if f.failing["similars"] {
		return nil, fetch.ErrResourceUnavailable
	}
	return &metadata.SimilarResult{Items: f.similars[id]}, nil
}

type fakeStore struct {
	refreshes int32
}

func (s *fakeStore) Refresh(ctx context.Context) { atomic.AddInt32(&s.refreshes, 1) }

func (s *fakeStore) Stats() (int, time.Time) {
	return 3, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	cfg.Player.Token = "player-token"
	return cfg
}

func newTestManager(t *testing.T, api *fakeAPI) (*Manager, *fakeStore) {
	t.Helper()
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db, nil))
	t.Cleanup(func() { db.Close() })

	store := &fakeStore{}
	m := NewManager(testConfig(t), db, api, store, fetch.NewMemoryMemo(), utils.NewNopLogger())
	return m, store
}

func matrixAPI() *fakeAPI {
	imdb := 8.7
	return &fakeAPI{
		films: map[int]*metadata.Film{
			301: {
				KinopoiskID:      301,
				NameRu:           "Матрица",
				NameEn:           "The Matrix",
				PosterURL:        "http://img/301.jpg",
				PosterURLPreview: "http://img/301-small.jpg",
				RatingImdb:       &imdb,
				Year:             1999,
				Genres:           []metadata.Genre{{Genre: "фантастика"}, {Genre: "боевик"}},
			},
			302: {KinopoiskID: 302, NameEn: "Reloaded", Year: 2003},
		},
		search: map[string][]metadata.SearchFilm{
			"матрица": {
				{FilmID: 301, NameRu: "Матрица", Year: "1999", Rating: "8.5"},
				{FilmID: 302, NameEn: "Reloaded", Year: "2003", Rating: "null"},
				{FilmID: 303, NameRu: "3"}, {FilmID: 304, NameRu: "4"},
				{FilmID: 305, NameRu: "5"}, {FilmID: 306, NameRu: "6"},
			},
		},
		staff: map[int][]metadata.StaffMember{
			301: {
				{StaffID: 1, NameRu: "Лана Вачовски", ProfessionKey: "DIRECTOR"},
				{StaffID: 2, NameRu: "Лилли Вачовски", ProfessionKey: "DIRECTOR"},
				{StaffID: 3, NameRu: "Третий режиссёр", ProfessionKey: "DIRECTOR"},
				{StaffID: 4, NameRu: "Киану Ривз", ProfessionKey: "ACTOR"},
				{StaffID: 5, NameEn: "Laurence Fishburne", ProfessionKey: "ACTOR"},
				{StaffID: 6, NameRu: "Кэрри-Энн Мосс", ProfessionKey: "ACTOR"},
				{StaffID: 7, NameRu: "Хьюго Уивинг", ProfessionKey: "ACTOR"},
				{StaffID: 8, NameRu: "Глория Фостер", ProfessionKey: "ACTOR"},
				{StaffID: 9, NameRu: "Оператор", ProfessionKey: "OPERATOR"},
			},
		},
		similars: map[int][]metadata.SimilarFilm{
			301: {
				{FilmID: 302, NameEn: "Reloaded", PosterURLPreview: "http://img/302"},
				{FilmID: 999, NameRu: "Без постера"},
				{FilmID: 303, NameRu: "Революция", PosterURLPreview: "http://img/303"},
			},
		},
		failing: map[string]bool{},
	}
}

func TestSearchLoadsFirstHit(t *testing.T) {
	m, _ := newTestManager(t, matrixAPI())

	view, err := m.Search(context.Background(), "  матрица ")
	require.NoError(t, err)

	assert.Equal(t, 301, view.Film.KinopoiskID)
	assert.Equal(t, "Матрица", view.Title)
	assert.Equal(t, 8.7, view.Rating)
	assert.Equal(t, "фантастика", view.Genre)
	assert.Len(t, view.Directors, 2)
	require.Len(t, view.Cast, 4)
	assert.Equal(t, "Laurence Fishburne", view.Cast[1].Name)
	assert.Equal(t, []int{302, 303}, []int{view.Similar[0].ID, view.Similar[1].ID})
	assert.Equal(t, &Player{KinopoiskID: 301, ScriptURL: "https://allohatv.github.io/insert-player.js", Token: "player-token"}, view.Player)
	assert.False(t, view.Favorite)
}

func TestSearchErrors(t *testing.T) {
	api := matrixAPI()
	m, _ := newTestManager(t, api)
	ctx := context.Background()

	_, err := m.Search(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 0, api.searches)

	_, err = m.Search(ctx, "нет такого")
	assert.ErrorIs(t, err, ErrNotFound)

	api.failing["search"] = true
	_, err = m.Search(ctx, "матрица")
	assert.ErrorIs(t, err, fetch.ErrResourceUnavailable)
}

func TestAutocomplete(t *testing.T) {
	api := matrixAPI()
	m, _ := newTestManager(t, api)
	ctx := context.Background()

	suggestions, err := m.Autocomplete(ctx, "м")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
	assert.Equal(t, 0, api.searches)

	suggestions, err = m.Autocomplete(ctx, "матрица")
	require.NoError(t, err)
	require.Len(t, suggestions, 5)
	assert.Equal(t, "8.5", suggestions[0].Rating)
	assert.Equal(t, "", suggestions[1].Rating)
	assert.Equal(t, "Reloaded", suggestions[1].Name)

	api.failing["search"] = true
	suggestions, err = m.Autocomplete(ctx, "матрица")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestLoadDegradesWithoutStaffOrSimilar(t *testing.T) {
	api := matrixAPI()
	api.failing["staff"] = true
	api.failing["similars"] = true
	m, _ := newTestManager(t, api)

	view, err := m.Load(context.Background(), 301)
	require.NoError(t, err)
	assert.Empty(t, view.Directors)
	assert.Empty(t, view.Cast)
	assert.Empty(t, view.Similar)
	assert.NotNil(t, view.Player)
}

func TestLoadFailureIsReturned(t *testing.T) {
	m, _ := newTestManager(t, matrixAPI())
	_, err := m.Load(context.Background(), 404)
	assert.True(t, errors.Is(err, fetch.ErrResourceUnavailable))

	history, err := m.History()
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestLoadRecordsHistory(t *testing.T) {
	m, _ := newTestManager(t, matrixAPI())
	ctx := context.Background()

	_, err := m.Load(ctx, 302)
	require.NoError(t, err)
	_, err = m.Load(ctx, 301)
	require.NoError(t, err)
	_, err = m.Load(ctx, 302)
	require.NoError(t, err)

	history, err := m.History()
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 302, history[0].ID)
	assert.Equal(t, "Reloaded", history[0].Name)

	require.NoError(t, m.ClearHistory())
	history, err = m.History()
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestToggleFavorite(t *testing.T) {
	m, _ := newTestManager(t, matrixAPI())
	ctx := context.Background()

	on, err := m.ToggleFavorite(ctx, 301)
	require.NoError(t, err)
	assert.True(t, on)

	favorites, err := m.Favorites()
	require.NoError(t, err)
	require.Len(t, favorites, 1)
	assert.Equal(t, "Матрица", favorites[0].Name)
	assert.Equal(t, "http://img/301-small.jpg", favorites[0].Poster)

	view, err := m.Load(ctx, 301)
	require.NoError(t, err)
	assert.True(t, view.Favorite)

	on, err = m.ToggleFavorite(ctx, 301)
	require.NoError(t, err)
	assert.False(t, on)

	_, err = m.ToggleFavorite(ctx, 404)
	assert.ErrorIs(t, err, fetch.ErrResourceUnavailable)
}

func TestSchedulerRefreshesCredentials(t *testing.T) {
	m, store := newTestManager(t, matrixAPI())
	require.NoError(t, m.StartScheduler())
	defer m.Stop()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&store.refreshes) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	m, _ := newTestManager(t, matrixAPI())
	cfg := *m.current()
	cfg.Credentials.RefreshSchedule = "whenever"
	m.UpdateConfig(&cfg)

	assert.Error(t, m.StartScheduler())
}

func TestGetSystemStatus(t *testing.T) {
	m, _ := newTestManager(t, matrixAPI())
	ctx := context.Background()
	_, err := m.Load(ctx, 301)
	require.NoError(t, err)

	status := m.GetSystemStatus(ctx)
	assert.Equal(t, 3, status.CredentialPoolSize)
	require.NotNil(t, status.CredentialsAt)
	assert.Equal(t, 1, status.HistoryEntries)
	assert.Equal(t, 0, status.FavoriteEntries)
	assert.False(t, status.StartedAt.IsZero())
}

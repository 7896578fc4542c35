package metadata

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidPayload means the API answered with JSON that is not the expected shape.
var ErrInvalidPayload = errors.New("metadata: invalid payload")

const (
	ProfessionDirector = "DIRECTOR"
	ProfessionActor    = "ACTOR"
)

// SearchResult is the answer of the keyword search.
type SearchResult struct {
	Keyword    string       `json:"keyword"`
	PagesCount int          `json:"pagesCount"`
	Films      []SearchFilm `json:"films"`
}

// SearchFilm is one keyword search hit. Year and Rating come back as strings,
// Rating is the literal "null" when unknown.
type SearchFilm struct {
	FilmID           int     `json:"filmId"`
	NameRu           string  `json:"nameRu"`
	NameEn           string  `json:"nameEn"`
	Type             string  `json:"type"`
	Year             string  `json:"year"`
	Description      string  `json:"description"`
	Rating           string  `json:"rating"`
	PosterURL        string  `json:"posterUrl"`
	PosterURLPreview string  `json:"posterUrlPreview"`
	Genres           []Genre `json:"genres"`
}

func (f SearchFilm) DisplayName() string {
	return firstNonEmpty(f.NameRu, f.NameEn)
}

// HasRating reports whether the search hit carries a usable rating.
func (f SearchFilm) HasRating() bool {
	return f.Rating != "" && f.Rating != "null"
}

type Genre struct {
	Genre string `json:"genre"`
}

type Country struct {
	Country string `json:"country"`
}

type Film struct {
	KinopoiskID      int       `json:"kinopoiskId"`
	ImdbID           string    `json:"imdbId"`
	NameRu           string    `json:"nameRu"`
	NameEn           string    `json:"nameEn"`
	NameOriginal     string    `json:"nameOriginal"`
	PosterURL        string    `json:"posterUrl"`
	PosterURLPreview string    `json:"posterUrlPreview"`
	RatingKinopoisk  *float64  `json:"ratingKinopoisk"`
	RatingImdb       *float64  `json:"ratingImdb"`
	Year             int       `json:"year"`
	FilmLength       int       `json:"filmLength"`
	Description      string    `json:"description"`
	ShortDescription string    `json:"shortDescription"`
	Type             string    `json:"type"`
	WebURL           string    `json:"webUrl"`
	Genres           []Genre   `json:"genres"`
	Countries        []Country `json:"countries"`
}

// DisplayName prefers the Russian title, then English, then the original one.
func (f *Film) DisplayName() string {
	return firstNonEmpty(f.NameRu, f.NameEn, f.NameOriginal)
}

// Rating returns the IMDb rating when present, otherwise the Kinopoisk one, otherwise 0.
func (f *Film) Rating() float64 {
	if f.RatingImdb != nil && *f.RatingImdb > 0 {
		return *f.RatingImdb
	}
	if f.RatingKinopoisk != nil {
		return *f.RatingKinopoisk
	}
	return 0
}

func (f *Film) PrimaryGenre() string {
	if len(f.Genres) == 0 {
		return ""
	}
	return f.Genres[0].Genre
}

// Poster returns the preview poster, falling back to the full size one.
func (f *Film) Poster() string {
	return firstNonEmpty(f.PosterURLPreview, f.PosterURL)
}

type StaffMember struct {
	StaffID        int    `json:"staffId"`
	NameRu         string `json:"nameRu"`
	NameEn         string `json:"nameEn"`
	Description    string `json:"description"`
	PosterURL      string `json:"posterUrl"`
	ProfessionText string `json:"professionText"`
	ProfessionKey  string `json:"professionKey"`
}

func (s StaffMember) DisplayName() string {
	return firstNonEmpty(s.NameRu, s.NameEn)
}

type SimilarResult struct {
	Total int           `json:"total"`
	Items []SimilarFilm `json:"items"`
}

type SimilarFilm struct {
	FilmID           int    `json:"filmId"`
	NameRu           string `json:"nameRu"`
	NameEn           string `json:"nameEn"`
	NameOriginal     string `json:"nameOriginal"`
	PosterURL        string `json:"posterUrl"`
	PosterURLPreview string `json:"posterUrlPreview"`
	RelationType     string `json:"relationType"`
}

func (s SimilarFilm) DisplayName() string {
	return firstNonEmpty(s.NameRu, s.NameEn, s.NameOriginal)
}

// FilterStaff returns up to limit members whose profession key matches.
func FilterStaff(staff []StaffMember, professionKey string, limit int) []StaffMember {
	out := make([]StaffMember, 0, limit)
	for _, member := range staff {
		if len(out) >= limit {
			break
		}
		if member.ProfessionKey == professionKey {
			out = append(out, member)
		}
	}
	return out
}

// WithPosters keeps up to limit similar films that have a preview poster.
func WithPosters(items []SimilarFilm, limit int) []SimilarFilm {
	out := make([]SimilarFilm, 0, limit)
	for _, item := range items {
		if len(out) >= limit {
			break
		}
		if item.PosterURLPreview != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseYear reads the string year of a search hit, returning 0 when it is not a number.
func ParseYear(s string) int {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return year
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

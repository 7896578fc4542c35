package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"cineplex/internal/clients/fetch"
)

// Fetcher is the part of the fetch client the API wrapper needs.
type Fetcher interface {
	Fetch(ctx context.Context, path string, opts fetch.RequestOptions, useCache bool) (json.RawMessage, error)
}

// KinopoiskClient wraps the unofficial Kinopoisk API. Every read is memoized.
type KinopoiskClient struct {
	fetcher Fetcher
}

func NewKinopoiskClient(fetcher Fetcher) *KinopoiskClient {
	return &KinopoiskClient{fetcher: fetcher}
}

func (k *KinopoiskClient) SearchByKeyword(ctx context.Context, keyword string) (*SearchResult, error) {
	path := "/v2.1/films/search-by-keyword?keyword=" + escapeComponent(keyword)

	var result SearchResult
	if err := k.get(ctx, path, &result); err != nil {
		return nil, fmt.Errorf("failed to search for '%s': %w", keyword, err)
	}
	for _, film := range result.Films {
		if film.FilmID <= 0 {
			return nil, fmt.Errorf("%w: search hit without filmId", ErrInvalidPayload)
		}
	}
	return &result, nil
}

// componentUnescaper undoes the spots where QueryEscape differs from the
// component encoding browsers use. A literal '+' is already %2B by then.
var componentUnescaper = strings.NewReplacer("+", "%20", "%21", "!", "%27", "'", "%28", "(", "%29", ")", "%2A", "*")

// escapeComponent encodes s for a query value with spaces as %20.
func escapeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

func (k *KinopoiskClient) Film(ctx context.Context, id int) (*Film, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: film id %d", ErrInvalidPayload, id)
	}

	var film Film
	if err := k.get(ctx, "/v2.2/films/"+strconv.Itoa(id), &film); err != nil {
		return nil, fmt.Errorf("failed to load film %d: %w", id, err)
	}
	if film.KinopoiskID <= 0 {
		return nil, fmt.Errorf("%w: film %d has no kinopoiskId", ErrInvalidPayload, id)
	}
	return &film, nil
}

func (k *KinopoiskClient) Staff(ctx context.Context, filmID int) ([]StaffMember, error) {
	var staff []StaffMember
	if err := k.get(ctx, "/v1/staff?filmId="+strconv.Itoa(filmID), &staff); err != nil {
		return nil, fmt.Errorf("failed to load staff for film %d: %w", filmID, err)
	}
	return staff, nil
}

func (k *KinopoiskClient) Similars(ctx context.Context, id int) (*SimilarResult, error) {
	var result SimilarResult
	if err := k.get(ctx, "/v2.2/films/"+strconv.Itoa(id)+"/similars", &result); err != nil {
		return nil, fmt.Errorf("failed to load similar films for %d: %w", id, err)
	}
	return &result, nil
}

// get fetches path with memoization and decodes the payload into dest.
func (k *KinopoiskClient) get(ctx context.Context, path string, dest interface{}) error {
	payload, err := k.fetcher.Fetch(ctx, path, fetch.RequestOptions{}, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// A fake metadata API plus key issuer for running cineplex locally.
// Requests randomly fail with 403 or 500 so the retry path gets exercised.

type fakeFilm struct {
	ID     int
	NameRu string
	NameEn string
	Year   int
	Rating float64
	Genre  string
}

var films = []fakeFilm{
	{301, "Матрица", "The Matrix", 1999, 8.7, "фантастика"},
	{41519, "Брат 2", "Brother 2", 2000, 8.2, "боевик"},
	{43970, "Сталкер", "Stalker", 1979, 8.1, "драма"},
	{326, "Побег из Шоушенка", "The Shawshank Redemption", 1994, 9.1, "драма"},
	{448, "Форрест Гамп", "Forrest Gump", 1994, 8.9, "комедия"},
	{535341, "1+1", "Intouchables", 2011, 8.8, "комедия"},
}

var (
	validKeys   = map[string]bool{}
	failureRate float64
)

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	keys := flag.String("keys", "dev-key-1,dev-key-2,dev-key-3", "comma separated keys to issue and accept")
	flag.Float64Var(&failureRate, "fail", 0.2, "fraction of requests answered with 403 or 500")
	flag.Parse()

	issued := strings.Split(*keys, ",")
	for _, k := range issued {
		validKeys[k] = true
	}

	router := mux.NewRouter()
	router.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status":    "success",
			"keys":      issued,
			"timestamp": time.Now().Unix(),
			"keysCount": len(issued),
		})
	})

	api := router.PathPrefix("/api").Subrouter()
	api.Use(chaos)
	api.HandleFunc("/v2.1/films/search-by-keyword", searchHandler)
	api.HandleFunc("/v2.2/films/{id:[0-9]+}", filmHandler)
	api.HandleFunc("/v2.2/films/{id:[0-9]+}/similars", similarsHandler)
	api.HandleFunc("/v1/staff", staffHandler)

	fmt.Println("Fake Kinopoisk API starting on", *addr)
	fmt.Println("Point api.base_url at http://localhost" + *addr + "/api and credentials.endpoint at http://localhost" + *addr + "/keys")
	log.Fatal(http.ListenAndServe(*addr, router))
}

// chaos rejects unknown keys and randomly fails a share of requests.
func chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-KEY")
		if !validKeys[key] {
			log.Println("rejecting key", key)
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if rand.Float64() < failureRate {
			if rand.Intn(2) == 0 {
				log.Println("simulating quota exhaustion for", r.URL)
				w.WriteHeader(http.StatusPaymentRequired)
			} else {
				log.Println("simulating server error for", r.URL)
				w.WriteHeader(http.StatusInternalServerError)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}

func searchHandler(w http.ResponseWriter, r *http.Request) {
	keyword := strings.ToLower(r.URL.Query().Get("keyword"))
	hits := []map[string]interface{}{}
	for _, f := range films {
		if strings.Contains(strings.ToLower(f.NameRu), keyword) || strings.Contains(strings.ToLower(f.NameEn), keyword) {
			hits = append(hits, map[string]interface{}{
				"filmId":           f.ID,
				"nameRu":           f.NameRu,
				"nameEn":           f.NameEn,
				"year":             strconv.Itoa(f.Year),
				"rating":           strconv.FormatFloat(f.Rating, 'f', 1, 64),
				"posterUrlPreview": poster(f.ID, true),
			})
		}
	}
	writeJSON(w, map[string]interface{}{
		"keyword":                keyword,
		"pagesCount":             1,
		"searchFilmsCountResult": len(hits),
		"films":                  hits,
	})
}

func filmHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := lookup(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]interface{}{
		"kinopoiskId":      f.ID,
		"nameRu":           f.NameRu,
		"nameEn":           f.NameEn,
		"year":             f.Year,
		"ratingImdb":       f.Rating,
		"ratingKinopoisk":  f.Rating - 0.1,
		"posterUrl":        poster(f.ID, false),
		"posterUrlPreview": poster(f.ID, true),
		"description":      "Описание фильма " + f.NameRu,
		"genres":           []map[string]string{{"genre": f.Genre}},
	})
}

func similarsHandler(w http.ResponseWriter, r *http.Request) {
	f, ok := lookup(mux.Vars(r)["id"])
	if !ok {
		http.NotFound(w, r)
		return
	}
	items := []map[string]interface{}{}
	for _, other := range films {
		if other.ID == f.ID {
			continue
		}
		items = append(items, map[string]interface{}{
			"filmId":           other.ID,
			"nameRu":           other.NameRu,
			"nameEn":           other.NameEn,
			"posterUrlPreview": poster(other.ID, true),
			"relationType":     "SIMILAR",
		})
	}
	writeJSON(w, map[string]interface{}{"total": len(items), "items": items})
}

func staffHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := lookup(r.URL.Query().Get("filmId")); !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, []map[string]string{
		{"nameRu": "Режиссёр Первый", "professionKey": "DIRECTOR"},
		{"nameRu": "Режиссёр Второй", "professionKey": "DIRECTOR"},
		{"nameRu": "Актёр Один", "professionKey": "ACTOR"},
		{"nameEn": "Actor Two", "professionKey": "ACTOR"},
		{"nameRu": "Актриса Три", "professionKey": "ACTOR"},
		{"nameRu": "Продюсер", "professionKey": "PRODUCER"},
	})
}

func lookup(raw string) (fakeFilm, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return fakeFilm{}, false
	}
	for _, f := range films {
		if f.ID == id {
			return f, true
		}
	}
	return fakeFilm{}, false
}

func poster(id int, preview bool) string {
	if preview {
		return fmt.Sprintf("https://kinopoiskapiunofficial.tech/images/posters/kp_small/%d.jpg", id)
	}
	return fmt.Sprintf("https://kinopoiskapiunofficial.tech/images/posters/kp/%d.jpg", id)
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

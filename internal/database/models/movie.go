package models

import (
	"database/sql"
	"time"
)

const DefaultHistoryLimit = 15

// MovieRef is the short form of a film kept in history and favorites.
type MovieRef struct {
	ID      int       `json:"id" db:"film_id"`
	Name    string    `json:"name" db:"name"`
	Poster  string    `json:"poster" db:"poster"`
	Year    int       `json:"year" db:"year"`
	AddedAt time.Time `json:"added_at" db:"added_at"`
}

type HistoryRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db, now: time.Now}
}

// Add moves ref to the front of the history and drops everything past limit.
// A film appears at most once.
func (r *HistoryRepository) Add(ref MovieRef, limit int) error {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO history (film_id, name, poster, year, viewed_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(film_id) DO UPDATE SET
            name = excluded.name,
            poster = excluded.poster,
            year = excluded.year,
            viewed_at = excluded.viewed_at
    `, ref.ID, ref.Name, ref.Poster, ref.Year, r.now().UTC())
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
        DELETE FROM history WHERE film_id NOT IN (
            SELECT film_id FROM history ORDER BY viewed_at DESC, rowid DESC LIMIT ?
        )
    `, limit)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// List returns history entries, most recent first.
func (r *HistoryRepository) List() ([]MovieRef, error) {
	return queryRefs(r.db, `
        SELECT film_id, name, poster, year, viewed_at
        FROM history ORDER BY viewed_at DESC, rowid DESC
    `)
}

func (r *HistoryRepository) Clear() error {
	_, err := r.db.Exec("DELETE FROM history")
	return err
}

type FavoriteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewFavoriteRepository(db *sql.DB) *FavoriteRepository {
	return &FavoriteRepository{db: db, now: time.Now}
}

// Toggle adds ref when it is not a favorite yet and removes it otherwise.
// It reports whether the film is a favorite afterwards.
func (r *FavoriteRepository) Toggle(ref MovieRef) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	result, err := tx.Exec("DELETE FROM favorites WHERE film_id = ?", ref.ID)
	if err != nil {
		return false, err
	}
	removed, _ := result.RowsAffected()

	if removed == 0 {
		_, err = tx.Exec(`
            INSERT INTO favorites (film_id, name, poster, year, added_at)
            VALUES (?, ?, ?, ?, ?)
        `, ref.ID, ref.Name, ref.Poster, ref.Year, r.now().UTC())
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return removed == 0, nil
}

func (r *FavoriteRepository) IsFavorite(id int) (bool, error) {
	var exists bool
	err := r.db.QueryRow("SELECT EXISTS(SELECT 1 FROM favorites WHERE film_id = ?)", id).Scan(&exists)
	return exists, err
}

func (r *FavoriteRepository) List() ([]MovieRef, error) {
	return queryRefs(r.db, `
        SELECT film_id, name, poster, year, added_at
        FROM favorites ORDER BY added_at DESC, rowid DESC
    `)
}

func queryRefs(db *sql.DB, query string, args ...interface{}) ([]MovieRef, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []MovieRef{}
	for rows.Next() {
		var ref MovieRef
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Poster, &ref.Year, &ref.AddedAt); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// package repositories persists the working set: the tracks a user has
// staged for their next playlist save, surviving process restarts.
package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"mixtape/internal/models"
	"mixtape/internal/shared"
)

const workingSetSchema = `
CREATE TABLE IF NOT EXISTS working_set (
	id         TEXT PRIMARY KEY,
	uri        TEXT NOT NULL UNIQUE,
	track_id   TEXT NOT NULL,
	name       TEXT NOT NULL,
	artist     TEXT NOT NULL DEFAULT '',
	album      TEXT NOT NULL DEFAULT '',
	image      TEXT NOT NULL DEFAULT '',
	images     TEXT NOT NULL DEFAULT '[]',
	position   INTEGER NOT NULL,
	added_at   TIMESTAMP NOT NULL
);
`

// WorkingSetRepository stores staged tracks in SQLite, keyed by track
// URI. Positions form a dense ordering starting at 0; Add appends at the
// end and Remove compacts the remainder.
type WorkingSetRepository struct {
	db *sql.DB
}

// NewWorkingSetRepository creates the repository and ensures its schema
// exists.
func NewWorkingSetRepository(db *sql.DB) (*WorkingSetRepository, error) {
	if _, err := db.Exec(workingSetSchema); err != nil {
		return nil, fmt.Errorf("failed to create working_set table: %w", err)
	}
	return &WorkingSetRepository{db: db}, nil
}

// Add appends a track to the working set. Adding a URI that is already
// present is a no-op, mirroring equality-by-ID on tracks.
func (r *WorkingSetRepository) Add(track models.Track) error {
	if track.URI == "" {
		return fmt.Errorf("%w: track has no uri", shared.ErrInvalidInput)
	}

	images, err := json.Marshal(track.AlbumImages)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}

	query := `
		INSERT INTO working_set (id, uri, track_id, name, artist, album, image, images, position, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(position) + 1, 0) FROM working_set), ?)
		ON CONFLICT(uri) DO NOTHING
	`
	if _, err := r.db.Exec(query, shared.GenerateID(), track.URI, track.ID, track.Name, track.Artist, track.Album, track.Image, string(images), time.Now()); err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// Remove deletes a track by URI and closes the position gap it leaves.
func (r *WorkingSetRepository) Remove(uri string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var position int
	err = tx.QueryRow(`SELECT position FROM working_set WHERE uri = ?`, uri).Scan(&position)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", shared.ErrTrackNotFound, uri)
	}
	if err != nil {
		return fmt.Errorf("failed to look up track: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM working_set WHERE uri = ?`, uri); err != nil {
		return fmt.Errorf("failed to delete track: %w", err)
	}
	if _, err := tx.Exec(`UPDATE working_set SET position = position - 1 WHERE position > ?`, position); err != nil {
		return fmt.Errorf("failed to compact positions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit removal: %w", err)
	}
	return nil
}

// List returns the staged tracks in position order.
func (r *WorkingSetRepository) List() ([]models.Track, error) {
	rows, err := r.db.Query(`
		SELECT track_id, name, artist, album, image, images, uri
		FROM working_set
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query working set: %w", err)
	}
	defer rows.Close()

	var tracks []models.Track
	for rows.Next() {
		var track models.Track
		var images string
		if err := rows.Scan(&track.ID, &track.Name, &track.Artist, &track.Album, &track.Image, &images, &track.URI); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		if err := json.Unmarshal([]byte(images), &track.AlbumImages); err != nil {
			return nil, fmt.Errorf("failed to decode images: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate working set: %w", err)
	}
	return tracks, nil
}

// URIs returns the staged track URIs in position order, the shape a
// playlist save consumes.
func (r *WorkingSetRepository) URIs() ([]string, error) {
	rows, err := r.db.Query(`SELECT uri FROM working_set ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query working set: %w", err)
	}
	defer rows.Close()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return nil, fmt.Errorf("failed to scan uri: %w", err)
		}
		uris = append(uris, uri)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate working set: %w", err)
	}
	return uris, nil
}

// Count returns the number of staged tracks.
func (r *WorkingSetRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM working_set`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count working set: %w", err)
	}
	return count, nil
}

// Clear removes every staged track. Idempotent.
func (r *WorkingSetRepository) Clear() error {
	if _, err := r.db.Exec(`DELETE FROM working_set`); err != nil {
		return fmt.Errorf("failed to clear working set: %w", err)
	}
	return nil
}

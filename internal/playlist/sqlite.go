package playlist

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the clip history in a SQLite database so the playlist
// survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
// Use ":memory:" for a throwaway store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open clip db: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the clips table if it does not exist.
func (s *SQLiteStore) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS clips (
			seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			id         TEXT NOT NULL UNIQUE,
			path       TEXT NOT NULL,
			name       TEXT NOT NULL,
			saved_at   INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("create clips: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements Store.Append.
func (s *SQLiteStore) Append(c Clip) error {
	_, err := s.db.Exec(
		`INSERT INTO clips (id, path, name, saved_at, size_bytes) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Path, c.Name, c.SavedAt.UnixNano(), c.SizeBytes,
	)
	if err != nil {
		return fmt.Errorf("insert clip: %w", err)
	}
	return nil
}

// Recent implements Store.Recent.
func (s *SQLiteStore) Recent(limit int) ([]Clip, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, path, name, saved_at, size_bytes FROM (
			SELECT seq, id, path, name, saved_at, size_bytes
			FROM clips ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer rows.Close()

	var clips []Clip
	for rows.Next() {
		var c Clip
		var savedAt int64
		if err := rows.Scan(&c.ID, &c.Path, &c.Name, &savedAt, &c.SizeBytes); err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		c.SavedAt = time.Unix(0, savedAt).UTC()
		clips = append(clips, c)
	}
	return clips, rows.Err()
}

// Count implements Store.Count.
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM clips`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count clips: %w", err)
	}
	return n, nil
}

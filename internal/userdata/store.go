// Package userdata persists small per-character preferences, currently the
// last model directory used for each character name.
package userdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kanade-ai/kanade-tts/internal/config"
)

// Store wraps a SQLite-backed preference store.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open initializes the store at cfg.Path. A missing or unreadable database
// is not fatal to the caller; pass the returned error up only when
// persistence is required.
func Open(ctx context.Context, cfg config.UserDataConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS character_models (
    character TEXT PRIMARY KEY,
    model_dir TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetModelDir records the model directory last used for a character.
func (s *Store) SetModelDir(ctx context.Context, character, modelDir string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO character_models (character, model_dir, updated_at) VALUES (?, ?, ?)
ON CONFLICT(character) DO UPDATE SET model_dir = excluded.model_dir, updated_at = excluded.updated_at`,
		character, modelDir, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save model dir for %s: %w", character, err)
	}
	return nil
}

// ModelDir returns the last model directory used for a character, or "" when
// none was recorded.
func (s *Store) ModelDir(ctx context.Context, character string) (string, error) {
	var dir string
	err := s.db.QueryRowContext(ctx,
		`SELECT model_dir FROM character_models WHERE character = ?`, character).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load model dir for %s: %w", character, err)
	}
	return dir, nil
}

// Forget drops the saved model directory for a character.
func (s *Store) Forget(ctx context.Context, character string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM character_models WHERE character = ?`, character)
	if err != nil {
		return fmt.Errorf("forget %s: %w", character, err)
	}
	return nil
}

// Characters lists characters with a saved model directory.
func (s *Store) Characters(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT character FROM character_models ORDER BY character`)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Package store persists crawl results in an embedded SQLite database and a
// kind-partitioned media directory tree. Upserts are idempotent on the
// platform business keys and never propagate failures as crawl-fatal.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS videos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	aweme_id TEXT UNIQUE NOT NULL,
	title TEXT,
	desc TEXT,
	author_name TEXT,
	author_id TEXT,
	video_url TEXT,
	cover_url TEXT,
	like_count INTEGER DEFAULT 0,
	comment_count INTEGER DEFAULT 0,
	share_count INTEGER DEFAULT 0,
	create_time INTEGER DEFAULT 0,
	crawl_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	keyword TEXT,
	video_path TEXT
);

CREATE TABLE IF NOT EXISTS creators (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sec_user_id TEXT UNIQUE NOT NULL,
	nickname TEXT,
	signature TEXT,
	avatar_url TEXT,
	follower_count INTEGER DEFAULT 0,
	following_count INTEGER DEFAULT 0,
	aweme_count INTEGER DEFAULT 0,
	total_favorited INTEGER DEFAULT 0,
	crawl_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_aweme_id ON videos(aweme_id);
CREATE INDEX IF NOT EXISTS idx_author_id ON videos(author_id);
CREATE INDEX IF NOT EXISTS idx_sec_user_id ON creators(sec_user_id);
`

// MediaKind partitions the media directory tree.
type MediaKind string

// Media kinds.
const (
	MediaVideo MediaKind = "video"
	MediaImage MediaKind = "image"
)

// Config sets the database path and the media directories.
type Config struct {
	DBPath   string
	VideoDir string
	ImageDir string
}

// Store wraps the embedded database. A single crawl session owns it; SQLite
// allows one writer, so the pool is pinned to one connection.
type Store struct {
	db     *sql.DB
	cfg    Config
	logger *zap.Logger
}

// New opens (or creates) the database and bootstraps the schema.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	logger.Info("database ready", zap.String("path", cfg.DBPath))
	return &Store{db: db, cfg: cfg, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// SaveMediaFile writes a downloaded asset under the kind-specific directory
// and records the path on the owning video row. stem is the file name
// without extension (the owning id, plus an index suffix for image posts).
// Any failure is logged and reported as an empty path.
func (s *Store) SaveMediaFile(ctx context.Context, owningID, stem string, data []byte, kind MediaKind) string {
	dir := s.cfg.VideoDir
	ext := "mp4"
	if kind == MediaImage {
		dir = s.cfg.ImageDir
		ext = "jpg"
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		s.logger.Error("create media directory failed", zap.String("dir", dir), zap.Error(err))
		return ""
	}

	path := filepath.Join(dir, stem+"."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		s.logger.Error("write media file failed", zap.String("path", path), zap.Error(err))
		return ""
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE videos SET video_path=? WHERE aweme_id=?`, path, owningID,
	); err != nil {
		s.logger.Error("update media path failed", zap.String("aweme_id", owningID), zap.Error(err))
		return ""
	}

	s.logger.Info("media saved",
		zap.String("aweme_id", owningID),
		zap.String("kind", string(kind)),
		zap.String("path", path),
	)
	return path
}

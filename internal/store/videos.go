package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openharvest/douyin-crawler/internal/douyin"
)

// UpsertVideo creates or replaces the row keyed by the record's video id.
// An update rewrites every field except video_path, which only the media
// download step sets. Failures are logged and reported as false, never
// raised; the crawl continues with the next item.
func (s *Store) UpsertVideo(ctx context.Context, rec douyin.VideoRecord) bool {
	if rec.AwemeID == "" {
		return false
	}

	var rowID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM videos WHERE aweme_id = ?`, rec.AwemeID,
	).Scan(&rowID)

	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, `
			UPDATE videos SET
				title=?, desc=?, author_name=?, author_id=?,
				video_url=?, cover_url=?, like_count=?, comment_count=?,
				share_count=?, create_time=?, keyword=?,
				crawl_time=CURRENT_TIMESTAMP
			WHERE aweme_id=?`,
			rec.Title, rec.Desc, rec.AuthorName, rec.AuthorID,
			rec.VideoURL, rec.CoverURL, rec.LikeCount, rec.CommentCount,
			rec.ShareCount, rec.CreateTime, rec.Keyword,
			rec.AwemeID,
		)
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO videos (
				aweme_id, title, desc, author_name, author_id,
				video_url, cover_url, like_count, comment_count,
				share_count, create_time, keyword
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.AwemeID, rec.Title, rec.Desc, rec.AuthorName, rec.AuthorID,
			rec.VideoURL, rec.CoverURL, rec.LikeCount, rec.CommentCount,
			rec.ShareCount, rec.CreateTime, rec.Keyword,
		)
	}

	if err != nil {
		s.logger.Error("upsert video failed", zap.String("aweme_id", rec.AwemeID), zap.Error(err))
		return false
	}
	return true
}

// UpsertCreator creates or replaces the row keyed by sec_user_id. Same
// failure contract as UpsertVideo.
func (s *Store) UpsertCreator(ctx context.Context, rec douyin.CreatorRecord) bool {
	if rec.SecUserID == "" {
		return false
	}

	var rowID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM creators WHERE sec_user_id = ?`, rec.SecUserID,
	).Scan(&rowID)

	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, `
			UPDATE creators SET
				nickname=?, signature=?, avatar_url=?,
				follower_count=?, following_count=?,
				aweme_count=?, total_favorited=?,
				crawl_time=CURRENT_TIMESTAMP
			WHERE sec_user_id=?`,
			rec.Nickname, rec.Signature, rec.AvatarURL,
			rec.FollowerCount, rec.FollowingCount,
			rec.AwemeCount, rec.TotalFavorited,
			rec.SecUserID,
		)
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO creators (
				sec_user_id, nickname, signature, avatar_url,
				follower_count, following_count, aweme_count, total_favorited
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.SecUserID, rec.Nickname, rec.Signature, rec.AvatarURL,
			rec.FollowerCount, rec.FollowingCount,
			rec.AwemeCount, rec.TotalFavorited,
		)
	}

	if err != nil {
		s.logger.Error("upsert creator failed", zap.String("sec_user_id", rec.SecUserID), zap.Error(err))
		return false
	}
	return true
}

// ClearVideos wipes the video table.
func (s *Store) ClearVideos(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM videos`); err != nil {
		return fmt.Errorf("clear videos: %w", err)
	}
	return nil
}

// CountVideos returns the number of stored videos.
func (s *Store) CountVideos(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

// ListVideos pages through stored videos, newest-crawled first.
func (s *Store) ListVideos(ctx context.Context, limit, offset int) ([]douyin.VideoRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, aweme_id, COALESCE(title,''), COALESCE(desc,''),
			COALESCE(author_name,''), COALESCE(author_id,''),
			COALESCE(video_url,''), COALESCE(cover_url,''),
			like_count, comment_count, share_count, create_time,
			COALESCE(crawl_time,''), COALESCE(keyword,''), COALESCE(video_path,'')
		FROM videos
		ORDER BY crawl_time DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read side

	var records []douyin.VideoRecord
	for rows.Next() {
		var (
			rec       douyin.VideoRecord
			crawlTime string
		)
		if err := rows.Scan(
			&rec.ID, &rec.AwemeID, &rec.Title, &rec.Desc,
			&rec.AuthorName, &rec.AuthorID,
			&rec.VideoURL, &rec.CoverURL,
			&rec.LikeCount, &rec.CommentCount, &rec.ShareCount, &rec.CreateTime,
			&crawlTime, &rec.Keyword, &rec.VideoPath,
		); err != nil {
			return nil, fmt.Errorf("scan video row: %w", err)
		}
		rec.CrawlTime = parseSQLiteTime(crawlTime)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate video rows: %w", err)
	}
	return records, nil
}

// ListCreators pages through stored creators, newest-crawled first.
func (s *Store) ListCreators(ctx context.Context, limit, offset int) ([]douyin.CreatorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sec_user_id, COALESCE(nickname,''), COALESCE(signature,''),
			COALESCE(avatar_url,''), follower_count, following_count,
			aweme_count, total_favorited, COALESCE(crawl_time,'')
		FROM creators
		ORDER BY crawl_time DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list creators: %w", err)
	}
	defer rows.Close() //nolint:errcheck // read side

	var records []douyin.CreatorRecord
	for rows.Next() {
		var (
			rec       douyin.CreatorRecord
			crawlTime string
		)
		if err := rows.Scan(
			&rec.ID, &rec.SecUserID, &rec.Nickname, &rec.Signature,
			&rec.AvatarURL, &rec.FollowerCount, &rec.FollowingCount,
			&rec.AwemeCount, &rec.TotalFavorited, &crawlTime,
		); err != nil {
			return nil, fmt.Errorf("scan creator row: %w", err)
		}
		rec.CrawlTime = parseSQLiteTime(crawlTime)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate creator rows: %w", err)
	}
	return records, nil
}

// parseSQLiteTime decodes CURRENT_TIMESTAMP values ("2006-01-02 15:04:05").
func parseSQLiteTime(value string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

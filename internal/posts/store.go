package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mellow-backend/internal/apperr"
)

const uniqueViolation = "23505"

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type dbPost struct {
	ID          int64         `db:"id"`
	AuthorID    int64         `db:"author_id"`
	CommunityID sql.NullInt64 `db:"community_id"`
	Content     string        `db:"content"`
	MediaKey    string        `db:"media_key"`
	MediaURL    string        `db:"media_url"`
	MediaType   string        `db:"media_type"`
	LikeCount   int           `db:"like_count"`
	ReportCount int           `db:"report_count"`
	LikedByMe   bool          `db:"liked_by_me"`
	ExpiresAt   sql.NullTime  `db:"expires_at"`
	CreatedAt   time.Time     `db:"created_at"`
}

func toDomainPost(row dbPost) Post {
	p := Post{
		ID:          row.ID,
		AuthorID:    row.AuthorID,
		Content:     row.Content,
		MediaKey:    row.MediaKey,
		MediaURL:    row.MediaURL,
		MediaType:   row.MediaType,
		LikeCount:   row.LikeCount,
		ReportCount: row.ReportCount,
		LikedByMe:   row.LikedByMe,
		CreatedAt:   row.CreatedAt,
	}
	if row.CommunityID.Valid {
		id := row.CommunityID.Int64
		p.CommunityID = &id
	}
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time
		p.ExpiresAt = &t
	}
	return p
}

// $1 is always the viewer.
const selectPost = `
	SELECT
		p.id, p.author_id, p.community_id, p.content,
		p.media_key, p.media_url, p.media_type,
		p.like_count, p.report_count, p.expires_at, p.created_at,
		EXISTS (SELECT 1 FROM post_likes l WHERE l.post_id = p.id AND l.user_id = $1) AS liked_by_me
	FROM posts p
`

func (s *SQLStore) Create(ctx context.Context, p Post) (Post, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO posts (author_id, community_id, content, media_key, media_url, media_type, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, p.AuthorID, p.CommunityID, p.Content, p.MediaKey, p.MediaURL, p.MediaType, p.ExpiresAt, p.CreatedAt).Scan(&id)
	if err != nil {
		return Post{}, fmt.Errorf("inserting post: %w", err)
	}
	return s.Get(ctx, p.AuthorID, id)
}

func (s *SQLStore) Get(ctx context.Context, viewerID, id int64) (Post, error) {
	var row dbPost
	err := s.db.GetContext(ctx, &row, selectPost+` WHERE p.id = $2`, viewerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, fmt.Errorf("post %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Post{}, fmt.Errorf("selecting post: %w", err)
	}
	return toDomainPost(row), nil
}

func (s *SQLStore) List(ctx context.Context, viewerID int64, q Query) ([]Post, error) {
	query := selectPost + `
		WHERE (p.expires_at IS NULL OR p.expires_at > $2)
		  AND ($3::timestamptz IS NULL OR (p.created_at, p.id) < ($3::timestamptz, $4::bigint))
		  AND ($5::bigint IS NULL OR p.community_id = $5)
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT $6
	`
	var rows []dbPost
	err := s.db.SelectContext(ctx, &rows, query,
		viewerID, q.Now, q.Before.TimeArg(), q.Before.ID, q.CommunityID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("selecting posts: %w", err)
	}
	out := make([]Post, len(rows))
	for i, row := range rows {
		out[i] = toDomainPost(row)
	}
	return out, nil
}

func (s *SQLStore) Delete(ctx context.Context, id int64) (string, error) {
	var key string
	err := s.db.QueryRowContext(ctx, `DELETE FROM posts WHERE id = $1 RETURNING media_key`, id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("post %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("deleting post: %w", err)
	}
	return key, nil
}

func (s *SQLStore) AddLike(ctx context.Context, postID, userID int64) (bool, error) {
	return s.toggle(ctx, `
		WITH ins AS (
			INSERT INTO post_likes (post_id, user_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
			RETURNING post_id
		)
		UPDATE posts SET like_count = like_count + 1
		WHERE id IN (SELECT post_id FROM ins)
	`, postID, userID)
}

func (s *SQLStore) RemoveLike(ctx context.Context, postID, userID int64) (bool, error) {
	return s.toggle(ctx, `
		WITH del AS (
			DELETE FROM post_likes WHERE post_id = $1 AND user_id = $2
			RETURNING post_id
		)
		UPDATE posts SET like_count = GREATEST(like_count - 1, 0)
		WHERE id IN (SELECT post_id FROM del)
	`, postID, userID)
}

func (s *SQLStore) toggle(ctx context.Context, query string, postID, userID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, postID, userID)
	if err != nil {
		return false, fmt.Errorf("updating like: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) AddReport(ctx context.Context, postID, userID int64, reason string) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO post_reports (post_id, user_id, reason) VALUES ($1, $2, $3)
	`, postID, userID, reason); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, fmt.Errorf("post %d already reported: %w", postID, apperr.ErrConflict)
		}
		return 0, fmt.Errorf("inserting report: %w", err)
	}

	var count int
	err = tx.QueryRowContext(ctx, `
		UPDATE posts SET report_count = report_count + 1
		WHERE id = $1
		RETURNING report_count
	`, postID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("post %d: %w", postID, apperr.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("incrementing report count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return count, nil
}

func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) ([]string, int64, error) {
	var keys []string
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM posts
		WHERE expires_at IS NOT NULL AND expires_at <= $1
		RETURNING media_key
	`, now)
	if err != nil {
		return nil, 0, fmt.Errorf("deleting expired posts: %w", err)
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, 0, fmt.Errorf("scanning expired post: %w", err)
		}
		n++
		if key != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("expired posts rows: %w", err)
	}
	return keys, n, nil
}

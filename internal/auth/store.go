package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mellow-backend/internal/apperr"
)

type User struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}

type Store interface {
	CreateUser(ctx context.Context, email, passwordHash string) (int64, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
	// DeleteAccount removes the user and everything they own, returning the
	// media object keys that should be removed from storage afterwards.
	DeleteAccount(ctx context.Context, id int64) ([]string, error)
}

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

const uniqueViolation = "23505"

func (s *SQLStore) CreateUser(ctx context.Context, email, passwordHash string) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		RETURNING id
	`, email, passwordHash).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, fmt.Errorf("email already registered: %w", apperr.ErrConflict)
		}
		return 0, fmt.Errorf("inserting user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO profiles (user_id) VALUES ($1)`, id); err != nil {
		return 0, fmt.Errorf("inserting profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *SQLStore) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT id, email, password_hash FROM users WHERE email=$1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", email, apperr.ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("selecting user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) UserByID(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `SELECT id, email, password_hash FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("selecting user: %w", err)
	}
	return u, nil
}

func (s *SQLStore) DeleteAccount(ctx context.Context, id int64) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var keys []string
	// 1) media of posts that disappear with the account: own posts and posts
	// inside communities the user owns
	if err := tx.SelectContext(ctx, &keys, `
		SELECT media_key FROM posts
		WHERE media_key <> ''
		  AND (author_id = $1 OR community_id IN (SELECT id FROM communities WHERE owner_id = $1))
		UNION
		SELECT avatar_key FROM profiles WHERE user_id = $1 AND avatar_key <> ''
	`, id); err != nil {
		return nil, fmt.Errorf("collecting media keys: %w", err)
	}

	// 2) counters on other people's posts must stay consistent
	if _, err := tx.ExecContext(ctx, `
		UPDATE posts SET like_count = GREATEST(like_count - 1, 0)
		WHERE id IN (SELECT post_id FROM post_likes WHERE user_id = $1)
	`, id); err != nil {
		return nil, fmt.Errorf("adjusting like counts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE posts SET report_count = GREATEST(report_count - 1, 0)
		WHERE id IN (SELECT post_id FROM post_reports WHERE user_id = $1)
	`, id); err != nil {
		return nil, fmt.Errorf("adjusting report counts: %w", err)
	}

	// 3) analytics_events has no foreign key
	if _, err := tx.ExecContext(ctx, `DELETE FROM analytics_events WHERE user_id = $1`, id); err != nil {
		return nil, fmt.Errorf("deleting analytics events: %w", err)
	}

	// 4) the rest cascades from users
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("deleting user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %d: %w", id, apperr.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return keys, nil
}

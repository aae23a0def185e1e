package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mellow-backend/internal/apperr"
)

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type dbProfile struct {
	Profile
	Interests pq.StringArray `db:"interests"`
}

func (s *SQLStore) Get(ctx context.Context, userID int64) (Profile, error) {
	var row dbProfile
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, display_name, bio, avatar_key, avatar_url, interests, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("profile %d: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return Profile{}, fmt.Errorf("selecting profile: %w", err)
	}

	p := row.Profile
	p.Interests = []string(row.Interests)
	if p.Interests == nil {
		p.Interests = []string{}
	}
	return p, nil
}

func (s *SQLStore) Save(ctx context.Context, p Profile) (Profile, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET display_name = $2, bio = $3, interests = $4, updated_at = now()
		WHERE user_id = $1
	`, p.UserID, p.DisplayName, p.Bio, pq.Array(p.Interests))
	if err != nil {
		return Profile{}, fmt.Errorf("updating profile: %w", err)
	}
	return s.Get(ctx, p.UserID)
}

func (s *SQLStore) SetAvatar(ctx context.Context, userID int64, key, url string) (string, error) {
	var prev string
	err := s.db.QueryRowContext(ctx, `
		UPDATE profiles p
		SET avatar_key = $2, avatar_url = $3, updated_at = now()
		FROM (SELECT avatar_key FROM profiles WHERE user_id = $1 FOR UPDATE) old
		WHERE p.user_id = $1
		RETURNING old.avatar_key
	`, userID, key, url).Scan(&prev)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("profile %d: %w", userID, apperr.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("updating avatar: %w", err)
	}
	return prev, nil
}

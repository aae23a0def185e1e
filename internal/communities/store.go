package communities

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

const selectCommunity = `
	SELECT
		c.id, c.name, c.description, c.owner_id, c.created_at,
		(SELECT COUNT(*) FROM community_members m WHERE m.community_id = c.id) AS member_count,
		EXISTS (SELECT 1 FROM community_members m WHERE m.community_id = c.id AND m.user_id = $1) AS is_member
	FROM communities c
`

func (s *SQLStore) Create(ctx context.Context, c Community) (Community, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Community{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO communities (name, description, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id
	`, c.Name, c.Description, c.OwnerID).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return Community{}, fmt.Errorf("community %q already exists: %w", c.Name, apperr.ErrConflict)
		}
		return Community{}, fmt.Errorf("inserting community: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO community_members (community_id, user_id) VALUES ($1, $2)
	`, id, c.OwnerID); err != nil {
		return Community{}, fmt.Errorf("inserting owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Community{}, fmt.Errorf("commit: %w", err)
	}
	return s.Get(ctx, c.OwnerID, id)
}

func (s *SQLStore) Get(ctx context.Context, viewerID, id int64) (Community, error) {
	var c Community
	err := s.db.GetContext(ctx, &c, selectCommunity+` WHERE c.id = $2`, viewerID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Community{}, fmt.Errorf("community %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Community{}, fmt.Errorf("selecting community: %w", err)
	}
	return c, nil
}

func (s *SQLStore) List(ctx context.Context, viewerID int64) ([]Community, error) {
	list := []Community{}
	err := s.db.SelectContext(ctx, &list, selectCommunity+` ORDER BY member_count DESC, c.name`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("selecting communities: %w", err)
	}
	return list, nil
}

func (s *SQLStore) AddMember(ctx context.Context, communityID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO community_members (community_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, communityID, userID)
	if err != nil {
		return fmt.Errorf("adding community member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("already a member of community %d: %w", communityID, apperr.ErrConflict)
	}
	return nil
}

func (s *SQLStore) RemoveMember(ctx context.Context, communityID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM community_members WHERE community_id = $1 AND user_id = $2
	`, communityID, userID)
	if err != nil {
		return fmt.Errorf("removing community member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("not a member of community %d: %w", communityID, apperr.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) IsMember(ctx context.Context, communityID, userID int64) (bool, error) {
	var ok bool
	err := s.db.GetContext(ctx, &ok, `
		SELECT EXISTS (SELECT 1 FROM community_members WHERE community_id = $1 AND user_id = $2)
	`, communityID, userID)
	if err != nil {
		return false, fmt.Errorf("checking community membership: %w", err)
	}
	return ok, nil
}

func (s *SQLStore) Members(ctx context.Context, communityID int64) ([]Member, error) {
	members := []Member{}
	err := s.db.SelectContext(ctx, &members, `
		SELECT user_id, joined_at FROM community_members
		WHERE community_id = $1
		ORDER BY joined_at, user_id
	`, communityID)
	if err != nil {
		return nil, fmt.Errorf("selecting community members: %w", err)
	}
	return members, nil
}

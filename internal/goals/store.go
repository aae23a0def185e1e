package goals

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

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// dbGoal is a goals row plus its aggregated membership.
type dbGoal struct {
	ID          int64         `db:"id"`
	OwnerID     int64         `db:"owner_id"`
	Title       string        `db:"title"`
	Description string        `db:"description"`
	Category    string        `db:"category"`
	IsPublic    bool          `db:"is_public"`
	IsCompleted bool          `db:"is_completed"`
	CompletedAt sql.NullTime  `db:"completed_at"`
	CreatedAt   time.Time     `db:"created_at"`
	MemberIDs   pq.Int64Array `db:"member_ids"`
	CompletedBy pq.Int64Array `db:"completed_by"`
}

func toDomainGoal(row dbGoal) Goal {
	g := Goal{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Title:       row.Title,
		Description: row.Description,
		Category:    row.Category,
		IsPublic:    row.IsPublic,
		IsCompleted: row.IsCompleted,
		CreatedAt:   row.CreatedAt,
		MemberIDs:   []int64(row.MemberIDs),
		CompletedBy: []int64(row.CompletedBy),
	}
	if row.CompletedAt.Valid {
		t := row.CompletedAt.Time
		g.CompletedAt = &t
	}
	if g.MemberIDs == nil {
		g.MemberIDs = []int64{}
	}
	if g.CompletedBy == nil {
		g.CompletedBy = []int64{}
	}
	return g
}

const selectGoal = `
	SELECT
		g.id, g.owner_id, g.title, g.description, g.category,
		g.is_public, g.is_completed, g.completed_at, g.created_at,
		ARRAY(
			SELECT m.user_id FROM goal_members m
			WHERE m.goal_id = g.id
			ORDER BY m.joined_at, m.user_id
		) AS member_ids,
		ARRAY(
			SELECT m.user_id FROM goal_members m
			WHERE m.goal_id = g.id AND m.completed_at IS NOT NULL
			ORDER BY m.completed_at, m.user_id
		) AS completed_by
	FROM goals g
`

func (s *SQLStore) selectGoals(ctx context.Context, query string, args ...any) ([]Goal, error) {
	var rows []dbGoal
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("selecting goals: %w", err)
	}
	out := make([]Goal, len(rows))
	for i, row := range rows {
		out[i] = toDomainGoal(row)
	}
	return out, nil
}

func (s *SQLStore) Create(ctx context.Context, g Goal) (Goal, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Goal{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO goals (owner_id, title, description, category, is_public)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, g.OwnerID, g.Title, g.Description, g.Category, g.IsPublic).Scan(&id)
	if err != nil {
		return Goal{}, fmt.Errorf("inserting goal: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO goal_members (goal_id, user_id) VALUES ($1, $2)
	`, id, g.OwnerID); err != nil {
		return Goal{}, fmt.Errorf("inserting owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Goal{}, fmt.Errorf("commit: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Goal, error) {
	var row dbGoal
	err := s.db.GetContext(ctx, &row, selectGoal+` WHERE g.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Goal{}, fmt.Errorf("goal %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Goal{}, fmt.Errorf("selecting goal: %w", err)
	}
	return toDomainGoal(row), nil
}

func (s *SQLStore) ListForMember(ctx context.Context, userID int64) ([]Goal, error) {
	return s.selectGoals(ctx, selectGoal+`
		WHERE EXISTS (SELECT 1 FROM goal_members m WHERE m.goal_id = g.id AND m.user_id = $1)
		ORDER BY g.created_at DESC, g.id DESC
	`, userID)
}

func (s *SQLStore) ListOpenPublic(ctx context.Context) ([]Goal, error) {
	return s.selectGoals(ctx, selectGoal+`
		WHERE g.is_public = TRUE AND g.is_completed = FALSE
		ORDER BY g.created_at DESC, g.id DESC
	`)
}

func (s *SQLStore) Update(ctx context.Context, g Goal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE goals
		SET title = $2, description = $3, category = $4, is_public = $5
		WHERE id = $1
	`, g.ID, g.Title, g.Description, g.Category, g.IsPublic)
	if err != nil {
		return fmt.Errorf("updating goal: %w", err)
	}
	return expectOne(res, g.ID)
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM goals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting goal: %w", err)
	}
	return expectOne(res, id)
}

func (s *SQLStore) AddMember(ctx context.Context, goalID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO goal_members (goal_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, goalID, userID)
	if err != nil {
		return fmt.Errorf("adding goal member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("already a member of goal %d: %w", goalID, apperr.ErrConflict)
	}
	return nil
}

func (s *SQLStore) RemoveMember(ctx context.Context, goalID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM goal_members WHERE goal_id = $1 AND user_id = $2
	`, goalID, userID)
	if err != nil {
		return fmt.Errorf("removing goal member: %w", err)
	}
	return expectOne(res, goalID)
}

func (s *SQLStore) SetMemberCompletion(ctx context.Context, goalID, userID int64, at *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE goal_members SET completed_at = $3
		WHERE goal_id = $1 AND user_id = $2
	`, goalID, userID, at)
	if err != nil {
		return fmt.Errorf("updating member completion: %w", err)
	}
	return expectOne(res, goalID)
}

func (s *SQLStore) SetGoalCompletion(ctx context.Context, goalID int64, at *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE goals SET is_completed = $2, completed_at = $3
		WHERE id = $1
	`, goalID, at != nil, at)
	if err != nil {
		return fmt.Errorf("updating goal completion: %w", err)
	}
	return expectOne(res, goalID)
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("goal %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

package goals

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"mellow-backend/internal/apperr"
)

const (
	maxTitle       = 100
	maxDescription = 1000
	maxCategory    = 30
)

type Goal struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	IsPublic    bool       `json:"is_public"`
	IsCompleted bool       `json:"is_completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	MemberIDs   []int64    `json:"member_ids"`
	CompletedBy []int64    `json:"completed_by"`
}

func (g Goal) IsMember(userID int64) bool {
	return slices.Contains(g.MemberIDs, userID)
}

func (g Goal) HasCompleted(userID int64) bool {
	return slices.Contains(g.CompletedBy, userID)
}

// VisibleTo reports whether userID may read the goal.
func (g Goal) VisibleTo(userID int64) bool {
	return g.IsPublic || g.OwnerID == userID || g.IsMember(userID)
}

// Input is the user-editable part of a goal.
type Input struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	IsPublic    bool   `json:"is_public"`
}

func (in Input) normalize() (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))

	switch {
	case in.Title == "":
		return in, fmt.Errorf("title is required: %w", apperr.ErrInvalid)
	case utf8.RuneCountInString(in.Title) > maxTitle:
		return in, fmt.Errorf("title longer than %d characters: %w", maxTitle, apperr.ErrInvalid)
	case utf8.RuneCountInString(in.Description) > maxDescription:
		return in, fmt.Errorf("description longer than %d characters: %w", maxDescription, apperr.ErrInvalid)
	case utf8.RuneCountInString(in.Category) > maxCategory:
		return in, fmt.Errorf("category longer than %d characters: %w", maxCategory, apperr.ErrInvalid)
	}
	return in, nil
}

type Store interface {
	// Create inserts the goal and makes its owner the first member.
	Create(ctx context.Context, g Goal) (Goal, error)
	Get(ctx context.Context, id int64) (Goal, error)
	ListForMember(ctx context.Context, userID int64) ([]Goal, error)
	// ListOpenPublic returns public goals that are not completed.
	ListOpenPublic(ctx context.Context) ([]Goal, error)
	Update(ctx context.Context, g Goal) error
	Delete(ctx context.Context, id int64) error
	AddMember(ctx context.Context, goalID, userID int64) error
	RemoveMember(ctx context.Context, goalID, userID int64) error
	SetMemberCompletion(ctx context.Context, goalID, userID int64, at *time.Time) error
	SetGoalCompletion(ctx context.Context, goalID int64, at *time.Time) error
}

// InterestSource supplies the profile interests used to rank
// recommendations.
type InterestSource interface {
	Interests(ctx context.Context, userID int64) ([]string, error)
}

type Service struct {
	store     Store
	interests InterestSource
	now       func() time.Time
}

func NewService(store Store, interests InterestSource) *Service {
	return &Service{store: store, interests: interests, now: time.Now}
}

func (s *Service) Create(ctx context.Context, userID int64, in Input) (Goal, error) {
	in, err := in.normalize()
	if err != nil {
		return Goal{}, err
	}
	return s.store.Create(ctx, Goal{
		OwnerID:     userID,
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		IsPublic:    in.IsPublic,
	})
}

// Get returns the goal if userID may see it. Private goals look missing to
// outsiders.
func (s *Service) Get(ctx context.Context, userID, goalID int64) (Goal, error) {
	g, err := s.store.Get(ctx, goalID)
	if err != nil {
		return Goal{}, err
	}
	if !g.VisibleTo(userID) {
		return Goal{}, fmt.Errorf("goal %d: %w", goalID, apperr.ErrNotFound)
	}
	return g, nil
}

func (s *Service) ListMine(ctx context.Context, userID int64) ([]Goal, error) {
	return s.store.ListForMember(ctx, userID)
}

func (s *Service) owned(ctx context.Context, userID, goalID int64) (Goal, error) {
	g, err := s.Get(ctx, userID, goalID)
	if err != nil {
		return Goal{}, err
	}
	if g.OwnerID != userID {
		return Goal{}, fmt.Errorf("only the owner can change goal %d: %w", goalID, apperr.ErrForbidden)
	}
	return g, nil
}

func (s *Service) Update(ctx context.Context, userID, goalID int64, in Input) (Goal, error) {
	in, err := in.normalize()
	if err != nil {
		return Goal{}, err
	}
	g, err := s.owned(ctx, userID, goalID)
	if err != nil {
		return Goal{}, err
	}

	g.Title, g.Description, g.Category, g.IsPublic = in.Title, in.Description, in.Category, in.IsPublic
	if err := s.store.Update(ctx, g); err != nil {
		return Goal{}, err
	}
	return s.store.Get(ctx, goalID)
}

func (s *Service) Delete(ctx context.Context, userID, goalID int64) error {
	if _, err := s.owned(ctx, userID, goalID); err != nil {
		return err
	}
	return s.store.Delete(ctx, goalID)
}

func (s *Service) Join(ctx context.Context, userID, goalID int64) (Goal, error) {
	g, err := s.store.Get(ctx, goalID)
	if err != nil {
		return Goal{}, err
	}
	switch {
	case !g.IsPublic && !g.IsMember(userID):
		return Goal{}, fmt.Errorf("goal %d: %w", goalID, apperr.ErrNotFound)
	case g.IsMember(userID):
		return Goal{}, fmt.Errorf("already a member of goal %d: %w", goalID, apperr.ErrConflict)
	case g.IsCompleted:
		return Goal{}, fmt.Errorf("goal %d is already completed: %w", goalID, apperr.ErrConflict)
	}

	if err := s.store.AddMember(ctx, goalID, userID); err != nil {
		return Goal{}, err
	}
	return s.store.Get(ctx, goalID)
}

func (s *Service) Leave(ctx context.Context, userID, goalID int64) error {
	g, err := s.Get(ctx, userID, goalID)
	if err != nil {
		return err
	}
	switch {
	case g.OwnerID == userID:
		return fmt.Errorf("the owner cannot leave goal %d: %w", goalID, apperr.ErrConflict)
	case !g.IsMember(userID):
		return fmt.Errorf("not a member of goal %d: %w", goalID, apperr.ErrConflict)
	}
	return s.store.RemoveMember(ctx, goalID, userID)
}

// SetCompleted marks (or clears) the caller's own completion. The owner's
// completion completes (or reopens) the goal itself.
func (s *Service) SetCompleted(ctx context.Context, userID, goalID int64, done bool) (Goal, error) {
	g, err := s.Get(ctx, userID, goalID)
	if err != nil {
		return Goal{}, err
	}
	if !g.IsMember(userID) {
		return Goal{}, fmt.Errorf("not a member of goal %d: %w", goalID, apperr.ErrForbidden)
	}

	var at *time.Time
	if done {
		now := s.now().UTC()
		at = &now
	}

	if err := s.store.SetMemberCompletion(ctx, goalID, userID, at); err != nil {
		return Goal{}, err
	}
	if g.OwnerID == userID {
		if err := s.store.SetGoalCompletion(ctx, goalID, at); err != nil {
			return Goal{}, err
		}
	}
	return s.store.Get(ctx, goalID)
}

const (
	defaultRecommendations = 10
	maxRecommendations     = 50
)

// Recommended returns public goals userID might want to join.
func (s *Service) Recommended(ctx context.Context, userID int64, limit int) ([]Goal, error) {
	if limit <= 0 {
		limit = defaultRecommendations
	}
	limit = min(limit, maxRecommendations)

	candidates, err := s.store.ListOpenPublic(ctx)
	if err != nil {
		return nil, err
	}
	interests, err := s.interests.Interests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading interests: %w", err)
	}
	return Recommend(candidates, userID, interests, limit), nil
}

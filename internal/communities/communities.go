package communities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mellow-backend/internal/apperr"
)

const (
	minName        = 3
	maxName        = 40
	maxDescription = 500
)

type Community struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	OwnerID     int64     `json:"owner_id" db:"owner_id"`
	MemberCount int       `json:"member_count" db:"member_count"`
	IsMember    bool      `json:"is_member" db:"is_member"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Member struct {
	UserID   int64     `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}

type Input struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Store reads are relative to a viewer so IsMember can be filled in.
type Store interface {
	// Create inserts the community with its owner as first member. A
	// case-insensitive name clash is apperr.ErrConflict.
	Create(ctx context.Context, c Community) (Community, error)
	Get(ctx context.Context, viewerID, id int64) (Community, error)
	List(ctx context.Context, viewerID int64) ([]Community, error)
	AddMember(ctx context.Context, communityID, userID int64) error
	RemoveMember(ctx context.Context, communityID, userID int64) error
	IsMember(ctx context.Context, communityID, userID int64) (bool, error)
	Members(ctx context.Context, communityID int64) ([]Member, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) Create(ctx context.Context, userID int64, in Input) (Community, error) {
	name := strings.Join(strings.Fields(in.Name), " ")
	desc := strings.TrimSpace(in.Description)

	if n := utf8.RuneCountInString(name); n < minName || n > maxName {
		return Community{}, fmt.Errorf("name must be %d-%d characters: %w", minName, maxName, apperr.ErrInvalid)
	}
	if utf8.RuneCountInString(desc) > maxDescription {
		return Community{}, fmt.Errorf("description longer than %d characters: %w", maxDescription, apperr.ErrInvalid)
	}

	return s.store.Create(ctx, Community{Name: name, Description: desc, OwnerID: userID})
}

func (s *Service) Get(ctx context.Context, userID, id int64) (Community, error) {
	return s.store.Get(ctx, userID, id)
}

func (s *Service) List(ctx context.Context, userID int64) ([]Community, error) {
	return s.store.List(ctx, userID)
}

func (s *Service) Join(ctx context.Context, userID, id int64) (Community, error) {
	c, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return Community{}, err
	}
	if c.IsMember {
		return Community{}, fmt.Errorf("already a member of community %d: %w", id, apperr.ErrConflict)
	}
	if err := s.store.AddMember(ctx, id, userID); err != nil {
		return Community{}, err
	}
	return s.store.Get(ctx, userID, id)
}

func (s *Service) Leave(ctx context.Context, userID, id int64) error {
	c, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	switch {
	case c.OwnerID == userID:
		return fmt.Errorf("the owner cannot leave community %d: %w", id, apperr.ErrConflict)
	case !c.IsMember:
		return fmt.Errorf("not a member of community %d: %w", id, apperr.ErrConflict)
	}
	return s.store.RemoveMember(ctx, id, userID)
}

func (s *Service) Members(ctx context.Context, userID, id int64) ([]Member, error) {
	if _, err := s.store.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.store.Members(ctx, id)
}

// Exists is used by posts before serving a community feed.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.store.Get(ctx, 0, id)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// IsMember is used by posts to gate community posting.
func (s *Service) IsMember(ctx context.Context, communityID, userID int64) (bool, error) {
	return s.store.IsMember(ctx, communityID, userID)
}

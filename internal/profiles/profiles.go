package profiles

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/media"
)

const (
	maxDisplayName = 50
	maxBio         = 280
	maxInterests   = 10
)

type Profile struct {
	UserID      int64     `json:"user_id" db:"user_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Bio         string    `json:"bio" db:"bio"`
	AvatarKey   string    `json:"-" db:"avatar_key"`
	AvatarURL   string    `json:"avatar_url" db:"avatar_url"`
	Interests   []string  `json:"interests" db:"-"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type Update struct {
	DisplayName string   `json:"display_name"`
	Bio         string   `json:"bio"`
	Interests   []string `json:"interests"`
}

type Store interface {
	Get(ctx context.Context, userID int64) (Profile, error)
	Save(ctx context.Context, p Profile) (Profile, error)
	SetAvatar(ctx context.Context, userID int64, key, url string) (previousKey string, err error)
}

// Uploader stores avatar images.
type Uploader interface {
	Put(ctx context.Context, prefix string, r io.Reader, allowed ...media.Kind) (media.Object, error)
	Delete(ctx context.Context, key string) error
}

type Service struct {
	store Store
	media Uploader
}

func NewService(store Store, uploader Uploader) *Service {
	return &Service{store: store, media: uploader}
}

func (s *Service) Get(ctx context.Context, userID int64) (Profile, error) {
	return s.store.Get(ctx, userID)
}

// Interests returns the user's normalized interest tags. It feeds goal
// recommendations.
func (s *Service) Interests(ctx context.Context, userID int64) ([]string, error) {
	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.Interests, nil
}

func (s *Service) Update(ctx context.Context, userID int64, u Update) (Profile, error) {
	name := strings.TrimSpace(u.DisplayName)
	bio := strings.TrimSpace(u.Bio)
	if utf8.RuneCountInString(name) > maxDisplayName {
		return Profile{}, fmt.Errorf("display name longer than %d characters: %w", maxDisplayName, apperr.ErrInvalid)
	}
	if utf8.RuneCountInString(bio) > maxBio {
		return Profile{}, fmt.Errorf("bio longer than %d characters: %w", maxBio, apperr.ErrInvalid)
	}
	interests := NormalizeInterests(u.Interests)
	if len(interests) > maxInterests {
		return Profile{}, fmt.Errorf("at most %d interests: %w", maxInterests, apperr.ErrInvalid)
	}

	p, err := s.store.Get(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	p.DisplayName = name
	p.Bio = bio
	p.Interests = interests
	return s.store.Save(ctx, p)
}

// SetAvatar uploads a new avatar and removes the previous object.
func (s *Service) SetAvatar(ctx context.Context, userID int64, r io.Reader) (Profile, error) {
	obj, err := s.media.Put(ctx, fmt.Sprintf("avatars/%d", userID), r, media.KindImage)
	if err != nil {
		return Profile{}, err
	}

	prev, err := s.store.SetAvatar(ctx, userID, obj.Key, obj.URL)
	if err != nil {
		_ = s.media.Delete(ctx, obj.Key)
		return Profile{}, err
	}
	if prev != "" && prev != obj.Key {
		if err := s.media.Delete(ctx, prev); err != nil {
			return Profile{}, fmt.Errorf("removing previous avatar: %w", err)
		}
	}
	return s.store.Get(ctx, userID)
}

// NormalizeInterests lowercases, trims, dedupes and sorts interest tags.
func NormalizeInterests(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

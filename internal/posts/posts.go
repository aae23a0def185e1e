package posts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/media"
	"mellow-backend/internal/page"
)

const (
	maxContent   = 2000
	maxReason    = 200
	defaultLimit = 20
	maxLimit     = 100
)

type Post struct {
	ID          int64      `json:"id"`
	AuthorID    int64      `json:"author_id"`
	CommunityID *int64     `json:"community_id,omitempty"`
	Content     string     `json:"content"`
	MediaKey    string     `json:"-"`
	MediaURL    string     `json:"media_url,omitempty"`
	MediaType   string     `json:"media_type,omitempty"`
	LikeCount   int        `json:"like_count"`
	ReportCount int        `json:"report_count"`
	LikedByMe   bool       `json:"liked_by_me"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Expired reports whether an ephemeral post has reached its expiry.
func (p Post) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// Query selects a page of live posts, newest first.
type Query struct {
	CommunityID *int64
	Before      page.Cursor // zero means from the newest
	Limit       int
	Now         time.Time // posts expiring at or before Now are excluded
}

type Store interface {
	Create(ctx context.Context, p Post) (Post, error)
	Get(ctx context.Context, viewerID, id int64) (Post, error)
	List(ctx context.Context, viewerID int64, q Query) ([]Post, error)
	// Delete removes the post and returns its media key.
	Delete(ctx context.Context, id int64) (string, error)
	// AddLike and RemoveLike report whether anything changed.
	AddLike(ctx context.Context, postID, userID int64) (bool, error)
	RemoveLike(ctx context.Context, postID, userID int64) (bool, error)
	// AddReport records one report per user (apperr.ErrConflict on repeat)
	// and returns the new report count.
	AddReport(ctx context.Context, postID, userID int64, reason string) (int, error)
	// DeleteExpired removes posts whose expiry is at or before now and
	// returns their media keys and how many posts went.
	DeleteExpired(ctx context.Context, now time.Time) ([]string, int64, error)
}

// Communities gates posting into communities and reading their feeds.
type Communities interface {
	Exists(ctx context.Context, communityID int64) (bool, error)
	IsMember(ctx context.Context, communityID, userID int64) (bool, error)
}

type MediaStore interface {
	Put(ctx context.Context, prefix string, r io.Reader, allowed ...media.Kind) (media.Object, error)
	Delete(ctx context.Context, key string) error
}

type Options struct {
	// ReportThreshold is the report count at which a post is removed.
	ReportThreshold int
	// TTL is the lifetime of ephemeral posts.
	TTL time.Duration
}

type Service struct {
	store       Store
	communities Communities
	media       MediaStore
	opts        Options
	log         *zap.Logger
	now         func() time.Time
}

func NewService(store Store, communities Communities, mediaStore MediaStore, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:       store,
		communities: communities,
		media:       mediaStore,
		opts:        opts,
		log:         log,
		now:         time.Now,
	}
}

type NewPost struct {
	Content     string
	CommunityID *int64
	Ephemeral   bool
	// Media is optional.
	Media io.Reader
}

func (s *Service) Create(ctx context.Context, userID int64, in NewPost) (Post, error) {
	content := strings.TrimSpace(in.Content)
	if utf8.RuneCountInString(content) > maxContent {
		return Post{}, fmt.Errorf("content longer than %d characters: %w", maxContent, apperr.ErrInvalid)
	}
	if content == "" && in.Media == nil {
		return Post{}, fmt.Errorf("post needs content or media: %w", apperr.ErrInvalid)
	}

	if in.CommunityID != nil {
		ok, err := s.communities.IsMember(ctx, *in.CommunityID, userID)
		if err != nil {
			return Post{}, err
		}
		if !ok {
			return Post{}, fmt.Errorf("not a member of community %d: %w", *in.CommunityID, apperr.ErrForbidden)
		}
	}

	now := s.now().UTC()
	p := Post{
		AuthorID:    userID,
		CommunityID: in.CommunityID,
		Content:     content,
		CreatedAt:   now,
	}
	if in.Ephemeral {
		exp := now.Add(s.opts.TTL)
		p.ExpiresAt = &exp
	}

	if in.Media != nil {
		obj, err := s.media.Put(ctx, fmt.Sprintf("posts/%d", userID), in.Media, media.KindImage, media.KindVideo)
		if err != nil {
			return Post{}, err
		}
		p.MediaKey, p.MediaURL, p.MediaType = obj.Key, obj.URL, obj.ContentType
	}

	created, err := s.store.Create(ctx, p)
	if err != nil {
		if p.MediaKey != "" {
			_ = s.media.Delete(ctx, p.MediaKey)
		}
		return Post{}, err
	}
	return created, nil
}

// Get returns a live post. Expired posts look missing.
func (s *Service) Get(ctx context.Context, userID, id int64) (Post, error) {
	p, err := s.store.Get(ctx, userID, id)
	if err != nil {
		return Post{}, err
	}
	if p.Expired(s.now()) {
		return Post{}, fmt.Errorf("post %d: %w", id, apperr.ErrNotFound)
	}
	return p, nil
}

// Feed lists live posts, optionally within one community. An unknown
// community is apperr.ErrNotFound.
func (s *Service) Feed(ctx context.Context, userID int64, communityID *int64, before page.Cursor, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	if communityID != nil {
		ok, err := s.communities.Exists(ctx, *communityID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("community %d: %w", *communityID, apperr.ErrNotFound)
		}
	}

	now := s.now()
	list, err := s.store.List(ctx, userID, Query{
		CommunityID: communityID,
		Before:      before,
		Limit:       limit,
		Now:         now,
	})
	if err != nil {
		return nil, err
	}
	return Live(list, now), nil
}

// Live drops expired posts.
func Live(list []Post, now time.Time) []Post {
	out := make([]Post, 0, len(list))
	for _, p := range list {
		if !p.Expired(now) {
			out = append(out, p)
		}
	}
	return out
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if p.AuthorID != userID {
		return fmt.Errorf("only the author can delete post %d: %w", id, apperr.ErrForbidden)
	}
	return s.remove(ctx, id)
}

// remove deletes the post row, then its media. Once the row is gone the post
// is removed as far as callers are concerned; a failed media delete only
// leaves an orphaned object behind and is logged.
func (s *Service) remove(ctx context.Context, id int64) error {
	key, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	if err := s.media.Delete(ctx, key); err != nil {
		s.log.Warn("media delete failed after post removal",
			zap.Int64("post_id", id), zap.String("key", key), zap.Error(err))
	}
	return nil
}

// SetLiked toggles the caller's like. Repeating a like or unlike is a no-op.
func (s *Service) SetLiked(ctx context.Context, userID, id int64, liked bool) (Post, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return Post{}, err
	}

	var err error
	if liked {
		_, err = s.store.AddLike(ctx, id, userID)
	} else {
		_, err = s.store.RemoveLike(ctx, id, userID)
	}
	if err != nil {
		return Post{}, err
	}
	return s.store.Get(ctx, userID, id)
}

type ReportResult struct {
	ReportCount int  `json:"report_count"`
	Removed     bool `json:"removed"`
}

// Report records a report. Once the report count reaches the threshold the
// post and its media are deleted.
func (s *Service) Report(ctx context.Context, userID, id int64, reason string) (ReportResult, error) {
	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxReason {
		return ReportResult{}, fmt.Errorf("reason longer than %d characters: %w", maxReason, apperr.ErrInvalid)
	}

	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return ReportResult{}, err
	}
	if p.AuthorID == userID {
		return ReportResult{}, fmt.Errorf("cannot report your own post: %w", apperr.ErrForbidden)
	}

	count, err := s.store.AddReport(ctx, id, userID, reason)
	if err != nil {
		return ReportResult{}, err
	}

	res := ReportResult{ReportCount: count}
	if ShouldRemove(count, s.opts.ReportThreshold) {
		if err := s.remove(ctx, id); err != nil {
			return ReportResult{}, err
		}
		res.Removed = true
	}
	return res, nil
}

// ShouldRemove reports whether a post with reports reports crosses the
// removal threshold.
func ShouldRemove(reports, threshold int) bool {
	return threshold > 0 && reports >= threshold
}

// Sweep deletes expired posts and their media. Media that fails to delete is
// logged and left behind, like in remove.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	keys, n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := s.media.Delete(ctx, key); err != nil {
			s.log.Warn("media delete failed after expiry", zap.String("key", key), zap.Error(err))
		}
	}
	return n, nil
}

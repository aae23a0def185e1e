package posts

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/media"
)

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	posts   map[int64]*Post
	likes   map[[2]int64]bool
	reports map[[2]int64]string
}

func newMemStore() *memStore {
	return &memStore{posts: map[int64]*Post{}, likes: map[[2]int64]bool{}, reports: map[[2]int64]string{}}
}

func (m *memStore) view(viewer int64, p *Post) Post {
	out := *p
	out.LikedByMe = m.likes[[2]int64{p.ID, viewer}]
	return out
}

func (m *memStore) Create(_ context.Context, p Post) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.posts[p.ID] = &p
	return m.view(p.AuthorID, &p), nil
}

func (m *memStore) Get(_ context.Context, viewer, id int64) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return Post{}, fmt.Errorf("post %d: %w", id, apperr.ErrNotFound)
	}
	return m.view(viewer, p), nil
}

// List deliberately ignores q.Now so the service-side filter is exercised.
func (m *memStore) List(_ context.Context, viewer int64, q Query) ([]Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Post
	for _, p := range m.posts {
		if q.CommunityID != nil && (p.CommunityID == nil || *p.CommunityID != *q.CommunityID) {
			continue
		}
		if !q.Before.Admits(p.CreatedAt, p.ID) {
			continue
		}
		out = append(out, m.view(viewer, p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memStore) Delete(_ context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return "", apperr.ErrNotFound
	}
	delete(m.posts, id)
	return p.MediaKey, nil
}

func (m *memStore) AddLike(_ context.Context, postID, uid int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]int64{postID, uid}
	if m.likes[k] {
		return false, nil
	}
	m.likes[k] = true
	m.posts[postID].LikeCount++
	return true, nil
}

func (m *memStore) RemoveLike(_ context.Context, postID, uid int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]int64{postID, uid}
	if !m.likes[k] {
		return false, nil
	}
	delete(m.likes, k)
	m.posts[postID].LikeCount--
	return true, nil
}

func (m *memStore) AddReport(_ context.Context, postID, uid int64, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := [2]int64{postID, uid}
	if _, dup := m.reports[k]; dup {
		return 0, apperr.ErrConflict
	}
	m.reports[k] = reason
	m.posts[postID].ReportCount++
	return m.posts[postID].ReportCount, nil
}

func (m *memStore) DeleteExpired(_ context.Context, now time.Time) ([]string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	var n int64
	for id, p := range m.posts {
		if p.Expired(now) {
			n++
			if p.MediaKey != "" {
				keys = append(keys, p.MediaKey)
			}
			delete(m.posts, id)
		}
	}
	return keys, n, nil
}

type members map[int64][]int64

func (m members) Exists(_ context.Context, communityID int64) (bool, error) {
	_, ok := m[communityID]
	return ok, nil
}

func (m members) IsMember(_ context.Context, communityID, uid int64) (bool, error) {
	for _, id := range m[communityID] {
		if id == uid {
			return true, nil
		}
	}
	return false, nil
}

type memMedia struct {
	mu        sync.Mutex
	n         int
	puts      int
	stored    map[string]bool
	deleted   []string
	deleteErr error
}

func newMemMedia() *memMedia {
	return &memMedia{stored: map[string]bool{}}
}

func (m *memMedia) Put(_ context.Context, prefix string, r io.Reader, allowed ...media.Kind) (media.Object, error) {
	m.mu.Lock()
	m.puts++
	m.mu.Unlock()

	_, mt, err := media.Inspect(r, 1<<20, allowed...)
	if err != nil {
		return media.Object{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	key := fmt.Sprintf("%s/%d%s", prefix, m.n, mt.Extension())
	m.stored[key] = true
	return media.Object{Key: key, URL: "https://cdn/" + key, ContentType: mt.String()}, nil
}

func (m *memMedia) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.stored, key)
	m.deleted = append(m.deleted, key)
	return nil
}

package goals

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"mellow-backend/internal/apperr"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	goals  map[int64]*Goal
	clock  time.Time
}

func newMemStore() *memStore {
	return &memStore{goals: map[int64]*Goal{}, clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memStore) Create(_ context.Context, g Goal) (Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.clock = m.clock.Add(time.Minute)
	g.ID = m.nextID
	g.CreatedAt = m.clock
	g.MemberIDs = []int64{g.OwnerID}
	g.CompletedBy = []int64{}
	m.goals[g.ID] = &g
	return g, nil
}

func (m *memStore) Get(_ context.Context, id int64) (Goal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return Goal{}, fmt.Errorf("goal %d: %w", id, apperr.ErrNotFound)
	}
	out := *g
	out.MemberIDs = slices.Clone(g.MemberIDs)
	out.CompletedBy = slices.Clone(g.CompletedBy)
	return out, nil
}

func (m *memStore) list(keep func(*Goal) bool) []Goal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Goal
	for id := m.nextID; id > 0; id-- {
		if g, ok := m.goals[id]; ok && keep(g) {
			out = append(out, *g)
		}
	}
	return out
}

func (m *memStore) ListForMember(_ context.Context, uid int64) ([]Goal, error) {
	return m.list(func(g *Goal) bool { return g.IsMember(uid) }), nil
}

func (m *memStore) ListOpenPublic(context.Context) ([]Goal, error) {
	return m.list(func(g *Goal) bool { return g.IsPublic && !g.IsCompleted }), nil
}

func (m *memStore) Update(_ context.Context, g Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.goals[g.ID]
	if !ok {
		return apperr.ErrNotFound
	}
	cur.Title, cur.Description, cur.Category, cur.IsPublic = g.Title, g.Description, g.Category, g.IsPublic
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.goals[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.goals, id)
	return nil
}

func (m *memStore) AddMember(_ context.Context, goalID, uid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok {
		return apperr.ErrNotFound
	}
	if g.IsMember(uid) {
		return apperr.ErrConflict
	}
	g.MemberIDs = append(g.MemberIDs, uid)
	return nil
}

func (m *memStore) RemoveMember(_ context.Context, goalID, uid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok || !g.IsMember(uid) {
		return apperr.ErrNotFound
	}
	g.MemberIDs = slices.DeleteFunc(g.MemberIDs, func(id int64) bool { return id == uid })
	g.CompletedBy = slices.DeleteFunc(g.CompletedBy, func(id int64) bool { return id == uid })
	return nil
}

func (m *memStore) SetMemberCompletion(_ context.Context, goalID, uid int64, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok || !g.IsMember(uid) {
		return apperr.ErrNotFound
	}
	g.CompletedBy = slices.DeleteFunc(g.CompletedBy, func(id int64) bool { return id == uid })
	if at != nil {
		g.CompletedBy = append(g.CompletedBy, uid)
	}
	return nil
}

func (m *memStore) SetGoalCompletion(_ context.Context, goalID int64, at *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[goalID]
	if !ok {
		return apperr.ErrNotFound
	}
	g.IsCompleted = at != nil
	g.CompletedAt = at
	return nil
}

type staticInterests map[int64][]string

func (s staticInterests) Interests(_ context.Context, uid int64) ([]string, error) {
	return s[uid], nil
}

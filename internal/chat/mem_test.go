package chat

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/page"
)

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	convs    map[int64]*Conversation
	msgs     []Message
	lastRead map[[2]int64]*time.Time
	now      time.Time
}

func newMemStore(now time.Time) *memStore {
	return &memStore{convs: map[int64]*Conversation{}, lastRead: map[[2]int64]*time.Time{}, now: now}
}

func (m *memStore) OpenDirect(_ context.Context, a, b int64) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if len(c.MemberIDs) == 2 && c.HasMember(a) && c.HasMember(b) {
			return *c, nil
		}
	}
	return m.create([]int64{a, b}), nil
}

func (m *memStore) Create(_ context.Context, memberIDs []int64) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create(memberIDs), nil
}

func (m *memStore) create(memberIDs []int64) Conversation {
	m.nextID++
	c := &Conversation{ID: m.nextID, MemberIDs: slices.Clone(memberIDs), CreatedAt: m.now}
	m.convs[c.ID] = c
	for _, uid := range memberIDs {
		m.lastRead[[2]int64{c.ID, uid}] = nil
	}
	return *c
}

func (m *memStore) Get(_ context.Context, id int64) (Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return Conversation{}, fmt.Errorf("conversation %d: %w", id, apperr.ErrNotFound)
	}
	return *c, nil
}

func (m *memStore) ListForUser(_ context.Context, userID int64) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Conversation
	for _, c := range m.convs {
		if c.HasMember(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Messages relies on msgs being appended in (created_at, id) order.
func (m *memStore) Messages(_ context.Context, conversationID int64, before page.Cursor, limit int) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Message{}
	for i := len(m.msgs) - 1; i >= 0 && len(out) < limit; i-- {
		msg := m.msgs[i]
		if msg.ConversationID != conversationID {
			continue
		}
		if !before.Admits(msg.CreatedAt, msg.ID) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func (m *memStore) AddMessage(_ context.Context, msg Message) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = int64(len(m.msgs) + 1)
	m.msgs = append(m.msgs, msg)
	at := msg.CreatedAt
	m.convs[msg.ConversationID].LastMessageAt = &at
	return msg, nil
}

func (m *memStore) MarkRead(_ context.Context, conversationID, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int64{conversationID, userID}
	prev, ok := m.lastRead[key]
	if !ok {
		return fmt.Errorf("not a member of conversation %d: %w", conversationID, apperr.ErrNotFound)
	}
	if prev == nil || at.After(*prev) {
		m.lastRead[key] = &at
	}
	return nil
}

func (m *memStore) ReadMarkers(_ context.Context, userID int64) ([]ReadMarker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ReadMarker
	for key, at := range m.lastRead {
		if key[1] == userID {
			out = append(out, ReadMarker{ConversationID: key[0], LastReadAt: at})
		}
	}
	return out, nil
}

// UnreadMessages returns every message; CountUnread filters.
func (m *memStore) UnreadMessages(_ context.Context, _ int64) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.msgs), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	to     [][]int64
}

func (p *recordingPublisher) Publish(userIDs []int64, ev Event) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	p.to = append(p.to, slices.Clone(userIDs))
	return 0
}

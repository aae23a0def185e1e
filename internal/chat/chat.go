package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/page"
)

const (
	maxBody         = 2000
	maxMembers      = 20
	defaultPageSize = 50
	maxPageSize     = 200
)

type Conversation struct {
	ID            int64      `json:"id"`
	MemberIDs     []int64    `json:"member_ids"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	UnreadCount   int        `json:"unread_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (c Conversation) HasMember(userID int64) bool {
	return slices.Contains(c.MemberIDs, userID)
}

type Message struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID int64     `json:"conversation_id" db:"conversation_id"`
	SenderID       int64     `json:"sender_id" db:"sender_id"`
	Body           string    `json:"body" db:"body"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type Store interface {
	// OpenDirect returns the two-member conversation between a and b,
	// creating it when missing. Concurrent calls for one pair must agree.
	OpenDirect(ctx context.Context, a, b int64) (Conversation, error)
	Create(ctx context.Context, memberIDs []int64) (Conversation, error)
	Get(ctx context.Context, id int64) (Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]Conversation, error)
	Messages(ctx context.Context, conversationID int64, before page.Cursor, limit int) ([]Message, error)
	// AddMessage stores m and bumps the conversation's last_message_at.
	AddMessage(ctx context.Context, m Message) (Message, error)
	MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error
	ReadMarkers(ctx context.Context, userID int64) ([]ReadMarker, error)
	// UnreadMessages may return any superset of the user's unread
	// messages; CountUnread does the exact filtering.
	UnreadMessages(ctx context.Context, userID int64) ([]Message, error)
}

// Publisher fans new messages out to connected clients.
type Publisher interface {
	Publish(userIDs []int64, ev Event) int
}

type Service struct {
	store Store
	pub   Publisher
	now   func() time.Time
}

func NewService(store Store, pub Publisher) *Service {
	return &Service{store: store, pub: pub, now: time.Now}
}

// Start opens a conversation between userID and others. A one-to-one
// conversation that already exists is reused.
func (s *Service) Start(ctx context.Context, userID int64, others []int64) (Conversation, error) {
	members := []int64{userID}
	for _, id := range others {
		if id <= 0 {
			return Conversation{}, fmt.Errorf("bad member id %d: %w", id, apperr.ErrInvalid)
		}
		if !slices.Contains(members, id) {
			members = append(members, id)
		}
	}
	switch {
	case len(members) < 2:
		return Conversation{}, fmt.Errorf("a conversation needs another member: %w", apperr.ErrInvalid)
	case len(members) > maxMembers:
		return Conversation{}, fmt.Errorf("at most %d members: %w", maxMembers, apperr.ErrInvalid)
	}

	slices.Sort(members)
	if len(members) == 2 {
		c, err := s.store.OpenDirect(ctx, members[0], members[1])
		if err != nil {
			return Conversation{}, err
		}
		return s.withUnread(ctx, userID, c)
	}
	return s.store.Create(ctx, members)
}

func (s *Service) member(ctx context.Context, userID, conversationID int64) (Conversation, error) {
	c, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return Conversation{}, err
	}
	if !c.HasMember(userID) {
		return Conversation{}, fmt.Errorf("not a member of conversation %d: %w", conversationID, apperr.ErrForbidden)
	}
	return c, nil
}

func (s *Service) withUnread(ctx context.Context, userID int64, c Conversation) (Conversation, error) {
	u, err := s.Unread(ctx, userID)
	if err != nil {
		return Conversation{}, err
	}
	c.UnreadCount = u.ByConversation[c.ID]
	return c, nil
}

// List returns the user's conversations, most recently active first, with
// unread counts filled in.
func (s *Service) List(ctx context.Context, userID int64) ([]Conversation, error) {
	list, err := s.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	u, err := s.Unread(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].UnreadCount = u.ByConversation[list[i].ID]
	}
	slices.SortStableFunc(list, func(a, b Conversation) int {
		return activity(b).Compare(activity(a))
	})
	return list, nil
}

func activity(c Conversation) time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.CreatedAt
}

func (s *Service) Messages(ctx context.Context, userID, conversationID int64, before page.Cursor, limit int) ([]Message, error) {
	if _, err := s.member(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	return s.store.Messages(ctx, conversationID, before, limit)
}

// Send stores a message and pushes it to every member's open streams.
func (s *Service) Send(ctx context.Context, userID, conversationID int64, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, fmt.Errorf("message body is required: %w", apperr.ErrInvalid)
	}
	if utf8.RuneCountInString(body) > maxBody {
		return Message{}, fmt.Errorf("message longer than %d characters: %w", maxBody, apperr.ErrInvalid)
	}

	c, err := s.member(ctx, userID, conversationID)
	if err != nil {
		return Message{}, err
	}

	m, err := s.store.AddMessage(ctx, Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Body:           body,
		CreatedAt:      s.now().UTC(),
	})
	if err != nil {
		return Message{}, err
	}

	// the sender has obviously read their own message
	if err := s.store.MarkRead(ctx, conversationID, userID, m.CreatedAt); err != nil {
		return Message{}, err
	}

	s.pub.Publish(c.MemberIDs, Event{Type: EventMessage, Message: &m})
	return m, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, conversationID int64) error {
	if _, err := s.member(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.store.MarkRead(ctx, conversationID, userID, s.now().UTC())
}

func (s *Service) Unread(ctx context.Context, userID int64) (Unread, error) {
	markers, err := s.store.ReadMarkers(ctx, userID)
	if err != nil {
		return Unread{}, err
	}
	msgs, err := s.store.UnreadMessages(ctx, userID)
	if err != nil {
		return Unread{}, err
	}
	return CountUnread(userID, markers, msgs), nil
}

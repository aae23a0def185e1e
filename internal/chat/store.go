package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/page"
)

const foreignKeyViolation = "23503"

type SQLStore struct {
	db *sqlx.DB
}

func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type dbConversation struct {
	ID            int64         `db:"id"`
	MemberIDs     pq.Int64Array `db:"member_ids"`
	LastMessageAt sql.NullTime  `db:"last_message_at"`
	CreatedAt     time.Time     `db:"created_at"`
}

func toDomainConversation(row dbConversation) Conversation {
	c := Conversation{
		ID:        row.ID,
		MemberIDs: []int64(row.MemberIDs),
		CreatedAt: row.CreatedAt,
	}
	if row.LastMessageAt.Valid {
		t := row.LastMessageAt.Time
		c.LastMessageAt = &t
	}
	return c
}

const selectConversation = `
	SELECT
		c.id, c.last_message_at, c.created_at,
		ARRAY(
			SELECT m.user_id FROM conversation_members m
			WHERE m.conversation_id = c.id
			ORDER BY m.user_id
		) AS member_ids
	FROM conversations c
`

// OpenDirect runs under a transaction-scoped advisory lock keyed on the
// sorted pair, so concurrent calls for the same two users see each other's
// conversation instead of creating a second one.
func (s *SQLStore) OpenDirect(ctx context.Context, a, b int64) (Conversation, error) {
	a, b = min(a, b), max(a, b)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		SELECT pg_advisory_xact_lock(hashtextextended('chat-direct:' || $1::text || ':' || $2::text, 0))
	`, a, b); err != nil {
		return Conversation{}, fmt.Errorf("locking direct conversation: %w", err)
	}

	var id int64
	err = tx.GetContext(ctx, &id, `
		SELECT c.id
		FROM conversations c
		WHERE (SELECT COUNT(*) FROM conversation_members m WHERE m.conversation_id = c.id) = 2
		  AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $1)
		  AND EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $2)
		ORDER BY c.id
		LIMIT 1
	`, a, b)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if id, err = insertConversation(ctx, tx, []int64{a, b}); err != nil {
			return Conversation{}, err
		}
	case err != nil:
		return Conversation{}, fmt.Errorf("finding direct conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, fmt.Errorf("commit: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) Create(ctx context.Context, memberIDs []int64) (Conversation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Conversation{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := insertConversation(ctx, tx, memberIDs)
	if err != nil {
		return Conversation{}, err
	}

	if err := tx.Commit(); err != nil {
		return Conversation{}, fmt.Errorf("commit: %w", err)
	}
	return s.Get(ctx, id)
}

func insertConversation(ctx context.Context, tx *sqlx.Tx, memberIDs []int64) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, `INSERT INTO conversations DEFAULT VALUES RETURNING id`).Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversation_members (conversation_id, user_id)
		SELECT $1, unnest($2::bigint[])
	`, id, pq.Array(memberIDs)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation {
			return 0, fmt.Errorf("unknown member: %w", apperr.ErrInvalid)
		}
		return 0, fmt.Errorf("inserting members: %w", err)
	}
	return id, nil
}

func (s *SQLStore) Get(ctx context.Context, id int64) (Conversation, error) {
	var row dbConversation
	err := s.db.GetContext(ctx, &row, selectConversation+` WHERE c.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("conversation %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("selecting conversation: %w", err)
	}
	return toDomainConversation(row), nil
}

func (s *SQLStore) ListForUser(ctx context.Context, userID int64) ([]Conversation, error) {
	var rows []dbConversation
	err := s.db.SelectContext(ctx, &rows, selectConversation+`
		WHERE EXISTS (SELECT 1 FROM conversation_members m WHERE m.conversation_id = c.id AND m.user_id = $1)
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("selecting conversations: %w", err)
	}
	out := make([]Conversation, len(rows))
	for i, row := range rows {
		out[i] = toDomainConversation(row)
	}
	return out, nil
}

func (s *SQLStore) Messages(ctx context.Context, conversationID int64, before page.Cursor, limit int) ([]Message, error) {
	msgs := []Message{}
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages
		WHERE conversation_id = $1
		  AND ($2::timestamptz IS NULL OR (created_at, id) < ($2::timestamptz, $3::bigint))
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, conversationID, before.TimeArg(), before.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting messages: %w", err)
	}
	return msgs, nil
}

func (s *SQLStore) AddMessage(ctx context.Context, m Message) (Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, m.ConversationID, m.SenderID, m.Body, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)
		WHERE id = $1
	`, m.ConversationID, m.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("bumping conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

func (s *SQLStore) MarkRead(ctx context.Context, conversationID, userID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_members
		SET last_read_at = GREATEST(COALESCE(last_read_at, $3), $3)
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID, at)
	if err != nil {
		return fmt.Errorf("marking read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("not a member of conversation %d: %w", conversationID, apperr.ErrNotFound)
	}
	return nil
}

func (s *SQLStore) ReadMarkers(ctx context.Context, userID int64) ([]ReadMarker, error) {
	var markers []ReadMarker
	err := s.db.SelectContext(ctx, &markers, `
		SELECT conversation_id, last_read_at
		FROM conversation_members
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("selecting read markers: %w", err)
	}
	return markers, nil
}

func (s *SQLStore) UnreadMessages(ctx context.Context, userID int64) ([]Message, error) {
	var msgs []Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT msg.id, msg.conversation_id, msg.sender_id, '' AS body, msg.created_at
		FROM messages msg
		JOIN conversation_members m ON m.conversation_id = msg.conversation_id AND m.user_id = $1
		WHERE msg.sender_id <> $1
		  AND (m.last_read_at IS NULL OR msg.created_at > m.last_read_at)
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("selecting unread messages: %w", err)
	}
	return msgs, nil
}

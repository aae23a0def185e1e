package chat

import "time"

// ReadMarker is how far a user has read in one conversation. A nil
// LastReadAt means never.
type ReadMarker struct {
	ConversationID int64      `db:"conversation_id"`
	LastReadAt     *time.Time `db:"last_read_at"`
}

type Unread struct {
	Total          int           `json:"total"`
	ByConversation map[int64]int `json:"by_conversation"`
}

// CountUnread aggregates unread counts for userID. A message is unread when
// it belongs to one of the user's conversations, was sent by someone else,
// and is newer than the user's read marker there. Every conversation in
// markers gets an entry, zero included.
func CountUnread(userID int64, markers []ReadMarker, msgs []Message) Unread {
	readUpTo := make(map[int64]*time.Time, len(markers))
	out := Unread{ByConversation: make(map[int64]int, len(markers))}
	for _, m := range markers {
		readUpTo[m.ConversationID] = m.LastReadAt
		out.ByConversation[m.ConversationID] = 0
	}

	for _, msg := range msgs {
		last, member := readUpTo[msg.ConversationID]
		if !member || msg.SenderID == userID {
			continue
		}
		if last != nil && !msg.CreatedAt.After(*last) {
			continue
		}
		out.ByConversation[msg.ConversationID]++
		out.Total++
	}
	return out
}

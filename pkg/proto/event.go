package proto

import "time"

// EventKind discriminates inbound platform events.
type EventKind string

const (
	EventMemberJoined EventKind = "MEMBER_JOINED"
	EventMemberLeft   EventKind = "MEMBER_LEFT"
	EventMessage      EventKind = "MESSAGE"
	EventReaction     EventKind = "REACTION"
)

// Event is one inbound platform event, normalized away from any SDK types.
// MessageID is the platform's globally unique id for message events; for
// reactions it is the id of the message the reaction landed on.
type Event struct {
	Kind      EventKind `json:"kind"`
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	FromBot   bool      `json:"from_bot,omitempty"`
	JoinedAt  time.Time `json:"joined_at,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"` // account creation, for age gating
	Timestamp time.Time `json:"timestamp"`
}

// ChannelMessage is one entry of a channel's recent message log, used by
// rehydration to reconstruct turns the orchestrator never saw.
type ChannelMessage struct {
	MessageID string    `json:"message_id"`
	AuthorID  string    `json:"author_id"`
	FromBot   bool      `json:"from_bot"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnAuthor tags who produced a persisted turn.
type TurnAuthor string

const (
	TurnAuthorUser  TurnAuthor = "user"
	TurnAuthorAgent TurnAuthor = "agent"
)

package persistence

import (
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// ConversationState is the restart-safe dialogue state for one user. It is
// embedded in the applicant row so state and identity update atomically.
type ConversationState struct {
	CurrentStep            proto.Step       `json:"current_step"`
	ActiveWaiter           proto.WaiterKind `json:"active_waiter"`
	StepEntryTime          time.Time        `json:"step_entry_time"`
	TimeoutAt              *time.Time       `json:"timeout_at,omitempty"` // non-nil iff a waiter is armed
	AttemptCount           int              `json:"attempt_count"`
	DegradedCount          int              `json:"degraded_count,omitempty"` // consecutive classifier-failure turns
	LastIntent             proto.Intent     `json:"last_intent,omitempty"`
	LastProcessedMessageID string           `json:"last_processed_message_id,omitempty"`
	VouchInitiatorID       string           `json:"vouch_initiator_id,omitempty"`
}

// IdleState returns a cleared conversation state.
func IdleState(now time.Time) ConversationState {
	return ConversationState{
		CurrentStep:   proto.StepIdle,
		ActiveWaiter:  proto.WaiterNone,
		StepEntryTime: now,
	}
}

// Applicant is one tracked user: identity, recruitment standing, and the
// embedded conversation state.
type Applicant struct {
	UserID            string                  `json:"user_id"`
	Username          string                  `json:"username"`
	GuildID           string                  `json:"guild_id"`
	ChannelID         string                  `json:"channel_id,omitempty"`        // processing channel
	TicketChannelID   string                  `json:"ticket_channel_id,omitempty"` // application ticket channel
	MemberRole        string                  `json:"member_role,omitempty"`
	ApplicationStatus proto.ApplicationStatus `json:"application_status"`
	CommunityStatus   proto.CommunityStatus   `json:"community_status"`
	VouchedBy         string                  `json:"vouched_by,omitempty"`
	JoinedAt          time.Time               `json:"joined_at"`
	LastActivityAt    time.Time               `json:"last_activity_at"`
	Conversation      ConversationState       `json:"conversation"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// Turn is one persisted conversation turn, append-only.
type Turn struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	ChannelID         string           `json:"channel_id"`
	Author            proto.TurnAuthor `json:"author"`
	Content           string           `json:"content"`
	ExternalMessageID string           `json:"external_message_id"`
	ClassifierOutput  string           `json:"classifier_output,omitempty"` // raw JSON, user turns only
	CreatedAt         time.Time        `json:"created_at"`
}

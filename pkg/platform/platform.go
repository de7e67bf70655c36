// Package platform abstracts the chat platform the bot runs on. The rest of
// the system talks to this interface; the discord subpackage provides the
// production implementation.
package platform

import (
	"context"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// Member is a resolved guild member.
type Member struct {
	ID       string
	Username string
	Mention  string
}

// ChannelSpec describes a private channel to create. The channel is hidden
// from everyone except the listed members and roles.
type ChannelSpec struct {
	Name         string
	CategoryName string
	MemberIDs    []string
	RoleIDs      []string
}

// Client is the platform surface the recruiter needs. All methods are safe
// for concurrent use.
type Client interface {
	// SendMessage posts content to a channel and returns the new message ID.
	SendMessage(ctx context.Context, channelID, content string) (string, error)

	// AddReaction adds an emoji reaction to a message, used to seed the
	// reaction prompt on vouch requests.
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error

	// CreateChannel creates a private text channel and returns its ID.
	CreateChannel(ctx context.Context, guildID string, spec ChannelSpec) (string, error)

	// DeleteChannel removes a channel. Deleting an already-deleted channel
	// is not an error.
	DeleteChannel(ctx context.Context, channelID string) error

	// AllowChannelAccess grants a member read and write access to an
	// existing private channel, used to bring a voucher into a vouch
	// conversation.
	AllowChannelAccess(ctx context.Context, channelID, userID string) error

	// GrantRole adds a role to a member.
	GrantRole(ctx context.Context, guildID, userID, roleID string) error

	// RevokeRole removes a role from a member.
	RevokeRole(ctx context.Context, guildID, userID, roleID string) error

	// FindMemberByName resolves a member by display or account name.
	// Returns nil when no member matches.
	FindMemberByName(ctx context.Context, guildID, name string) (*Member, error)

	// MessagesAfter returns up to limit channel messages strictly newer than
	// afterMessageID, oldest first. An empty afterMessageID returns the most
	// recent messages.
	MessagesAfter(ctx context.Context, channelID, afterMessageID string, limit int) ([]proto.ChannelMessage, error)

	// SendDirectMessage delivers content to the user's DM channel. Users
	// can block DMs; callers treat failure as best-effort.
	SendDirectMessage(ctx context.Context, userID, content string) error

	// KickMember removes a member from the guild.
	KickMember(ctx context.Context, guildID, userID, reason string) error
}

// EventSink receives normalized platform events.
type EventSink func(event *proto.Event)

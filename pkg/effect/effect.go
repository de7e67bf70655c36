// Package effect provides the core abstractions for executable side effects.
// Dialogue and workflow decisions return effects instead of touching the
// platform directly, which keeps the engines pure and testable.
package effect

import (
	"context"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
)

// Effect represents an executable unit that performs an action using a Runtime.
// Examples: sending messages, granting roles, opening ticket channels.
type Effect interface {
	// Execute performs the effect using the provided runtime capabilities.
	Execute(ctx context.Context, runtime Runtime) (any, error)

	// Type returns a string identifier for this effect type, used for
	// logging and the event journal.
	Type() string
}

// Runtime provides the capability surface that effects can use. It is
// composed of smaller capability interfaces.
type Runtime interface {
	Platform
	Logging
	GuildInfo
}

// Platform provides chat platform capabilities scoped to the managed guild.
type Platform interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	CreateChannel(ctx context.Context, spec platform.ChannelSpec) (string, error)
	DeleteChannel(ctx context.Context, channelID string) error
	AllowChannelAccess(ctx context.Context, channelID, userID string) error
	GrantRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	SendDirectMessage(ctx context.Context, userID, content string) error
	KickMember(ctx context.Context, userID, reason string) error
}

// Logging provides structured logging capabilities.
type Logging interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// GuildInfo exposes the managed guild's configuration.
type GuildInfo interface {
	GuildID() string
	StaffChannelID() string
	Roles() config.RolesConfig
	Categories() config.CategoriesConfig
}

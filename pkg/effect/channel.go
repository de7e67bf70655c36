package effect

import (
	"context"
	"fmt"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
)

// CreateChannelEffect creates a private channel visible to the listed
// members plus the recruiter and bot roles.
type CreateChannelEffect struct {
	Name         string
	CategoryName string
	MemberIDs    []string
}

// CreateChannelResult carries the id of the created channel.
type CreateChannelResult struct {
	ChannelID string
}

// Execute implements Effect.
func (e *CreateChannelEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	roles := runtime.Roles()
	roleIDs := make([]string, 0, 2)
	if roles.Recruiter != "" {
		roleIDs = append(roleIDs, roles.Recruiter)
	}
	if roles.Bot != "" {
		roleIDs = append(roleIDs, roles.Bot)
	}

	channelID, err := runtime.CreateChannel(ctx, platform.ChannelSpec{
		Name:         e.Name,
		CategoryName: e.CategoryName,
		MemberIDs:    e.MemberIDs,
		RoleIDs:      roleIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create channel %s: %w", e.Name, err)
	}

	runtime.Info("🏗️ created channel %s (%s)", e.Name, channelID)
	return &CreateChannelResult{ChannelID: channelID}, nil
}

// Type implements Effect.
func (e *CreateChannelEffect) Type() string { return "create_channel" }

// DeleteChannelEffect removes a channel. Used when vouch channels resolve
// and when the cleanup sweep retires stale processing channels.
type DeleteChannelEffect struct {
	ChannelID string
}

// Execute implements Effect.
func (e *DeleteChannelEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	if e.ChannelID == "" {
		return nil, nil
	}
	if err := runtime.DeleteChannel(ctx, e.ChannelID); err != nil {
		return nil, fmt.Errorf("failed to delete channel %s: %w", e.ChannelID, err)
	}
	runtime.Info("🧹 deleted channel %s", e.ChannelID)
	return nil, nil
}

// Type implements Effect.
func (e *DeleteChannelEffect) Type() string { return "delete_channel" }

// AllowChannelAccessEffect grants a member access to an existing private
// channel.
type AllowChannelAccessEffect struct {
	ChannelID string
	UserID    string
}

// Execute implements Effect.
func (e *AllowChannelAccessEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	if err := runtime.AllowChannelAccess(ctx, e.ChannelID, e.UserID); err != nil {
		return nil, fmt.Errorf("failed to open channel %s to %s: %w", e.ChannelID, e.UserID, err)
	}
	runtime.Debug("🔑 granted %s access to channel %s", e.UserID, e.ChannelID)
	return nil, nil
}

// Type implements Effect.
func (e *AllowChannelAccessEffect) Type() string { return "allow_channel_access" }


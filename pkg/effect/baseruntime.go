package effect

import (
	"context"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
)

// BaseRuntime is the production Runtime wired to a platform client and the
// loaded guild configuration.
type BaseRuntime struct {
	client platform.Client
	cfg    config.Config
	logger *logx.Logger
}

// NewRuntime creates a runtime over the given platform client.
func NewRuntime(client platform.Client, cfg config.Config) *BaseRuntime {
	return &BaseRuntime{
		client: client,
		cfg:    cfg,
		logger: logx.NewLogger("effects"),
	}
}

// SendMessage implements Platform.
func (r *BaseRuntime) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	return r.client.SendMessage(ctx, channelID, content)
}

// AddReaction implements Platform.
func (r *BaseRuntime) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	return r.client.AddReaction(ctx, channelID, messageID, emoji)
}

// CreateChannel implements Platform.
func (r *BaseRuntime) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (string, error) {
	return r.client.CreateChannel(ctx, r.cfg.Guild.ID, spec)
}

// DeleteChannel implements Platform.
func (r *BaseRuntime) DeleteChannel(ctx context.Context, channelID string) error {
	return r.client.DeleteChannel(ctx, channelID)
}

// AllowChannelAccess implements Platform.
func (r *BaseRuntime) AllowChannelAccess(ctx context.Context, channelID, userID string) error {
	return r.client.AllowChannelAccess(ctx, channelID, userID)
}

// GrantRole implements Platform.
func (r *BaseRuntime) GrantRole(ctx context.Context, userID, roleID string) error {
	return r.client.GrantRole(ctx, r.cfg.Guild.ID, userID, roleID)
}

// RevokeRole implements Platform.
func (r *BaseRuntime) RevokeRole(ctx context.Context, userID, roleID string) error {
	return r.client.RevokeRole(ctx, r.cfg.Guild.ID, userID, roleID)
}

// SendDirectMessage implements Platform.
func (r *BaseRuntime) SendDirectMessage(ctx context.Context, userID, content string) error {
	return r.client.SendDirectMessage(ctx, userID, content)
}

// KickMember implements Platform.
func (r *BaseRuntime) KickMember(ctx context.Context, userID, reason string) error {
	return r.client.KickMember(ctx, r.cfg.Guild.ID, userID, reason)
}

// Info implements Logging.
func (r *BaseRuntime) Info(msg string, args ...any) { r.logger.Info(msg, args...) }

// Error implements Logging.
func (r *BaseRuntime) Error(msg string, args ...any) { r.logger.Error(msg, args...) }

// Debug implements Logging.
func (r *BaseRuntime) Debug(msg string, args ...any) { r.logger.Debug(msg, args...) }

// GuildID implements GuildInfo.
func (r *BaseRuntime) GuildID() string { return r.cfg.Guild.ID }

// StaffChannelID implements GuildInfo.
func (r *BaseRuntime) StaffChannelID() string { return r.cfg.StaffChannelID }

// Roles implements GuildInfo.
func (r *BaseRuntime) Roles() config.RolesConfig { return r.cfg.Roles }

// Categories implements GuildInfo.
func (r *BaseRuntime) Categories() config.CategoriesConfig { return r.cfg.Categories }

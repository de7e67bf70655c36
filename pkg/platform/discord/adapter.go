// Package discord implements the platform interface on top of the Discord
// gateway and REST API.
package discord

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// Adapter implements platform.Client over a discordgo session.
type Adapter struct {
	session *discordgo.Session
	logger  *logx.Logger
	botID   string
}

// NewAdapter creates a connected-ready adapter from a bot token. Open must
// be called before events flow.
func NewAdapter(token string) (*Adapter, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentMessageContent

	return &Adapter{
		session: session,
		logger:  logx.NewLogger("discord"),
	}, nil
}

// Open connects the gateway session and begins delivering events to sink.
func (a *Adapter) Open(sink platform.EventSink) error {
	a.registerHandlers(sink)

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	if a.session.State != nil && a.session.State.User != nil {
		a.botID = a.session.State.User.ID
	}
	a.logger.Info("🔌 Discord gateway connected")
	return nil
}

// Close shuts down the gateway session.
func (a *Adapter) Close() error {
	return a.session.Close()
}

// SendMessage implements platform.Client.
func (a *Adapter) SendMessage(_ context.Context, channelID, content string) (string, error) {
	msg, err := a.session.ChannelMessageSend(channelID, content)
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// AddReaction implements platform.Client.
func (a *Adapter) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	if err := a.session.MessageReactionAdd(channelID, messageID, emoji); err != nil {
		return fmt.Errorf("failed to add reaction %s: %w", emoji, err)
	}
	return nil
}

// CreateChannel implements platform.Client. The channel is created under the
// named category (when it exists) and hidden from @everyone.
func (a *Adapter) CreateChannel(_ context.Context, guildID string, spec platform.ChannelSpec) (string, error) {
	overwrites := []*discordgo.PermissionOverwrite{
		{
			ID:   guildID, // @everyone shares the guild ID
			Type: discordgo.PermissionOverwriteTypeRole,
			Deny: discordgo.PermissionViewChannel,
		},
	}
	for _, memberID := range spec.MemberIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    memberID,
			Type:  discordgo.PermissionOverwriteTypeMember,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory,
		})
	}
	for _, roleID := range spec.RoleIDs {
		overwrites = append(overwrites, &discordgo.PermissionOverwrite{
			ID:    roleID,
			Type:  discordgo.PermissionOverwriteTypeRole,
			Allow: discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory,
		})
	}

	data := discordgo.GuildChannelCreateData{
		Name:                 spec.Name,
		Type:                 discordgo.ChannelTypeGuildText,
		PermissionOverwrites: overwrites,
	}
	if spec.CategoryName != "" {
		if parentID, err := a.findCategory(guildID, spec.CategoryName); err == nil {
			data.ParentID = parentID
		} else {
			a.logger.Warn("category %q not found, creating channel at top level", spec.CategoryName)
		}
	}

	channel, err := a.session.GuildChannelCreateComplex(guildID, data)
	if err != nil {
		return "", fmt.Errorf("failed to create channel %s: %w", spec.Name, err)
	}
	return channel.ID, nil
}

// DeleteChannel implements platform.Client.
func (a *Adapter) DeleteChannel(_ context.Context, channelID string) error {
	_, err := a.session.ChannelDelete(channelID)
	if err != nil {
		if restErr, ok := err.(*discordgo.RESTError); ok && restErr.Response != nil && restErr.Response.StatusCode == 404 {
			return nil
		}
		return fmt.Errorf("failed to delete channel %s: %w", channelID, err)
	}
	return nil
}

// AllowChannelAccess implements platform.Client.
func (a *Adapter) AllowChannelAccess(_ context.Context, channelID, userID string) error {
	allow := int64(discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory)
	if err := a.session.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, allow, 0); err != nil {
		return fmt.Errorf("failed to grant %s access to channel %s: %w", userID, channelID, err)
	}
	return nil
}

// GrantRole implements platform.Client.
func (a *Adapter) GrantRole(_ context.Context, guildID, userID, roleID string) error {
	if err := a.session.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
		return fmt.Errorf("failed to grant role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// RevokeRole implements platform.Client.
func (a *Adapter) RevokeRole(_ context.Context, guildID, userID, roleID string) error {
	if err := a.session.GuildMemberRoleRemove(guildID, userID, roleID); err != nil {
		return fmt.Errorf("failed to revoke role %s from %s: %w", roleID, userID, err)
	}
	return nil
}

// FindMemberByName implements platform.Client using the member search
// endpoint with a case-insensitive nickname fallback.
func (a *Adapter) FindMemberByName(_ context.Context, guildID, name string) (*platform.Member, error) {
	name = strings.TrimSpace(strings.TrimPrefix(name, "@"))
	if name == "" {
		return nil, nil
	}

	members, err := a.session.GuildMembersSearch(guildID, name, 10)
	if err != nil {
		return nil, fmt.Errorf("member search failed for %q: %w", name, err)
	}

	lower := strings.ToLower(name)
	var fallback *discordgo.Member
	for _, m := range members {
		if m.User == nil {
			continue
		}
		if strings.EqualFold(m.User.Username, name) || strings.EqualFold(m.Nick, name) {
			return memberOf(m), nil
		}
		if fallback == nil && (strings.Contains(strings.ToLower(m.User.Username), lower) ||
			strings.Contains(strings.ToLower(m.Nick), lower)) {
			fallback = m
		}
	}
	if fallback != nil {
		return memberOf(fallback), nil
	}
	return nil, nil
}

// MessagesAfter implements platform.Client.
func (a *Adapter) MessagesAfter(_ context.Context, channelID, afterMessageID string, limit int) ([]proto.ChannelMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	raw, err := a.session.ChannelMessages(channelID, limit, "", afterMessageID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages from %s: %w", channelID, err)
	}

	messages := make([]proto.ChannelMessage, 0, len(raw))
	for _, m := range raw {
		if m.Author == nil {
			continue
		}
		messages = append(messages, proto.ChannelMessage{
			MessageID: m.ID,
			AuthorID:  m.Author.ID,
			FromBot:   m.Author.Bot,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		})
	}

	// The API returns newest first; callers want chronological order.
	sort.Slice(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// SendDirectMessage implements platform.Client.
func (a *Adapter) SendDirectMessage(_ context.Context, userID, content string) error {
	dm, err := a.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel for %s: %w", userID, err)
	}
	if _, err := a.session.ChannelMessageSend(dm.ID, content); err != nil {
		return fmt.Errorf("failed to DM %s: %w", userID, err)
	}
	return nil
}

// KickMember implements platform.Client.
func (a *Adapter) KickMember(_ context.Context, guildID, userID, reason string) error {
	if err := a.session.GuildMemberDeleteWithReason(guildID, userID, reason); err != nil {
		return fmt.Errorf("failed to kick %s: %w", userID, err)
	}
	return nil
}

func (a *Adapter) findCategory(guildID, name string) (string, error) {
	channels, err := a.session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("failed to list channels: %w", err)
	}
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildCategory && strings.EqualFold(ch.Name, name) {
			return ch.ID, nil
		}
	}
	return "", fmt.Errorf("category %q not found", name)
}

func memberOf(m *discordgo.Member) *platform.Member {
	username := m.User.Username
	if m.Nick != "" {
		username = m.Nick
	}
	return &platform.Member{
		ID:       m.User.ID,
		Username: username,
		Mention:  m.User.Mention(),
	}
}

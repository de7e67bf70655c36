package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// registerHandlers converts gateway events into normalized proto events.
// The bot's own messages and reactions are filtered out at this layer.
func (a *Adapter) registerHandlers(sink platform.EventSink) {
	a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.User == nil || m.User.Bot {
			return
		}
		createdAt, _ := discordgo.SnowflakeTimestamp(m.User.ID)
		sink(&proto.Event{
			Kind:      proto.EventMemberJoined,
			GuildID:   m.GuildID,
			UserID:    m.User.ID,
			Username:  m.User.Username,
			JoinedAt:  m.JoinedAt,
			CreatedAt: createdAt,
			Timestamp: time.Now().UTC(),
		})
	})

	a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
		if m.User == nil || m.User.Bot {
			return
		}
		sink(&proto.Event{
			Kind:      proto.EventMemberLeft,
			GuildID:   m.GuildID,
			UserID:    m.User.ID,
			Username:  m.User.Username,
			Timestamp: time.Now().UTC(),
		})
	})

	a.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.ID == a.botID {
			return
		}
		sink(&proto.Event{
			Kind:      proto.EventMessage,
			GuildID:   m.GuildID,
			UserID:    m.Author.ID,
			Username:  m.Author.Username,
			ChannelID: m.ChannelID,
			MessageID: m.ID,
			Content:   m.Content,
			FromBot:   m.Author.Bot,
			Timestamp: m.Timestamp,
		})
	})

	a.session.AddHandler(func(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
		if r.UserID == a.botID {
			return
		}
		sink(&proto.Event{
			Kind:      proto.EventReaction,
			GuildID:   r.GuildID,
			UserID:    r.UserID,
			ChannelID: r.ChannelID,
			MessageID: r.MessageID,
			Emoji:     r.Emoji.Name,
			Timestamp: time.Now().UTC(),
		})
	})
}

package testkit

import (
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// Event builders for dispatcher and gate tests.

// JoinEvent builds a member join with the given account age.
func JoinEvent(guildID, userID, username string, accountAge time.Duration) *proto.Event {
	now := time.Now()
	return &proto.Event{
		Kind:      proto.EventMemberJoined,
		GuildID:   guildID,
		UserID:    userID,
		Username:  username,
		JoinedAt:  now,
		CreatedAt: now.Add(-accountAge),
		Timestamp: now,
	}
}

// LeaveEvent builds a member departure.
func LeaveEvent(guildID, userID, username string) *proto.Event {
	return &proto.Event{
		Kind:      proto.EventMemberLeft,
		GuildID:   guildID,
		UserID:    userID,
		Username:  username,
		Timestamp: time.Now(),
	}
}

// MessageEvent builds an inbound user message.
func MessageEvent(guildID, userID, channelID, messageID, content string) *proto.Event {
	return &proto.Event{
		Kind:      proto.EventMessage,
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		MessageID: messageID,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// ReactionEvent builds a reaction add on a message.
func ReactionEvent(guildID, userID, channelID, messageID, emoji string) *proto.Event {
	return &proto.Event{
		Kind:      proto.EventReaction,
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		MessageID: messageID,
		Emoji:     emoji,
		Timestamp: time.Now(),
	}
}

// Package testkit provides fakes and builders shared by the package tests:
// a recording platform client, a scripted classifier, and event builders.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// SentMessage records one SendMessage call.
type SentMessage struct {
	ChannelID string
	Content   string
	MessageID string
}

// RoleChange records one role grant or revocation.
type RoleChange struct {
	UserID  string
	RoleID  string
	Granted bool
}

// FakePlatform is an in-memory platform.Client that records every call.
// Safe for concurrent use.
type FakePlatform struct {
	mu sync.Mutex

	Messages        []SentMessage
	Reactions       []string // "channel/message/emoji"
	CreatedChannels []platform.ChannelSpec
	DeletedChannels []string
	AccessGrants    []string // "channel/user"
	RoleChanges     []RoleChange
	DirectMessages  []SentMessage // ChannelID holds the user id
	Kicked          []string      // "user/reason"

	Members     map[string]*platform.Member // by name
	ChannelLogs map[string][]proto.ChannelMessage

	// SendErr, when set, fails every SendMessage call.
	SendErr error

	nextMessageID int
	nextChannelID int
}

// NewFakePlatform creates an empty fake.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Members:     make(map[string]*platform.Member),
		ChannelLogs: make(map[string][]proto.ChannelMessage),
	}
}

// SendMessage implements platform.Client.
func (f *FakePlatform) SendMessage(_ context.Context, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SendErr != nil {
		return "", f.SendErr
	}
	f.nextMessageID++
	id := fmt.Sprintf("msg-%d", f.nextMessageID)
	f.Messages = append(f.Messages, SentMessage{ChannelID: channelID, Content: content, MessageID: id})
	return id, nil
}

// AddReaction implements platform.Client.
func (f *FakePlatform) AddReaction(_ context.Context, channelID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reactions = append(f.Reactions, channelID+"/"+messageID+"/"+emoji)
	return nil
}

// CreateChannel implements platform.Client.
func (f *FakePlatform) CreateChannel(_ context.Context, _ string, spec platform.ChannelSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChannelID++
	f.CreatedChannels = append(f.CreatedChannels, spec)
	return fmt.Sprintf("chan-%d", f.nextChannelID), nil
}

// DeleteChannel implements platform.Client.
func (f *FakePlatform) DeleteChannel(_ context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeletedChannels = append(f.DeletedChannels, channelID)
	return nil
}

// AllowChannelAccess implements platform.Client.
func (f *FakePlatform) AllowChannelAccess(_ context.Context, channelID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AccessGrants = append(f.AccessGrants, channelID+"/"+userID)
	return nil
}

// GrantRole implements platform.Client.
func (f *FakePlatform) GrantRole(_ context.Context, _, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RoleChanges = append(f.RoleChanges, RoleChange{UserID: userID, RoleID: roleID, Granted: true})
	return nil
}

// RevokeRole implements platform.Client.
func (f *FakePlatform) RevokeRole(_ context.Context, _, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RoleChanges = append(f.RoleChanges, RoleChange{UserID: userID, RoleID: roleID, Granted: false})
	return nil
}

// FindMemberByName implements platform.Client.
func (f *FakePlatform) FindMemberByName(_ context.Context, _, name string) (*platform.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Members[name], nil
}

// MessagesAfter implements platform.Client.
func (f *FakePlatform) MessagesAfter(_ context.Context, channelID, afterMessageID string, _ int) ([]proto.ChannelMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	log := f.ChannelLogs[channelID]
	if afterMessageID == "" {
		return append([]proto.ChannelMessage(nil), log...), nil
	}
	for i, m := range log {
		if m.MessageID == afterMessageID {
			return append([]proto.ChannelMessage(nil), log[i+1:]...), nil
		}
	}
	return append([]proto.ChannelMessage(nil), log...), nil
}

// SendDirectMessage implements platform.Client.
func (f *FakePlatform) SendDirectMessage(_ context.Context, userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DirectMessages = append(f.DirectMessages, SentMessage{ChannelID: userID, Content: content})
	return nil
}

// KickMember implements platform.Client.
func (f *FakePlatform) KickMember(_ context.Context, _, userID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Kicked = append(f.Kicked, userID+"/"+reason)
	return nil
}

// LastMessage returns the most recently sent message, or nil.
func (f *FakePlatform) LastMessage() *SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.Messages) == 0 {
		return nil
	}
	m := f.Messages[len(f.Messages)-1]
	return &m
}

// MessagesTo returns all messages sent to a channel.
func (f *FakePlatform) MessagesTo(channelID string) []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []SentMessage
	for _, m := range f.Messages {
		if m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

package effect

import (
	"context"
	"fmt"
)

// SendMessageEffect posts a message to a channel.
type SendMessageEffect struct {
	ChannelID string
	Content   string
	// RecordAsTurn marks the message for persistence in the conversation
	// turn log by the dispatcher.
	RecordAsTurn bool
	// TurnUserID is the applicant whose conversation this turn belongs to
	// when RecordAsTurn is set.
	TurnUserID string
}

// SendMessageResult carries the platform message id of the sent message.
type SendMessageResult struct {
	MessageID string
}

// Execute implements Effect.
func (e *SendMessageEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	messageID, err := runtime.SendMessage(ctx, e.ChannelID, e.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	runtime.Debug("💬 sent message %s to channel %s", messageID, e.ChannelID)
	return &SendMessageResult{MessageID: messageID}, nil
}

// Type implements Effect.
func (e *SendMessageEffect) Type() string { return "send_message" }

// ReactionPromptEffect posts a message and seeds it with reaction choices so
// the recipient can answer with a single click.
type ReactionPromptEffect struct {
	ChannelID string
	Content   string
	Emojis    []string
}

// Execute implements Effect.
func (e *ReactionPromptEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	messageID, err := runtime.SendMessage(ctx, e.ChannelID, e.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to send reaction prompt: %w", err)
	}

	for _, emoji := range e.Emojis {
		if err := runtime.AddReaction(ctx, e.ChannelID, messageID, emoji); err != nil {
			// A failed seed reaction leaves the prompt usable; the recipient
			// can still react manually.
			runtime.Error("failed to seed reaction %s on %s: %v", emoji, messageID, err)
		}
	}

	runtime.Debug("👍 reaction prompt %s posted to channel %s", messageID, e.ChannelID)
	return &SendMessageResult{MessageID: messageID}, nil
}

// Type implements Effect.
func (e *ReactionPromptEffect) Type() string { return "reaction_prompt" }

// StaffNoticeEffect posts a message to the configured staff channel.
type StaffNoticeEffect struct {
	Content string
}

// Execute implements Effect.
func (e *StaffNoticeEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	channelID := runtime.StaffChannelID()
	if channelID == "" {
		runtime.Error("staff notice dropped, no staff channel configured")
		return nil, nil
	}

	messageID, err := runtime.SendMessage(ctx, channelID, e.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to send staff notice: %w", err)
	}
	runtime.Info("📣 staff notice posted")
	return &SendMessageResult{MessageID: messageID}, nil
}

// Type implements Effect.
func (e *StaffNoticeEffect) Type() string { return "staff_notice" }

// DirectMessageEffect delivers a DM to a user. Failure is logged and
// swallowed: blocked DMs must not abort the surrounding workflow.
type DirectMessageEffect struct {
	UserID  string
	Content string
}

// Execute implements Effect.
func (e *DirectMessageEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	if err := runtime.SendDirectMessage(ctx, e.UserID, e.Content); err != nil {
		runtime.Error("DM to %s failed: %v", e.UserID, err)
		return nil, nil
	}
	runtime.Debug("💬 DM delivered to %s", e.UserID)
	return nil, nil
}

// Type implements Effect.
func (e *DirectMessageEffect) Type() string { return "direct_message" }

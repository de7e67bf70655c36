// Package rehydrate turns raw inbound channel messages into dialogue turns.
// It reconciles persisted conversation history with the channel's message
// log, so a message that arrived while the recruiter was down is handled
// exactly once after restart.
package rehydrate

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/contextmgr"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/dialogue"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
)

const (
	// backfillLimit caps how many channel messages one rehydration pulls.
	backfillLimit = 50
	// dedupWindow covers the gap between a live waiter consuming a message
	// and the persisted cursor catching up.
	dedupWindow = 5 * time.Minute
)

// ChannelReader reads a channel's message log, oldest first.
type ChannelReader interface {
	MessagesAfter(ctx context.Context, channelID, afterMessageID string, limit int) ([]proto.ChannelMessage, error)
}

// Result is one successfully processed turn: the applicant as loaded and the
// engine's decision. The caller persists the outcome and runs its effects.
type Result struct {
	App            *persistence.Applicant
	Classification *proto.Classification
	Outcome        *dialogue.Outcome
}

// Service processes inbound messages for tracked processing channels.
type Service struct {
	ops        *persistence.DatabaseOperations
	reader     ChannelReader
	classifier classifier.Client
	engine     *dialogue.Engine
	logger     *logx.Logger

	mu   sync.Mutex
	seen map[string]time.Time // external message id -> first seen
}

// NewService creates a rehydration service.
func NewService(ops *persistence.DatabaseOperations, reader ChannelReader, cls classifier.Client, engine *dialogue.Engine) *Service {
	return &Service{
		ops:        ops,
		reader:     reader,
		classifier: cls,
		engine:     engine,
		logger:     logx.NewLogger("rehydrate"),
		seen:       make(map[string]time.Time),
	}
}

// OnInboundMessage handles one message event. It returns (nil, nil) for
// messages the dialogue loop does not own: untracked channels, other users
// chatting in a processing channel, duplicates, and steps handled by a
// sub-workflow. A message on a parked IDLE conversation re-opens it.
func (s *Service) OnInboundMessage(ctx context.Context, ev *proto.Event) (*Result, error) {
	app, err := s.ops.GetApplicantByChannel(ev.ChannelID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if app.UserID != ev.UserID {
		return nil, nil
	}
	if app.Conversation.CurrentStep.SubWorkflow() {
		return nil, nil
	}
	if ev.MessageID == app.Conversation.LastProcessedMessageID {
		return nil, nil
	}
	if !s.markSeen(ev.MessageID) {
		return nil, nil
	}

	if err := s.backfill(ctx, app, ev.MessageID); err != nil {
		s.logger.Warn("backfill for %s failed: %v", app.UserID, err)
	}

	inserted, err := s.ops.AppendTurn(&persistence.Turn{
		ID:                utils.NewID(),
		UserID:            app.UserID,
		ChannelID:         ev.ChannelID,
		Author:            proto.TurnAuthorUser,
		Content:           ev.Content,
		ExternalMessageID: ev.MessageID,
		CreatedAt:         ev.Timestamp.UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Another path already recorded this message.
		return nil, nil
	}

	won, err := s.ops.AdvanceProcessedMessage(app.UserID, app.Conversation.LastProcessedMessageID, ev.MessageID)
	if err != nil {
		return nil, err
	}
	if !won {
		s.logger.Info("lost cursor race for %s on %s, dropping turn", app.UserID, ev.MessageID)
		return nil, nil
	}
	app.Conversation.LastProcessedMessageID = ev.MessageID
	_ = s.ops.TouchActivity(app.UserID, ev.Timestamp.UTC())

	cls, err := s.classifier.Classify(ctx, ev.Content, s.history(app.UserID, ev.MessageID))
	if err != nil {
		// The classifier degrades internally; a hard error still must not
		// drop the turn.
		s.logger.Error("classify for %s failed: %v", app.UserID, err)
		cls = &proto.Classification{
			Intent:                proto.IntentUnclear,
			RequiresClarification: true,
			Degraded:              true,
			DegradedReason:        err.Error(),
		}
	}

	if err := s.ops.RecordClassifierOutput(ev.MessageID, RawClassification(cls)); err != nil {
		s.logger.Warn("classifier output for %s not recorded: %v", ev.MessageID, err)
	}

	outcome, err := s.engine.Advance(ctx, app, ev.Content, cls)
	if err != nil {
		return nil, err
	}
	return &Result{App: app, Classification: cls, Outcome: outcome}, nil
}

// markSeen records the message id in the dedup window. Returns false when the
// id was already seen recently.
func (s *Service) markSeen(messageID string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, at := range s.seen {
		if now.Sub(at) > dedupWindow {
			delete(s.seen, id)
		}
	}
	if _, dup := s.seen[messageID]; dup {
		return false
	}
	s.seen[messageID] = now
	return true
}

// backfill records channel messages sent after the processed cursor that
// never made it into the turn log, typically while the recruiter was down.
// The triggering message itself is appended by the caller.
func (s *Service) backfill(ctx context.Context, app *persistence.Applicant, currentMessageID string) error {
	msgs, err := s.reader.MessagesAfter(ctx, app.ChannelID, app.Conversation.LastProcessedMessageID, backfillLimit)
	if err != nil {
		return err
	}

	for _, m := range msgs {
		if m.MessageID == currentMessageID {
			continue
		}
		author := proto.TurnAuthorUser
		if m.FromBot {
			author = proto.TurnAuthorAgent
		} else if m.AuthorID != app.UserID {
			continue
		}
		inserted, err := s.ops.AppendTurn(&persistence.Turn{
			ID:                utils.NewID(),
			UserID:            app.UserID,
			ChannelID:         app.ChannelID,
			Author:            author,
			Content:           m.Content,
			ExternalMessageID: m.MessageID,
			CreatedAt:         m.Timestamp.UTC(),
		})
		if err != nil {
			return err
		}
		if inserted {
			s.logger.Info("💧 backfilled %s message %s for %s", author, m.MessageID, app.UserID)
		}
	}
	return nil
}

// history loads the persisted turns for the classifier, excluding the
// message being processed.
func (s *Service) history(userID, currentMessageID string) []proto.HistoryMessage {
	turns, err := s.ops.GetRecentTurns(userID, contextmgr.DefaultMaxTurns)
	if err != nil {
		s.logger.Warn("history load for %s failed: %v", userID, err)
		return nil
	}
	trimmed := turns[:0:0]
	for _, t := range turns {
		if t.ExternalMessageID == currentMessageID {
			continue
		}
		trimmed = append(trimmed, t)
	}
	return contextmgr.FromTurns(trimmed)
}

// RawClassification marshals a classification for the turn log.
func RawClassification(cls *proto.Classification) string {
	if cls == nil {
		return ""
	}
	b, err := json.Marshal(cls)
	if err != nil {
		return ""
	}
	return string(b)
}

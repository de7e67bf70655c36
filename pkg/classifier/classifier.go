// Package classifier turns raw applicant messages into structured intent
// classifications using an LLM completion client behind a middleware chain.
//
// The classifier never fails a turn: any provider error, rate limit, or
// malformed response downgrades to a degraded UNCLEAR_INTENT classification
// so the dialogue engine can fall back to scripted clarification.
package classifier

import (
	"context"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/contextmgr"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// Client classifies one inbound message given bounded conversation history.
type Client interface {
	Classify(ctx context.Context, message string, history []proto.HistoryMessage) (*proto.Classification, error)
}

// Service is the production classifier implementation.
type Service struct {
	llm     llm.Client
	history *contextmgr.Manager
	profile *config.GuildProfile
	cfg     config.ClassifierConfig
	logger  *logx.Logger
}

// NewService creates a classifier service. The completion client should
// already carry the resilience middleware chain.
func NewService(client llm.Client, history *contextmgr.Manager, profile *config.GuildProfile, cfg config.ClassifierConfig) *Service {
	return &Service{
		llm:     client,
		history: history,
		profile: profile,
		cfg:     cfg,
		logger:  logx.NewLogger("classifier"),
	}
}

// Classify implements Client. The returned error is always nil; failures are
// reported through the Degraded flag on the classification so callers have a
// single code path.
func (s *Service) Classify(ctx context.Context, message string, history []proto.HistoryMessage) (*proto.Classification, error) {
	messages := s.buildMessages(message, history)

	req := llm.NewCompletionRequest(messages)
	if s.cfg.MaxTokens > 0 {
		req.MaxTokens = s.cfg.MaxTokens
	}
	req.Temperature = float32(s.cfg.Temperature)

	resp, err := s.llm.Complete(ctx, req)
	if err != nil {
		s.logger.Warn("completion failed, degrading to fallback: %v", err)
		return Fallback("completion failed"), nil
	}

	classification, err := ParseClassification(resp.Content)
	if err != nil {
		s.logger.Warn("unparseable classifier output, degrading to fallback: %v", err)
		return Fallback("malformed classifier output"), nil
	}

	s.logger.Debug("classified intent=%s confidence=%.2f clarify=%v",
		classification.Intent, classification.Confidence, classification.RequiresClarification)
	return classification, nil
}

func (s *Service) buildMessages(message string, history []proto.HistoryMessage) []llm.CompletionMessage {
	bounded := history
	if s.history != nil {
		bounded = s.history.Bound(history)
	}

	messages := make([]llm.CompletionMessage, 0, len(bounded)+2)
	messages = append(messages, llm.NewSystemMessage(SystemPrompt(s.profile)))
	for i := range bounded {
		if bounded[i].Role == "assistant" {
			messages = append(messages, llm.NewAssistantMessage(bounded[i].Content))
		} else {
			messages = append(messages, llm.NewUserMessage(bounded[i].Content))
		}
	}
	messages = append(messages, llm.NewUserMessage(message))
	return messages
}

// Fallback produces the degraded classification used when the LLM path is
// unavailable. Degraded classifications never count against the applicant's
// clarification attempts.
func Fallback(reason string) *proto.Classification {
	return &proto.Classification{
		Intent:                proto.IntentUnclear,
		Entities:              map[string]string{},
		SuggestedReply:        "",
		Confidence:            0,
		RequiresClarification: true,
		Degraded:              true,
		DegradedReason:        reason,
	}
}

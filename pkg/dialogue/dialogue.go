// Package dialogue implements the conversation policy: given an applicant's
// persisted state and a classified message, it decides the next step, the
// reply window to arm, and the side effects to run. The engine itself never
// touches the platform or the database.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
)

// MemberFinder resolves guild members by name, used to locate vouchers.
type MemberFinder interface {
	FindMemberByName(ctx context.Context, guildID, name string) (*platform.Member, error)
}

// VouchRequest hands a resolved voucher off to the vouch coordinator.
type VouchRequest struct {
	VoucherID      string
	VoucherName    string
	VoucherMention string
	OriginalText   string
}

// TicketRequest asks the caller to open an application ticket channel.
type TicketRequest struct {
	ChannelName string
}

// Outcome is the engine's decision for one turn. The caller persists the new
// state before arming the waiter, then executes the effects in order.
type Outcome struct {
	NextStep     proto.Step
	Waiter       proto.WaiterKind // WaiterNone when no reply window is armed
	Deadline     time.Time        // zero iff Waiter is WaiterNone
	AttemptCount int
	// DegradedCount is the consecutive classifier-failure streak; any turn
	// with a real classification resets it.
	DegradedCount int
	LastIntent    proto.Intent
	Escalated    bool
	Vouch        *VouchRequest
	Ticket       *TicketRequest
	Effects      []effect.Effect
}

// Engine evaluates conversation policy.
type Engine struct {
	renderer *templates.Renderer
	cfg      config.Config
	finder   MemberFinder
	logger   *logx.Logger
}

// NewEngine creates a dialogue engine.
func NewEngine(renderer *templates.Renderer, cfg config.Config, finder MemberFinder) *Engine {
	return &Engine{
		renderer: renderer,
		cfg:      cfg,
		finder:   finder,
		logger:   logx.NewLogger("dialogue"),
	}
}

// Advance evaluates one classified user message against the applicant's
// current state. message is the raw user text; classification may be degraded
// but never nil (callers use the classifier fallback).
func (e *Engine) Advance(ctx context.Context, app *persistence.Applicant, message string, cls *proto.Classification) (*Outcome, error) {
	step := app.Conversation.CurrentStep
	if step.SubWorkflow() {
		return nil, &proto.TransitionError{From: step, To: step}
	}
	if cls == nil {
		cls = &proto.Classification{
			Intent:                proto.IntentUnclear,
			RequiresClarification: true,
			Degraded:              true,
		}
	}

	outcome, err := e.decide(ctx, app, message, cls)
	if err != nil {
		return nil, err
	}
	if err := validateTransition(step, outcome.NextStep); err != nil {
		return nil, err
	}

	e.logger.Debug("advance %s: %s -> %s (intent=%s attempts=%d)",
		app.UserID, step, outcome.NextStep, outcome.LastIntent, outcome.AttemptCount)
	return outcome, nil
}

func (e *Engine) decide(ctx context.Context, app *persistence.Applicant, message string, cls *proto.Classification) (*Outcome, error) {
	if cls.Degraded {
		return e.degradedTurn(app)
	}

	// A visitor already asked to name their voucher; read the answer even if
	// the classifier labeled it something vague.
	if app.Conversation.CurrentStep == proto.StepAwaitingVouchMention {
		if name := voucherName(message, cls); name != "" {
			return e.resolveVouch(ctx, app, name, message, cls)
		}
	}

	unclear := cls.Intent == proto.IntentUnclear || cls.RequiresClarification
	if unclear {
		return e.clarifyOrEscalate(app, cls)
	}

	switch cls.Intent {
	case proto.IntentGuildApplication:
		return e.applicationTurn(app, cls)
	case proto.IntentCommunityVouch:
		name := voucherName(message, cls)
		if name == "" {
			return e.askForVoucher(app, cls)
		}
		return e.resolveVouch(ctx, app, name, message, cls)
	case proto.IntentEndConversation:
		return e.closeConversation(app, cls)
	case proto.IntentRequestHuman:
		return e.escalate(app, cls.Intent, "visitor asked for a human")
	default:
		// SOCIAL_GREETING, GENERAL_QUESTION, OTHER: answer and keep listening.
		return e.generalTurn(app, cls)
	}
}

// HandleTimeout produces the outcome for a lapsed reply window. It runs
// without classifier input: a gentle nudge, then the conversation parks on
// IDLE until the visitor writes again.
func (e *Engine) HandleTimeout(app *persistence.Applicant, kind proto.WaiterKind) (*Outcome, error) {
	if err := validateTransition(app.Conversation.CurrentStep, proto.StepIdle); err != nil {
		return nil, err
	}

	content, err := e.render(templates.StillThereTemplate, app, nil)
	if err != nil {
		return nil, err
	}

	e.logger.Info("⏰ %s waiter for %s lapsed, parking conversation", kind, app.UserID)
	return &Outcome{
		NextStep:     proto.StepIdle,
		Waiter:       proto.WaiterNone,
		AttemptCount: 0,
		LastIntent:   app.Conversation.LastIntent,
		Effects: []effect.Effect{
			&effect.SendMessageEffect{
				ChannelID:    app.ChannelID,
				Content:      content,
				RecordAsTurn: true,
				TurnUserID:   app.UserID,
			},
		},
	}, nil
}

func (e *Engine) degradedTurn(app *persistence.Applicant) (*Outcome, error) {
	// Degraded turns never consume a clarification attempt: the confusion is
	// ours, not the visitor's. They carry their own streak instead, so a
	// classifier that stays down hands the visitor to a human rather than
	// apologizing forever.
	degraded := app.Conversation.DegradedCount + 1
	if degraded >= e.cfg.MaxClarificationAttempts {
		return e.escalate(app, proto.IntentUnclear,
			fmt.Sprintf("classifier unavailable for %d consecutive turns", degraded))
	}

	content, err := e.render(templates.DegradedApologyTemplate, app, nil)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		NextStep:      proto.StepAwaitingClarification,
		Waiter:        proto.WaiterClarification,
		Deadline:      time.Now().Add(e.cfg.Timeouts.Clarification()),
		AttemptCount:  app.Conversation.AttemptCount,
		DegradedCount: degraded,
		LastIntent:    proto.IntentUnclear,
		Effects:       []effect.Effect{e.reply(app, content)},
	}, nil
}

func (e *Engine) clarifyOrEscalate(app *persistence.Applicant, cls *proto.Classification) (*Outcome, error) {
	if app.Conversation.AttemptCount >= e.cfg.MaxClarificationAttempts {
		return e.escalate(app, proto.IntentUnclear, fmt.Sprintf("still unclear after %d clarification attempts", app.Conversation.AttemptCount))
	}

	content := cls.SuggestedReply
	if content == "" {
		var err error
		content, err = e.render(templates.ClarificationTemplate, app, nil)
		if err != nil {
			return nil, err
		}
	}

	return &Outcome{
		NextStep:     proto.StepAwaitingClarification,
		Waiter:       proto.WaiterClarification,
		Deadline:     time.Now().Add(e.cfg.Timeouts.Clarification()),
		AttemptCount: app.Conversation.AttemptCount + 1,
		LastIntent:   proto.IntentUnclear,
		Effects:      []effect.Effect{e.reply(app, content)},
	}, nil
}

func (e *Engine) escalate(app *persistence.Applicant, intent proto.Intent, reason string) (*Outcome, error) {
	userMsg, err := e.render(templates.EscalationTemplate, app, nil)
	if err != nil {
		return nil, err
	}
	staffMsg, err := e.render(templates.StaffEscalationTemplate, app, &templates.MessageData{
		StaffMention: roleMention(e.cfg.Roles.Recruiter),
		Reason:       reason,
		ChannelRef:   channelRef(app.ChannelID),
	})
	if err != nil {
		return nil, err
	}

	return &Outcome{
		NextStep:     proto.StepIdle,
		Waiter:       proto.WaiterNone,
		AttemptCount: 0,
		LastIntent:   intent,
		Escalated:    true,
		Effects: []effect.Effect{
			e.reply(app, userMsg),
			&effect.StaffNoticeEffect{Content: staffMsg},
		},
	}, nil
}

func (e *Engine) applicationTurn(app *persistence.Applicant, cls *proto.Classification) (*Outcome, error) {
	// A repeated application intent, or an explicit agreement entity, is the
	// confirmation that opens the ticket.
	confirmed := app.Conversation.LastIntent == proto.IntentGuildApplication ||
		isAffirmative(cls.Entity(proto.EntityApplicationAgree))
	if confirmed {
		return &Outcome{
			NextStep:     proto.StepApplicationActive,
			Waiter:       proto.WaiterNone,
			AttemptCount: 0,
			LastIntent:   proto.IntentGuildApplication,
			Ticket:       &TicketRequest{ChannelName: utils.TicketChannelName(app.Username)},
		}, nil
	}

	content := cls.SuggestedReply
	if content == "" {
		var err error
		content, err = e.render(templates.ApplicationIntroTemplate, app, nil)
		if err != nil {
			return nil, err
		}
	}

	return &Outcome{
		NextStep:     proto.StepGeneralListening,
		Waiter:       proto.WaiterGeneral,
		Deadline:     time.Now().Add(e.cfg.Timeouts.General()),
		AttemptCount: 0,
		LastIntent:   proto.IntentGuildApplication,
		Effects:      []effect.Effect{e.reply(app, content)},
	}, nil
}

func (e *Engine) askForVoucher(app *persistence.Applicant, cls *proto.Classification) (*Outcome, error) {
	content := cls.SuggestedReply
	if content == "" {
		var err error
		content, err = e.render(templates.VouchMentionTemplate, app, nil)
		if err != nil {
			return nil, err
		}
	}

	return &Outcome{
		NextStep:     proto.StepAwaitingVouchMention,
		Waiter:       proto.WaiterVouchMention,
		Deadline:     time.Now().Add(e.cfg.Timeouts.VouchMention()),
		AttemptCount: 0,
		LastIntent:   proto.IntentCommunityVouch,
		Effects:      []effect.Effect{e.reply(app, content)},
	}, nil
}

func (e *Engine) resolveVouch(ctx context.Context, app *persistence.Applicant, name, message string, cls *proto.Classification) (*Outcome, error) {
	member, err := e.finder.FindMemberByName(ctx, e.cfg.Guild.ID, name)
	if err != nil {
		e.logger.Warn("voucher lookup for %q failed: %v", name, err)
	}
	if member == nil || member.ID == app.UserID {
		// Unknown (or self-nominated) voucher: ask again instead of failing.
		content := fmt.Sprintf("I couldn't find **%s** here. Could you double-check the name?", name)
		return &Outcome{
			NextStep:     proto.StepAwaitingVouchMention,
			Waiter:       proto.WaiterVouchMention,
			Deadline:     time.Now().Add(e.cfg.Timeouts.VouchMention()),
			AttemptCount: app.Conversation.AttemptCount,
			LastIntent:   proto.IntentCommunityVouch,
			Effects:      []effect.Effect{e.reply(app, content)},
		}, nil
	}

	original := cls.Entity(proto.EntityOriginalVouch)
	if original == "" {
		original = message
	}

	return &Outcome{
		NextStep:     proto.StepVouchActive,
		Waiter:       proto.WaiterNone,
		AttemptCount: 0,
		LastIntent:   proto.IntentCommunityVouch,
		Vouch: &VouchRequest{
			VoucherID:      member.ID,
			VoucherName:    member.Username,
			VoucherMention: member.Mention,
			OriginalText:   original,
		},
	}, nil
}

func (e *Engine) closeConversation(app *persistence.Applicant, cls *proto.Classification) (*Outcome, error) {
	content := cls.SuggestedReply
	if content == "" {
		var err error
		content, err = e.render(templates.ConversationClosedTemplate, app, nil)
		if err != nil {
			return nil, err
		}
	}

	return &Outcome{
		NextStep:     proto.StepIdle,
		Waiter:       proto.WaiterNone,
		AttemptCount: 0,
		LastIntent:   proto.IntentEndConversation,
		Effects:      []effect.Effect{e.reply(app, content)},
	}, nil
}

func (e *Engine) generalTurn(app *persistence.Applicant, cls *proto.Classification) (*Outcome, error) {
	content := cls.SuggestedReply
	if content == "" {
		content = "Happy to help! Was there anything else you wanted to know?"
	}

	return &Outcome{
		NextStep:     proto.StepGeneralListening,
		Waiter:       proto.WaiterGeneral,
		Deadline:     time.Now().Add(e.cfg.Timeouts.General()),
		AttemptCount: 0,
		LastIntent:   cls.Intent,
		Effects:      []effect.Effect{e.reply(app, content)},
	}, nil
}

func (e *Engine) reply(app *persistence.Applicant, content string) effect.Effect {
	return &effect.SendMessageEffect{
		ChannelID:    app.ChannelID,
		Content:      content,
		RecordAsTurn: true,
		TurnUserID:   app.UserID,
	}
}

func (e *Engine) render(name templates.MessageTemplate, app *persistence.Applicant, data *templates.MessageData) (string, error) {
	if data == nil {
		data = &templates.MessageData{}
	}
	if data.Username == "" {
		data.Username = app.Username
	}
	if data.Mention == "" {
		data.Mention = userMention(app.UserID)
	}
	if data.GuildName == "" {
		data.GuildName = e.cfg.Guild.Name
	}
	return e.renderer.Render(name, data)
}

// voucherName extracts the voucher's name from entities, falling back to the
// raw message when the visitor answered with just a name.
func voucherName(message string, cls *proto.Classification) string {
	if name := strings.TrimSpace(cls.Entity(proto.EntityVouchPersonName)); name != "" {
		return name
	}
	trimmed := strings.TrimSpace(message)
	if trimmed != "" && len(trimmed) <= 32 && !strings.ContainsRune(trimmed, ' ') {
		return strings.TrimPrefix(trimmed, "@")
	}
	return ""
}

func isAffirmative(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

func userMention(userID string) string { return "<@" + userID + ">" }

func roleMention(roleID string) string {
	if roleID == "" {
		return ""
	}
	return "<@&" + roleID + ">"
}

func channelRef(channelID string) string {
	if channelID == "" {
		return ""
	}
	return "<#" + channelID + ">"
}

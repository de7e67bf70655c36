// Package vouch coordinates the two-party vouch confirmation: a visitor
// names a member, the member answers with a reaction, and exactly one
// outcome (accept, decline, or timeout) resolves the request.
package vouch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/waiter"
)

// Reaction emojis the voucher can answer with.
const (
	EmojiAccept  = "👍"
	EmojiDecline = "👎"
)

// Request carries a resolved voucher into the coordinator.
type Request struct {
	VoucherID      string
	VoucherName    string
	VoucherMention string
}

// session is the in-memory binding for one pending vouch. Persisted state is
// authoritative; the session only speeds up prompt-message matching and
// remembers the voucher's display name.
type session struct {
	subjectID   string
	voucherID   string
	voucherName string
	channelID   string
	messageID   string
}

// Coordinator runs vouch confirmations.
type Coordinator struct {
	runtime  effect.Runtime
	ops      *persistence.DatabaseOperations
	waiters  *waiter.Registry
	renderer *templates.Renderer
	cfg      config.Config
	logger   *logx.Logger

	mu        sync.Mutex
	pending   map[string]*session // by subject user id
	byMessage map[string]string   // prompt message id -> subject user id
}

// NewCoordinator creates a vouch coordinator.
func NewCoordinator(runtime effect.Runtime, ops *persistence.DatabaseOperations, waiters *waiter.Registry, renderer *templates.Renderer, cfg config.Config) *Coordinator {
	return &Coordinator{
		runtime:   runtime,
		ops:       ops,
		waiters:   waiters,
		renderer:  renderer,
		cfg:       cfg,
		logger:    logx.NewLogger("vouch"),
		pending:   make(map[string]*session),
		byMessage: make(map[string]string),
	}
}

// Initiate opens a vouch confirmation in the subject's processing channel:
// the voucher gets channel access and a reaction prompt with a deadline.
// State is persisted before the reply window is armed.
func (c *Coordinator) Initiate(ctx context.Context, app *persistence.Applicant, req *Request) error {
	if _, err := (&effect.AllowChannelAccessEffect{
		ChannelID: app.ChannelID,
		UserID:    req.VoucherID,
	}).Execute(ctx, c.runtime); err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.Timeouts.VouchReaction())
	prompt, err := c.renderer.Render(templates.VouchPromptTemplate, &templates.MessageData{
		VoucherMention: req.VoucherMention,
		CandidateName:  app.Username,
		DeadlineHours:  int(c.cfg.Timeouts.VouchReaction().Hours()),
	})
	if err != nil {
		return err
	}

	result, err := (&effect.ReactionPromptEffect{
		ChannelID: app.ChannelID,
		Content:   prompt,
		Emojis:    []string{EmojiAccept, EmojiDecline},
	}).Execute(ctx, c.runtime)
	if err != nil {
		return err
	}
	messageID := result.(*effect.SendMessageResult).MessageID

	state := app.Conversation
	state.CurrentStep = proto.StepVouchActive
	state.ActiveWaiter = proto.WaiterVouchReaction
	state.StepEntryTime = time.Now().UTC()
	state.TimeoutAt = &deadline
	state.AttemptCount = 0
	state.LastIntent = proto.IntentCommunityVouch
	state.VouchInitiatorID = req.VoucherID
	if err := c.ops.UpdateConversationState(app.UserID, &state); err != nil {
		return fmt.Errorf("failed to persist vouch state: %w", err)
	}

	c.mu.Lock()
	c.pending[app.UserID] = &session{
		subjectID:   app.UserID,
		voucherID:   req.VoucherID,
		voucherName: req.VoucherName,
		channelID:   app.ChannelID,
		messageID:   messageID,
	}
	c.byMessage[messageID] = app.UserID
	c.mu.Unlock()

	c.waiters.Arm(app.UserID, proto.WaiterVouchReaction, deadline)
	c.logger.Info("🤝 vouch opened: %s vouching for %s, deadline %s",
		req.VoucherName, app.Username, deadline.Format(time.RFC3339))
	return nil
}

// HandleReaction routes a reaction event. Returns true when the event
// resolved a pending vouch.
func (c *Coordinator) HandleReaction(ctx context.Context, ev *proto.Event) (bool, error) {
	if ev.Emoji != EmojiAccept && ev.Emoji != EmojiDecline {
		return false, nil
	}

	subjectID := c.subjectForReaction(ev)
	if subjectID == "" {
		return false, nil
	}

	app, err := c.ops.GetApplicant(subjectID)
	if err != nil {
		return false, err
	}
	if app.Conversation.CurrentStep != proto.StepVouchActive {
		return false, nil
	}
	// Only the named voucher's reaction counts.
	if ev.UserID != app.Conversation.VouchInitiatorID {
		return false, nil
	}

	sess, ok := c.consume(subjectID)
	if !ok {
		return false, nil
	}
	c.waiters.Deliver(subjectID)

	outcome := proto.VouchDeclined
	if ev.Emoji == EmojiAccept {
		outcome = proto.VouchAccepted
	}
	return true, c.resolve(ctx, app, sess, outcome)
}

// HandleTimeout resolves a vouch whose deadline lapsed without a reaction.
func (c *Coordinator) HandleTimeout(ctx context.Context, subjectID string) error {
	app, err := c.ops.GetApplicant(subjectID)
	if err != nil {
		return err
	}
	if app.Conversation.CurrentStep != proto.StepVouchActive {
		return nil
	}

	sess, ok := c.consume(subjectID)
	if !ok {
		return nil
	}
	return c.resolve(ctx, app, sess, proto.VouchTimedOut)
}

// subjectForReaction maps a reaction event to a pending subject, falling
// back to the channel binding for vouches that outlived a restart.
func (c *Coordinator) subjectForReaction(ev *proto.Event) string {
	c.mu.Lock()
	subjectID, ok := c.byMessage[ev.MessageID]
	c.mu.Unlock()
	if ok {
		return subjectID
	}

	app, err := c.ops.GetApplicantByChannel(ev.ChannelID)
	if err != nil || app.Conversation.CurrentStep != proto.StepVouchActive {
		return ""
	}
	return app.UserID
}

// consume atomically takes the pending session, guaranteeing a single
// resolution path. After a restart no session exists; a synthetic one is
// built from persisted state.
func (c *Coordinator) consume(subjectID string) (*session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.pending[subjectID]
	if ok {
		delete(c.pending, subjectID)
		delete(c.byMessage, sess.messageID)
		return sess, true
	}

	app, err := c.ops.GetApplicant(subjectID)
	if err != nil || app.Conversation.CurrentStep != proto.StepVouchActive {
		return nil, false
	}
	return &session{
		subjectID:   subjectID,
		voucherID:   app.Conversation.VouchInitiatorID,
		voucherName: "<@" + app.Conversation.VouchInitiatorID + ">",
		channelID:   app.ChannelID,
	}, true
}

func (c *Coordinator) resolve(ctx context.Context, app *persistence.Applicant, sess *session, outcome proto.VouchOutcome) error {
	data := &templates.MessageData{
		Mention:     "<@" + app.UserID + ">",
		Username:    app.Username,
		VoucherName: sess.voucherName,
	}

	var effects []effect.Effect
	switch outcome {
	case proto.VouchAccepted:
		msg, err := c.renderer.Render(templates.VouchAcceptedTemplate, data)
		if err != nil {
			return err
		}
		effects = append(effects,
			&effect.GrantRoleEffect{UserID: app.UserID, RoleID: c.cfg.Roles.Friend},
		)
		if c.cfg.Roles.Outsider != "" {
			effects = append(effects, &effect.RevokeRoleEffect{UserID: app.UserID, RoleID: c.cfg.Roles.Outsider})
		}
		effects = append(effects, &effect.SendMessageEffect{ChannelID: sess.channelID, Content: msg})

	case proto.VouchDeclined:
		msg, err := c.renderer.Render(templates.VouchDeclinedTemplate, data)
		if err != nil {
			return err
		}
		effects = append(effects, &effect.SendMessageEffect{ChannelID: sess.channelID, Content: msg})

	case proto.VouchTimedOut:
		msg, err := c.renderer.Render(templates.VouchTimeoutTemplate, data)
		if err != nil {
			return err
		}
		staff := fmt.Sprintf("%s vouch for **%s** by %s expired unanswered.",
			roleMention(c.cfg.Roles.Recruiter), app.Username, sess.voucherName)
		effects = append(effects,
			&effect.SendMessageEffect{ChannelID: sess.channelID, Content: msg},
			&effect.StaffNoticeEffect{Content: staff},
		)
	}

	// The processing channel is retired regardless of outcome.
	effects = append(effects, &effect.DeleteChannelEffect{ChannelID: sess.channelID})

	for _, eff := range effects {
		if _, err := eff.Execute(ctx, c.runtime); err != nil {
			c.logger.Error("vouch %s effect %s failed: %v", outcome, eff.Type(), err)
		}
	}

	status := outcome.CommunityStatus()
	emptyChannel := ""
	update := &persistence.UpdateStatusesRequest{
		CommunityStatus: &status,
		ChannelID:       &emptyChannel,
	}
	if outcome == proto.VouchAccepted {
		update.VouchedBy = &sess.voucherID
	}
	if err := c.ops.UpdateStatuses(app.UserID, update); err != nil {
		return fmt.Errorf("failed to record vouch outcome: %w", err)
	}

	idle := persistence.IdleState(time.Now().UTC())
	if err := c.ops.UpdateConversationState(app.UserID, &idle); err != nil {
		return fmt.Errorf("failed to reset conversation after vouch: %w", err)
	}

	c.logger.Info("🤝 vouch for %s resolved: %s", app.Username, outcome)
	return nil
}

func roleMention(roleID string) string {
	if roleID == "" {
		return ""
	}
	return "<@&" + roleID + ">"
}

// Package gate handles members arriving at and leaving the guild: account
// age screening, processing channel bootstrap in the City Gates category,
// the rejoin path, and the daily stale channel sweep.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/waiter"
)

// Gate processes member join and leave events.
type Gate struct {
	runtime  effect.Runtime
	ops      *persistence.DatabaseOperations
	waiters  *waiter.Registry
	renderer *templates.Renderer
	cfg      config.Config
	logger   *logx.Logger
}

// New creates a gate.
func New(runtime effect.Runtime, ops *persistence.DatabaseOperations, waiters *waiter.Registry, renderer *templates.Renderer, cfg config.Config) *Gate {
	return &Gate{
		runtime:  runtime,
		ops:      ops,
		waiters:  waiters,
		renderer: renderer,
		cfg:      cfg,
		logger:   logx.NewLogger("gate"),
	}
}

// OnMemberJoined screens the arrival and opens (or restores) their
// processing channel.
func (g *Gate) OnMemberJoined(ctx context.Context, ev *proto.Event) error {
	if tooNew, err := g.enforceAccountAge(ctx, ev); err != nil || tooNew {
		return err
	}

	app, err := g.ops.GetApplicant(ev.UserID)
	if errors.Is(err, persistence.ErrNotFound) {
		return g.bootstrap(ctx, ev)
	}
	if err != nil {
		return err
	}
	return g.rejoin(ctx, ev, app)
}

// enforceAccountAge kicks accounts younger than the configured minimum,
// with a DM explaining why. Returns true when the member was turned away.
func (g *Gate) enforceAccountAge(ctx context.Context, ev *proto.Event) (bool, error) {
	if g.cfg.MinAccountAgeDays <= 0 || ev.CreatedAt.IsZero() {
		return false, nil
	}
	minAge := time.Duration(g.cfg.MinAccountAgeDays) * 24 * time.Hour
	age := time.Since(ev.CreatedAt)
	if age >= minAge {
		return false, nil
	}

	notice, err := g.renderer.Render(templates.AccountTooNewTemplate, &templates.MessageData{
		Username:          ev.Username,
		GuildName:         g.cfg.Guild.Name,
		MinAccountAgeDays: g.cfg.MinAccountAgeDays,
	})
	if err != nil {
		return true, err
	}

	g.execute(ctx,
		&effect.DirectMessageEffect{UserID: ev.UserID, Content: notice},
		&effect.KickMemberEffect{UserID: ev.UserID, Reason: "account below minimum age"},
		&effect.StaffNoticeEffect{Content: fmt.Sprintf(
			"🚪 Turned away **%s**: account is %d days old, minimum is %d.",
			ev.Username, int(age.Hours()/24), g.cfg.MinAccountAgeDays)},
	)
	g.logger.Info("🚪 turned away %s, account age %s below minimum", ev.Username, age.Round(time.Hour))
	return true, nil
}

// bootstrap sets up a first-time arrival: record, Outsider role, private
// processing channel, welcome prompt, and the initial reply window.
func (g *Gate) bootstrap(ctx context.Context, ev *proto.Event) error {
	res, err := (&effect.CreateChannelEffect{
		Name:         utils.ProcessingChannelName(ev.Username),
		CategoryName: g.cfg.Categories.CityGates,
		MemberIDs:    []string{ev.UserID},
	}).Execute(ctx, g.runtime)
	if err != nil {
		return fmt.Errorf("failed to open processing channel for %s: %w", ev.Username, err)
	}
	channelID := res.(*effect.CreateChannelResult).ChannelID

	if g.cfg.Roles.Outsider != "" {
		g.execute(ctx, &effect.GrantRoleEffect{UserID: ev.UserID, RoleID: g.cfg.Roles.Outsider})
	}

	now := time.Now().UTC()
	deadline := now.Add(g.cfg.Timeouts.InitialResponse())
	app := &persistence.Applicant{
		UserID:            ev.UserID,
		Username:          ev.Username,
		GuildID:           ev.GuildID,
		ChannelID:         channelID,
		ApplicationStatus: proto.ApplicationPending,
		CommunityStatus:   proto.CommunityPending,
		JoinedAt:          ev.JoinedAt.UTC(),
		LastActivityAt:    now,
		Conversation: persistence.ConversationState{
			CurrentStep:   proto.StepAwaitingInitial,
			ActiveWaiter:  proto.WaiterInitialResponse,
			StepEntryTime: now,
			TimeoutAt:     &deadline,
		},
	}
	if err := g.ops.UpsertApplicant(app); err != nil {
		return err
	}

	if err := g.welcome(ctx, app, templates.WelcomeTemplate); err != nil {
		g.logger.Error("welcome for %s failed: %v", ev.Username, err)
	}

	g.waiters.Arm(ev.UserID, proto.WaiterInitialResponse, deadline)
	g.logger.Info("🏰 opened the gates for %s (channel %s)", ev.Username, channelID)
	return nil
}

// rejoin restores a returning member: role, processing channel if it was
// cleaned up, and a fresh reply window.
func (g *Gate) rejoin(ctx context.Context, ev *proto.Event, app *persistence.Applicant) error {
	role := g.cfg.Roles.Outsider
	if app.CommunityStatus == proto.CommunityVouchAccept || app.CommunityStatus == proto.CommunityAccepted {
		role = g.cfg.Roles.Friend
	}
	if role != "" {
		g.execute(ctx, &effect.GrantRoleEffect{UserID: ev.UserID, RoleID: role})
	}

	if app.ChannelID == "" {
		res, err := (&effect.CreateChannelEffect{
			Name:         utils.ProcessingChannelName(ev.Username),
			CategoryName: g.cfg.Categories.CityGates,
			MemberIDs:    []string{ev.UserID},
		}).Execute(ctx, g.runtime)
		if err != nil {
			return fmt.Errorf("failed to reopen processing channel for %s: %w", ev.Username, err)
		}
		app.ChannelID = res.(*effect.CreateChannelResult).ChannelID
		if err := g.ops.UpdateStatuses(ev.UserID, &persistence.UpdateStatusesRequest{
			ChannelID: &app.ChannelID,
		}); err != nil {
			return err
		}
	}

	// Departure statuses are stale once the member is back.
	if app.CommunityStatus == proto.CommunityLeft {
		pending := proto.CommunityPending
		pendingApp := proto.ApplicationPending
		if err := g.ops.UpdateStatuses(ev.UserID, &persistence.UpdateStatusesRequest{
			CommunityStatus:   &pending,
			ApplicationStatus: &pendingApp,
		}); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	deadline := now.Add(g.cfg.Timeouts.InitialResponse())
	state := persistence.ConversationState{
		CurrentStep:   proto.StepAwaitingInitial,
		ActiveWaiter:  proto.WaiterInitialResponse,
		StepEntryTime: now,
		TimeoutAt:     &deadline,
	}
	if err := g.ops.UpdateConversationState(ev.UserID, &state); err != nil {
		return err
	}
	_ = g.ops.TouchActivity(ev.UserID, now)

	if err := g.welcome(ctx, app, templates.WelcomeBackTemplate); err != nil {
		g.logger.Error("welcome back for %s failed: %v", ev.Username, err)
	}

	g.waiters.Arm(ev.UserID, proto.WaiterInitialResponse, deadline)
	g.logger.Info("🏰 %s returned, channel %s restored", ev.Username, app.ChannelID)
	return nil
}

// OnMemberLeft tears down the member's channels and resets their record.
func (g *Gate) OnMemberLeft(ctx context.Context, ev *proto.Event) error {
	app, err := g.ops.GetApplicant(ev.UserID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	g.waiters.Cancel(ev.UserID)
	g.execute(ctx,
		&effect.DeleteChannelEffect{ChannelID: app.ChannelID},
		&effect.DeleteChannelEffect{ChannelID: app.TicketChannelID},
	)

	if err := g.ops.MarkDeparted(ev.UserID, time.Now().UTC()); err != nil {
		return err
	}
	g.logger.Info("👋 %s left, channels cleaned up", app.Username)
	return nil
}

// welcome posts a greeting in the member's processing channel and records
// it as an agent turn.
func (g *Gate) welcome(ctx context.Context, app *persistence.Applicant, tpl templates.MessageTemplate) error {
	content, err := g.renderer.Render(tpl, &templates.MessageData{
		Username:  app.Username,
		Mention:   "<@" + app.UserID + ">",
		GuildName: g.cfg.Guild.Name,
	})
	if err != nil {
		return err
	}

	res, err := (&effect.SendMessageEffect{ChannelID: app.ChannelID, Content: content}).Execute(ctx, g.runtime)
	if err != nil {
		return err
	}

	_, err = g.ops.AppendTurn(&persistence.Turn{
		ID:                utils.NewID(),
		UserID:            app.UserID,
		ChannelID:         app.ChannelID,
		Author:            proto.TurnAuthorAgent,
		Content:           content,
		ExternalMessageID: res.(*effect.SendMessageResult).MessageID,
	})
	return err
}

// execute runs best-effort effects, logging failures without aborting.
func (g *Gate) execute(ctx context.Context, effects ...effect.Effect) {
	for _, eff := range effects {
		if _, err := eff.Execute(ctx, g.runtime); err != nil {
			g.logger.Error("effect %s failed: %v", eff.Type(), err)
		}
	}
}

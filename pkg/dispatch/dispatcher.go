// Package dispatch routes normalized platform events to the components that
// own them: membership events to the gate, messages to the rehydration and
// dialogue pipeline, reactions to the vouch coordinator. It is the only
// component that persists dialogue outcomes and arms reply waiters, which
// keeps the ordering guarantee in one place: state is written before any
// timer that could observe it starts ticking.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/dialogue"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/eventlog"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/gate"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/metrics"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/rehydrate"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/vouch"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/waiter"
)

const timeoutHandlingBudget = 30 * time.Second

// Dispatcher owns the event loop's serialization and persistence discipline.
// All work for one user runs under that user's lock, so a reply racing its
// own timeout cannot interleave.
type Dispatcher struct {
	runtime    effect.Runtime
	ops        *persistence.DatabaseOperations
	waiters    *waiter.Registry
	engine     *dialogue.Engine
	gate       *gate.Gate
	vouches    *vouch.Coordinator
	rehydrator *rehydrate.Service
	renderer   *templates.Renderer
	cfg        config.Config
	journal    *eventlog.Writer // nil disables journaling
	rec        metrics.Recorder
	logger     *logx.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a dispatcher. journal may be nil; rec may be nil for no-op
// metrics.
func New(
	runtime effect.Runtime,
	ops *persistence.DatabaseOperations,
	waiters *waiter.Registry,
	engine *dialogue.Engine,
	g *gate.Gate,
	vouches *vouch.Coordinator,
	rehydrator *rehydrate.Service,
	renderer *templates.Renderer,
	cfg config.Config,
	journal *eventlog.Writer,
	rec metrics.Recorder,
) *Dispatcher {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Dispatcher{
		runtime:    runtime,
		ops:        ops,
		waiters:    waiters,
		engine:     engine,
		gate:       g,
		vouches:    vouches,
		rehydrator: rehydrator,
		renderer:   renderer,
		cfg:        cfg,
		journal:    journal,
		rec:        rec,
		logger:     logx.NewLogger("dispatch"),
		locks:      make(map[string]*sync.Mutex),
	}
}

// HandleEvent processes one inbound platform event. Bot-authored messages
// are dropped before any lock is taken so the bot never converses with
// itself.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev *proto.Event) error {
	if ev == nil {
		return nil
	}
	d.record(ev)

	if ev.Kind == proto.EventMessage && ev.FromBot {
		return nil
	}

	unlock := d.lockUser(ev.UserID)
	defer unlock()
	defer d.rec.SetActiveWaiters(d.waiters.Count())

	switch ev.Kind {
	case proto.EventMemberJoined:
		return d.gate.OnMemberJoined(ctx, ev)
	case proto.EventMemberLeft:
		return d.gate.OnMemberLeft(ctx, ev)
	case proto.EventMessage:
		return d.onMessage(ctx, ev)
	case proto.EventReaction:
		return d.onReaction(ctx, ev)
	default:
		d.logger.Warn("❓ unknown event kind %q from %s", ev.Kind, ev.UserID)
		return nil
	}
}

// OnTimeout is the waiter registry's callback. It runs on the registry's
// timer goroutine, so it builds its own context and takes the user lock
// like any other event.
func (d *Dispatcher) OnTimeout(userID string, kind proto.WaiterKind) {
	ctx, cancel := context.WithTimeout(context.Background(), timeoutHandlingBudget)
	defer cancel()

	unlock := d.lockUser(userID)
	defer unlock()
	defer d.rec.SetActiveWaiters(d.waiters.Count())

	if err := d.fireTimeout(ctx, userID, kind); err != nil {
		d.logger.Error("⏰ timeout handling failed for %s (%s): %v", userID, kind, err)
	}
}

// Recover replays waiter state after a restart: deadlines that passed while
// the process was down fire immediately, future deadlines are re-armed with
// their remaining time.
func (d *Dispatcher) Recover(ctx context.Context) error {
	now := time.Now()

	expired, err := d.ops.ListExpiredWaiters(now)
	if err != nil {
		return fmt.Errorf("listing expired waiters: %w", err)
	}
	for _, app := range expired {
		unlock := d.lockUser(app.UserID)
		if err := d.fireTimeout(ctx, app.UserID, app.Conversation.ActiveWaiter); err != nil {
			d.logger.Error("⏰ recovery timeout failed for %s: %v", app.UserID, err)
		}
		unlock()
	}

	armed, err := d.ops.ListArmedWaiters()
	if err != nil {
		return fmt.Errorf("listing armed waiters: %w", err)
	}
	rearmed := 0
	for _, app := range armed {
		if app.Conversation.TimeoutAt == nil || !app.Conversation.TimeoutAt.After(now) {
			continue
		}
		d.waiters.Arm(app.UserID, app.Conversation.ActiveWaiter, *app.Conversation.TimeoutAt)
		rearmed++
	}

	d.rec.SetActiveWaiters(d.waiters.Count())
	d.logger.Info("🔄 recovery done: %d expired fired, %d waiter(s) re-armed", len(expired), rearmed)
	return nil
}

func (d *Dispatcher) onMessage(ctx context.Context, ev *proto.Event) error {
	res, err := d.rehydrator.OnInboundMessage(ctx, ev)
	if err != nil {
		return err
	}
	if res == nil {
		// Not a turn the dialogue loop owns (wrong channel, duplicate,
		// sub-workflow). The armed waiter, if any, stays armed.
		return nil
	}

	// The turn was taken, so it satisfies the armed reply window. A
	// reaction window is never satisfied by typing: those are answered by
	// the voucher.
	if kind, _, ok := d.waiters.Active(ev.UserID); ok && !kind.ReactionKind() {
		d.waiters.Deliver(ev.UserID)
	}
	return d.apply(ctx, res.App, res.Outcome, res.Classification)
}

func (d *Dispatcher) onReaction(ctx context.Context, ev *proto.Event) error {
	handled, err := d.vouches.HandleReaction(ctx, ev)
	if err != nil {
		return err
	}
	if handled {
		outcome := proto.VouchDeclined
		if ev.Emoji == vouch.EmojiAccept {
			outcome = proto.VouchAccepted
		}
		d.rec.IncVouchOutcome(string(outcome))
	}
	return nil
}

func (d *Dispatcher) fireTimeout(ctx context.Context, userID string, kind proto.WaiterKind) error {
	app, err := d.ops.GetApplicant(userID)
	if err != nil {
		return err
	}

	if kind.ReactionKind() {
		pending := app.Conversation.CurrentStep == proto.StepVouchActive
		if err := d.vouches.HandleTimeout(ctx, userID); err != nil {
			return err
		}
		if pending {
			d.rec.IncVouchOutcome(string(proto.VouchTimedOut))
		}
		return nil
	}
	if app.Conversation.ActiveWaiter != kind {
		// The waiter was satisfied or replaced between the timer firing
		// and the lock being taken. Stale, drop it.
		return nil
	}

	out, err := d.engine.HandleTimeout(app, kind)
	if err != nil {
		return err
	}
	return d.apply(ctx, app, out, nil)
}

// apply commits one dialogue outcome: metrics, delegation to sub-workflows,
// state persistence, waiter arming, then effects. Persist-before-arm is the
// load-bearing ordering here.
func (d *Dispatcher) apply(ctx context.Context, app *persistence.Applicant, out *dialogue.Outcome, cls *proto.Classification) error {
	d.observeOutcome(app, out, cls)

	if out.Vouch != nil {
		// The vouch coordinator persists its own state and arms the
		// reaction waiter; handing off here keeps exactly one writer.
		return d.vouches.Initiate(ctx, app, &vouch.Request{
			VoucherID:      out.Vouch.VoucherID,
			VoucherName:    out.Vouch.VoucherName,
			VoucherMention: out.Vouch.VoucherMention,
		})
	}

	state := app.Conversation
	state.CurrentStep = out.NextStep
	state.ActiveWaiter = out.Waiter
	state.StepEntryTime = time.Now()
	state.AttemptCount = out.AttemptCount
	state.DegradedCount = out.DegradedCount
	state.LastIntent = out.LastIntent
	if out.Waiter == proto.WaiterNone {
		state.TimeoutAt = nil
	} else {
		deadline := out.Deadline
		state.TimeoutAt = &deadline
	}

	persistErr := d.ops.UpdateConversationState(app.UserID, &state)
	if persistErr != nil {
		persistErr = d.ops.UpdateConversationState(app.UserID, &state)
	}
	if persistErr != nil {
		// The reply still goes out best effort, but nothing is armed on top
		// of state we failed to write.
		d.logger.Error("💾 conversation state for %s not persisted, replies may repeat: %v", app.UserID, persistErr)
		d.execute(ctx, app, out.Effects...)
		return fmt.Errorf("persisting conversation state for %s: %w", app.UserID, persistErr)
	}
	app.Conversation = state

	if out.Waiter != proto.WaiterNone {
		d.waiters.Arm(app.UserID, out.Waiter, out.Deadline)
	}

	d.execute(ctx, app, out.Effects...)

	if out.Ticket != nil {
		if err := d.openTicket(ctx, app, out.Ticket); err != nil {
			return err
		}
	}
	return nil
}

// openTicket creates the application ticket channel, confirms it in the
// processing channel, and records the open ticket on the applicant row.
func (d *Dispatcher) openTicket(ctx context.Context, app *persistence.Applicant, req *dialogue.TicketRequest) error {
	create := &effect.CreateChannelEffect{
		Name:         req.ChannelName,
		CategoryName: d.cfg.Categories.Tickets,
		MemberIDs:    []string{app.UserID},
	}
	res, err := create.Execute(ctx, d.runtime)
	if err != nil {
		return fmt.Errorf("opening ticket channel for %s: %w", app.UserID, err)
	}
	channelID := res.(*effect.CreateChannelResult).ChannelID

	msg, err := d.renderer.Render(templates.TicketOpenedTemplate, &templates.MessageData{
		Username:   app.Username,
		Mention:    "<@" + app.UserID + ">",
		GuildName:  d.cfg.Guild.Name,
		ChannelRef: "<#" + channelID + ">",
	})
	if err != nil {
		return err
	}
	d.execute(ctx, app, &effect.SendMessageEffect{
		ChannelID:    app.ChannelID,
		Content:      msg,
		RecordAsTurn: true,
		TurnUserID:   app.UserID,
	})

	status := proto.ApplicationTicketOpen
	if err := d.ops.UpdateStatuses(app.UserID, &persistence.UpdateStatusesRequest{
		ApplicationStatus: &status,
		TicketChannelID:   &channelID,
	}); err != nil {
		return fmt.Errorf("recording ticket for %s: %w", app.UserID, err)
	}
	app.ApplicationStatus = status
	app.TicketChannelID = channelID

	d.logger.Info("🎫 opened ticket %s for %s", channelID, app.Username)
	return nil
}

// execute runs effects in order, best effort, recording agent turns for
// messages flagged RecordAsTurn.
func (d *Dispatcher) execute(ctx context.Context, app *persistence.Applicant, effects ...effect.Effect) {
	for _, eff := range effects {
		res, err := eff.Execute(ctx, d.runtime)
		if err != nil {
			d.logger.Error("⚡ effect %s failed for %s: %v", eff.Type(), app.UserID, err)
			continue
		}
		send, ok := eff.(*effect.SendMessageEffect)
		if !ok || !send.RecordAsTurn {
			continue
		}
		sent, ok := res.(*effect.SendMessageResult)
		if !ok {
			continue
		}
		if _, err := d.ops.AppendTurn(&persistence.Turn{
			ID:                utils.NewID(),
			UserID:            send.TurnUserID,
			ChannelID:         send.ChannelID,
			Author:            proto.TurnAuthorAgent,
			Content:           send.Content,
			ExternalMessageID: sent.MessageID,
			CreatedAt:         time.Now(),
		}); err != nil {
			d.logger.Error("💾 failed to record agent turn for %s: %v", send.TurnUserID, err)
		}
	}
}

func (d *Dispatcher) observeOutcome(app *persistence.Applicant, out *dialogue.Outcome, cls *proto.Classification) {
	from := app.Conversation.CurrentStep
	if out.NextStep != from {
		d.rec.IncTransition(from.String(), out.NextStep.String())
	}
	if cls != nil && cls.Degraded {
		d.rec.IncDegradedTurn()
	}
	if out.NextStep == proto.StepAwaitingClarification && out.AttemptCount > app.Conversation.AttemptCount {
		d.rec.IncClarification()
	}
	if out.Escalated {
		d.rec.IncEscalation(string(out.LastIntent))
	}
}

func (d *Dispatcher) record(ev *proto.Event) {
	if d.journal == nil {
		return
	}
	if err := d.journal.Write(ev); err != nil {
		d.logger.Warn("📓 event journal write failed: %v", err)
	}
}

func (d *Dispatcher) lockUser(userID string) func() {
	d.mu.Lock()
	l, ok := d.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[userID] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}

package dialogue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
)

type stubFinder struct {
	members map[string]*platform.Member
}

func (f *stubFinder) FindMemberByName(_ context.Context, _ string, name string) (*platform.Member, error) {
	return f.members[name], nil
}

func testEngine(t *testing.T, finder MemberFinder) *Engine {
	t.Helper()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	cfg := config.Config{
		Guild:                    config.GuildConfig{ID: "guild-1", Name: "Wraiven"},
		Roles:                    config.RolesConfig{Recruiter: "role-recruiter"},
		MaxClarificationAttempts: 3,
		Timeouts: config.TimeoutsConfig{
			InitialResponseSec: 300,
			ClarificationSec:   300,
			VouchMentionSec:    120,
			GeneralSec:         600,
		},
	}
	if finder == nil {
		finder = &stubFinder{}
	}
	return NewEngine(renderer, cfg, finder)
}

func testApplicant(step proto.Step, attempts int) *persistence.Applicant {
	return &persistence.Applicant{
		UserID:    "user-1",
		Username:  "newfriend",
		GuildID:   "guild-1",
		ChannelID: "chan-1",
		Conversation: persistence.ConversationState{
			CurrentStep:  step,
			AttemptCount: attempts,
		},
	}
}

func classification(intent proto.Intent) *proto.Classification {
	return &proto.Classification{
		Intent:     intent,
		Entities:   map[string]string{},
		Confidence: 0.9,
	}
}

func firstMessage(t *testing.T, o *Outcome) *effect.SendMessageEffect {
	t.Helper()
	require.NotEmpty(t, o.Effects)
	msg, ok := o.Effects[0].(*effect.SendMessageEffect)
	require.True(t, ok)
	return msg
}

func TestDegradedTurnDoesNotConsumeAttempt(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingClarification, 2)

	o, err := e.Advance(context.Background(), app, "???", &proto.Classification{
		Intent: proto.IntentUnclear, RequiresClarification: true, Degraded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, proto.StepAwaitingClarification, o.NextStep)
	assert.Equal(t, proto.WaiterClarification, o.Waiter)
	assert.Equal(t, 2, o.AttemptCount)
	assert.False(t, o.Deadline.IsZero())
}

func TestDegradedTurnIncrementsStreak(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepGeneralListening, 0)
	app.Conversation.DegradedCount = 1

	o, err := e.Advance(context.Background(), app, "hi", &proto.Classification{
		Intent: proto.IntentUnclear, RequiresClarification: true, Degraded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, proto.StepAwaitingClarification, o.NextStep)
	assert.Equal(t, 2, o.DegradedCount)
}

func TestRepeatedDegradedTurnsEscalate(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingClarification, 0)
	app.Conversation.DegradedCount = 2

	o, err := e.Advance(context.Background(), app, "hello?", &proto.Classification{
		Intent: proto.IntentUnclear, RequiresClarification: true, Degraded: true,
	})
	require.NoError(t, err)
	assert.Equal(t, proto.StepIdle, o.NextStep)
	assert.True(t, o.Escalated)
	assert.Zero(t, o.DegradedCount)
	require.Len(t, o.Effects, 2)
	_, isStaff := o.Effects[1].(*effect.StaffNoticeEffect)
	assert.True(t, isStaff)
}

func TestRealClassificationResetsDegradedStreak(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepGeneralListening, 0)
	app.Conversation.DegradedCount = 2

	o, err := e.Advance(context.Background(), app, "how do raids work?", classification(proto.IntentGeneralQuestion))
	require.NoError(t, err)
	assert.Zero(t, o.DegradedCount)
}

func TestUnclearIncrementsAttempts(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingInitial, 0)

	cls := classification(proto.IntentUnclear)
	cls.RequiresClarification = true
	o, err := e.Advance(context.Background(), app, "asdf", cls)
	require.NoError(t, err)
	assert.Equal(t, proto.StepAwaitingClarification, o.NextStep)
	assert.Equal(t, 1, o.AttemptCount)
}

func TestEscalationAfterMaxAttempts(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingClarification, 3)

	cls := classification(proto.IntentUnclear)
	cls.RequiresClarification = true
	o, err := e.Advance(context.Background(), app, "still confusing", cls)
	require.NoError(t, err)
	assert.Equal(t, proto.StepIdle, o.NextStep)
	assert.Equal(t, proto.WaiterNone, o.Waiter)
	assert.True(t, o.Escalated)
	assert.Zero(t, o.AttemptCount)
	require.Len(t, o.Effects, 2)
	_, isStaff := o.Effects[1].(*effect.StaffNoticeEffect)
	assert.True(t, isStaff)
}

func TestApplicationIntentOffersTicket(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingInitial, 0)

	o, err := e.Advance(context.Background(), app, "I want to join the guild", classification(proto.IntentGuildApplication))
	require.NoError(t, err)
	assert.Equal(t, proto.StepGeneralListening, o.NextStep)
	assert.Equal(t, proto.WaiterGeneral, o.Waiter)
	assert.Nil(t, o.Ticket)
	assert.Zero(t, o.AttemptCount)
}

func TestRepeatedApplicationIntentOpensTicket(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepGeneralListening, 0)
	app.Conversation.LastIntent = proto.IntentGuildApplication

	o, err := e.Advance(context.Background(), app, "yes let's do it", classification(proto.IntentGuildApplication))
	require.NoError(t, err)
	assert.Equal(t, proto.StepApplicationActive, o.NextStep)
	require.NotNil(t, o.Ticket)
	assert.Equal(t, "ticket-newfriend", o.Ticket.ChannelName)
}

func TestApplicationConfirmFromVouchMentionStep(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingVouchMention, 0)
	app.Conversation.LastIntent = proto.IntentCommunityVouch

	// The visitor pivots: asked to name a voucher, they agree to apply
	// instead.
	cls := classification(proto.IntentGuildApplication)
	cls.Entities[proto.EntityApplicationAgree] = "yes"
	o, err := e.Advance(context.Background(), app, "actually yes, I want to apply", cls)
	require.NoError(t, err)
	assert.Equal(t, proto.StepApplicationActive, o.NextStep)
	require.NotNil(t, o.Ticket)
	assert.Equal(t, "ticket-newfriend", o.Ticket.ChannelName)
}

func TestVouchWithoutNameAsksForVoucher(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingInitial, 0)

	o, err := e.Advance(context.Background(), app, "my friend is in this community already, can I get access?", classification(proto.IntentCommunityVouch))
	require.NoError(t, err)
	assert.Equal(t, proto.StepAwaitingVouchMention, o.NextStep)
	assert.Equal(t, proto.WaiterVouchMention, o.Waiter)
}

func TestVouchWithResolvedVoucher(t *testing.T) {
	finder := &stubFinder{members: map[string]*platform.Member{
		"Thrall": {ID: "user-2", Username: "Thrall", Mention: "<@user-2>"},
	}}
	e := testEngine(t, finder)
	app := testApplicant(proto.StepAwaitingInitial, 0)

	cls := classification(proto.IntentCommunityVouch)
	cls.Entities[proto.EntityVouchPersonName] = "Thrall"
	o, err := e.Advance(context.Background(), app, "Thrall can vouch for me", cls)
	require.NoError(t, err)
	assert.Equal(t, proto.StepVouchActive, o.NextStep)
	assert.Equal(t, proto.WaiterNone, o.Waiter)
	require.NotNil(t, o.Vouch)
	assert.Equal(t, "user-2", o.Vouch.VoucherID)
}

func TestVouchMentionStepReadsBareName(t *testing.T) {
	finder := &stubFinder{members: map[string]*platform.Member{
		"Thrall": {ID: "user-2", Username: "Thrall", Mention: "<@user-2>"},
	}}
	e := testEngine(t, finder)
	app := testApplicant(proto.StepAwaitingVouchMention, 0)

	// The classifier often labels a bare name as unclear; the step context
	// should still treat it as the voucher answer.
	cls := classification(proto.IntentUnclear)
	cls.RequiresClarification = true
	o, err := e.Advance(context.Background(), app, "Thrall", cls)
	require.NoError(t, err)
	assert.Equal(t, proto.StepVouchActive, o.NextStep)
	require.NotNil(t, o.Vouch)
}

func TestUnknownVoucherAsksAgain(t *testing.T) {
	e := testEngine(t, &stubFinder{})
	app := testApplicant(proto.StepAwaitingVouchMention, 0)

	cls := classification(proto.IntentCommunityVouch)
	cls.Entities[proto.EntityVouchPersonName] = "Nobody"
	o, err := e.Advance(context.Background(), app, "Nobody", cls)
	require.NoError(t, err)
	assert.Equal(t, proto.StepAwaitingVouchMention, o.NextStep)
	assert.Nil(t, o.Vouch)
	assert.Contains(t, firstMessage(t, o).Content, "Nobody")
}

func TestRequestHumanEscalates(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepGeneralListening, 1)

	o, err := e.Advance(context.Background(), app, "let me talk to a person", classification(proto.IntentRequestHuman))
	require.NoError(t, err)
	assert.Equal(t, proto.StepIdle, o.NextStep)
	assert.True(t, o.Escalated)
}

func TestEndConversationParksIdle(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepGeneralListening, 0)

	o, err := e.Advance(context.Background(), app, "that's all, thanks!", classification(proto.IntentEndConversation))
	require.NoError(t, err)
	assert.Equal(t, proto.StepIdle, o.NextStep)
	assert.Equal(t, proto.WaiterNone, o.Waiter)
	assert.True(t, o.Deadline.IsZero())
}

func TestGeneralQuestionUsesSuggestedReply(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingInitial, 0)

	cls := classification(proto.IntentGeneralQuestion)
	cls.SuggestedReply = "We raid Tuesdays and Thursdays."
	o, err := e.Advance(context.Background(), app, "when do you raid?", cls)
	require.NoError(t, err)
	assert.Equal(t, proto.StepGeneralListening, o.NextStep)
	assert.Equal(t, "We raid Tuesdays and Thursdays.", firstMessage(t, o).Content)
}

func TestAdvanceRejectsSubWorkflowSteps(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepVouchActive, 0)

	_, err := e.Advance(context.Background(), app, "hello?", classification(proto.IntentGeneralQuestion))
	require.Error(t, err)
	var terr *proto.TransitionError
	assert.ErrorAs(t, err, &terr)
}

func TestHandleTimeout(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingClarification, 2)

	o, err := e.HandleTimeout(app, proto.WaiterClarification)
	require.NoError(t, err)
	assert.Equal(t, proto.StepIdle, o.NextStep)
	assert.Equal(t, proto.WaiterNone, o.Waiter)
	assert.Zero(t, o.AttemptCount)
	assert.Contains(t, firstMessage(t, o).Content, "still there")
}

func TestWaiterDeadlinesUseConfiguredTimeouts(t *testing.T) {
	e := testEngine(t, nil)
	app := testApplicant(proto.StepAwaitingInitial, 0)

	cls := classification(proto.IntentUnclear)
	cls.RequiresClarification = true
	before := time.Now()
	o, err := e.Advance(context.Background(), app, "hm", cls)
	require.NoError(t, err)

	want := before.Add(300 * time.Second)
	assert.WithinDuration(t, want, o.Deadline, 2*time.Second)
}

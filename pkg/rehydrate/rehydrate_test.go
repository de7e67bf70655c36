package rehydrate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/dialogue"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/testkit"
)

type rehydrateFixture struct {
	svc  *Service
	ops  *persistence.DatabaseOperations
	plat *testkit.FakePlatform
	cls  *testkit.ScriptedClassifier
}

func newRehydrateFixture(t *testing.T, script ...*proto.Classification) *rehydrateFixture {
	t.Helper()

	require.NoError(t, persistence.Reset())
	require.NoError(t, persistence.Initialize(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { _ = persistence.Reset() })
	ops := persistence.Ops()

	cfg := config.Config{
		Guild:                    config.GuildConfig{ID: "g-1", Name: "Wraiven"},
		MaxClarificationAttempts: 3,
		Timeouts: config.TimeoutsConfig{
			ClarificationSec: 300,
			GeneralSec:       600,
			VouchMentionSec:  300,
		},
	}

	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	plat := testkit.NewFakePlatform()
	cls := testkit.NewScriptedClassifier(script...)
	engine := dialogue.NewEngine(renderer, cfg, plat)

	return &rehydrateFixture{
		svc:  NewService(ops, plat, cls, engine),
		ops:  ops,
		plat: plat,
		cls:  cls,
	}
}

func (f *rehydrateFixture) seed(t *testing.T, step proto.Step, lastMsgID string) *persistence.Applicant {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	app := &persistence.Applicant{
		UserID:            "u-1",
		Username:          "newfriend",
		GuildID:           "g-1",
		ChannelID:         "proc-1",
		ApplicationStatus: proto.ApplicationPending,
		CommunityStatus:   proto.CommunityPending,
		JoinedAt:          now,
		LastActivityAt:    now,
		Conversation:      persistence.IdleState(now),
	}
	app.Conversation.CurrentStep = step
	app.Conversation.LastProcessedMessageID = lastMsgID
	require.NoError(t, f.ops.UpsertApplicant(app))
	return app
}

func TestProcessesTrackedMessage(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentSocialGreeting))
	f.seed(t, proto.StepGeneralListening, "")

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "u-1", "proc-1", "m-1", "hello there"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, proto.StepGeneralListening, res.Outcome.NextStep)
	assert.Equal(t, 1, f.cls.Calls())

	got, err := f.ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", got.Conversation.LastProcessedMessageID)

	turns, err := f.ops.GetRecentTurns("u-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hello there", turns[0].Content)
	assert.Equal(t, proto.TurnAuthorUser, turns[0].Author)
}

func TestStoresClassifierOutputOnUserTurn(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentGeneralQuestion))
	f.seed(t, proto.StepGeneralListening, "")

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "u-1", "proc-1", "m-1", "what is raid night?"))
	require.NoError(t, err)
	require.NotNil(t, res)

	turns, err := f.ops.GetRecentTurns("u-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Contains(t, turns[0].ClassifierOutput, string(proto.IntentGeneralQuestion))
	assert.Equal(t, RawClassification(res.Classification), turns[0].ClassifierOutput)
}

func TestIgnoresUntrackedChannel(t *testing.T) {
	f := newRehydrateFixture(t)

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "u-1", "random-chan", "m-1", "hi"))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, f.cls.Calls())
}

func TestIgnoresOtherUsersInChannel(t *testing.T) {
	f := newRehydrateFixture(t)
	f.seed(t, proto.StepGeneralListening, "")

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "bystander", "proc-1", "m-1", "hi"))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestIgnoresSubWorkflowSteps(t *testing.T) {
	f := newRehydrateFixture(t)
	f.seed(t, proto.StepVouchActive, "")

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "u-1", "proc-1", "m-1", "hi"))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, f.cls.Calls())
}

func TestDuplicateMessageProcessedOnce(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentSocialGreeting))
	f.seed(t, proto.StepGeneralListening, "")

	ev := testkit.MessageEvent("g-1", "u-1", "proc-1", "m-1", "hello")
	res, err := f.svc.OnInboundMessage(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, res)

	// Same event delivered again, both within the dedup window and against
	// the advanced cursor.
	res, err = f.svc.OnInboundMessage(context.Background(), ev)
	require.NoError(t, err)
	assert.Nil(t, res)

	assert.Equal(t, 1, f.cls.Calls())
	turns, err := f.ops.GetRecentTurns("u-1", 10)
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestDedupSurvivesFreshService(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentSocialGreeting))
	f.seed(t, proto.StepGeneralListening, "")

	ev := testkit.MessageEvent("g-1", "u-1", "proc-1", "m-1", "hello")
	res, err := f.svc.OnInboundMessage(context.Background(), ev)
	require.NoError(t, err)
	require.NotNil(t, res)

	// A restarted service has an empty in-memory window; the persisted
	// cursor and the idempotent turn append still block the duplicate.
	fresh := NewService(f.ops, f.plat, f.cls, f.svc.engine)
	res, err = fresh.OnInboundMessage(context.Background(), ev)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestBackfillRecordsMissedMessages(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentGeneralQuestion))
	f.seed(t, proto.StepGeneralListening, "m-0")

	base := time.Now().UTC().Add(-time.Minute)
	f.plat.ChannelLogs["proc-1"] = []proto.ChannelMessage{
		{MessageID: "m-0", AuthorID: "u-1", Content: "earlier", Timestamp: base},
		{MessageID: "m-1", AuthorID: "u-1", Content: "missed while down", Timestamp: base.Add(10 * time.Second)},
		{MessageID: "m-2", AuthorID: "bot", FromBot: true, Content: "bot reply", Timestamp: base.Add(20 * time.Second)},
		{MessageID: "m-3", AuthorID: "u-1", Content: "are you there?", Timestamp: base.Add(30 * time.Second)},
	}

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "u-1", "proc-1", "m-3", "are you there?"))
	require.NoError(t, err)
	require.NotNil(t, res)

	turns, err := f.ops.GetRecentTurns("u-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3, "missed user message, bot reply, and trigger")
	assert.Equal(t, "missed while down", turns[0].Content)
	assert.Equal(t, proto.TurnAuthorAgent, turns[1].Author)
	assert.Equal(t, "are you there?", turns[2].Content)

	got, err := f.ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, "m-3", got.Conversation.LastProcessedMessageID)
}

func TestLostCursorRaceDropsTurn(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentSocialGreeting))
	app := f.seed(t, proto.StepGeneralListening, "")

	// Another path advances the cursor between load and CAS.
	state := app.Conversation
	state.LastProcessedMessageID = "m-raced"
	require.NoError(t, f.ops.UpdateConversationState("u-1", &state))

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "u-1", "proc-1", "m-1", "hello"))
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, 0, f.cls.Calls(), "losing the race must not spend a classification")
}

func TestClassifierHistoryExcludesTrigger(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentGeneralQuestion))
	f.seed(t, proto.StepGeneralListening, "")

	history := f.svc.history("u-1", "m-1")
	assert.Empty(t, history)

	_, err := f.ops.AppendTurn(&persistence.Turn{
		ID: "t-1", UserID: "u-1", ChannelID: "proc-1",
		Author: proto.TurnAuthorUser, Content: "first", ExternalMessageID: "m-0",
		CreatedAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)
	_, err = f.ops.AppendTurn(&persistence.Turn{
		ID: "t-2", UserID: "u-1", ChannelID: "proc-1",
		Author: proto.TurnAuthorUser, Content: "second", ExternalMessageID: "m-1",
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	history = f.svc.history("u-1", "m-1")
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0].Content)
}

func TestIdleConversationReopens(t *testing.T) {
	f := newRehydrateFixture(t, testkit.Classified(proto.IntentGeneralQuestion))
	f.seed(t, proto.StepIdle, "")

	res, err := f.svc.OnInboundMessage(context.Background(),
		testkit.MessageEvent("g-1", "u-1", "proc-1", "m-1", "one more question"))
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, proto.StepGeneralListening, res.Outcome.NextStep)
}

package gate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/testkit"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/waiter"
)

type gateFixture struct {
	gate    *Gate
	ops     *persistence.DatabaseOperations
	plat    *testkit.FakePlatform
	waiters *waiter.Registry
	cfg     config.Config
}

func newGateFixture(t *testing.T, mutate ...func(*config.Config)) *gateFixture {
	t.Helper()

	require.NoError(t, persistence.Reset())
	require.NoError(t, persistence.Initialize(filepath.Join(t.TempDir(), "test.db")))
	t.Cleanup(func() { _ = persistence.Reset() })
	ops := persistence.Ops()

	cfg := config.Config{
		Guild:          config.GuildConfig{ID: "g-1", Name: "Wraiven"},
		Roles:          config.RolesConfig{Outsider: "r-out", Friend: "r-friend", Recruiter: "r-rec", Bot: "r-bot"},
		Categories:     config.CategoriesConfig{CityGates: "City Gates", Tickets: "Recruitment Tickets"},
		StaffChannelID: "staff-chan",
		Timeouts:       config.TimeoutsConfig{InitialResponseSec: 900},
		Cleanup:        config.CleanupConfig{Hour: 4, InactiveHours: 48, StaffDigest: true},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	plat := testkit.NewFakePlatform()
	waiters := waiter.NewRegistry(func(string, proto.WaiterKind) {})
	t.Cleanup(waiters.Shutdown)

	return &gateFixture{
		gate:    New(effect.NewRuntime(plat, cfg), ops, waiters, renderer, cfg),
		ops:     ops,
		plat:    plat,
		waiters: waiters,
		cfg:     cfg,
	}
}

func TestJoinBootstrapsNewMember(t *testing.T) {
	f := newGateFixture(t)

	ev := testkit.JoinEvent("g-1", "u-1", "NewFriend", 90*24*time.Hour)
	require.NoError(t, f.gate.OnMemberJoined(context.Background(), ev))

	require.Len(t, f.plat.CreatedChannels, 1)
	spec := f.plat.CreatedChannels[0]
	assert.Equal(t, "processing-newfriend", spec.Name)
	assert.Equal(t, "City Gates", spec.CategoryName)
	assert.Equal(t, []string{"u-1"}, spec.MemberIDs)
	assert.Contains(t, spec.RoleIDs, "r-rec")

	assert.Contains(t, f.plat.RoleChanges, testkit.RoleChange{UserID: "u-1", RoleID: "r-out", Granted: true})

	app, err := f.ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, proto.StepAwaitingInitial, app.Conversation.CurrentStep)
	assert.Equal(t, proto.WaiterInitialResponse, app.Conversation.ActiveWaiter)
	require.NotNil(t, app.Conversation.TimeoutAt)

	welcome := f.plat.MessagesTo(app.ChannelID)
	require.Len(t, welcome, 1)
	assert.Contains(t, welcome[0].Content, "Welcome to Wraiven")

	// The greeting is part of the conversation record.
	turns, err := f.ops.GetRecentTurns("u-1", 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, proto.TurnAuthorAgent, turns[0].Author)

	kind, _, active := f.waiters.Active("u-1")
	require.True(t, active)
	assert.Equal(t, proto.WaiterInitialResponse, kind)
}

func TestJoinRejectsYoungAccount(t *testing.T) {
	f := newGateFixture(t, func(c *config.Config) { c.MinAccountAgeDays = 7 })

	ev := testkit.JoinEvent("g-1", "u-1", "Fresh", 24*time.Hour)
	require.NoError(t, f.gate.OnMemberJoined(context.Background(), ev))

	require.Len(t, f.plat.DirectMessages, 1)
	assert.Contains(t, f.plat.DirectMessages[0].Content, "7 days old")
	assert.Contains(t, f.plat.Kicked, "u-1/account below minimum age")
	require.Len(t, f.plat.MessagesTo("staff-chan"), 1)

	assert.Empty(t, f.plat.CreatedChannels, "no bootstrap for rejected accounts")
	_, err := f.ops.GetApplicant("u-1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestJoinOldEnoughAccountPasses(t *testing.T) {
	f := newGateFixture(t, func(c *config.Config) { c.MinAccountAgeDays = 7 })

	ev := testkit.JoinEvent("g-1", "u-1", "Veteran", 30*24*time.Hour)
	require.NoError(t, f.gate.OnMemberJoined(context.Background(), ev))

	assert.Empty(t, f.plat.Kicked)
	assert.Len(t, f.plat.CreatedChannels, 1)
}

func TestRejoinRestoresMember(t *testing.T) {
	f := newGateFixture(t)

	// First visit, then departure.
	require.NoError(t, f.gate.OnMemberJoined(context.Background(),
		testkit.JoinEvent("g-1", "u-1", "Boomerang", 90*24*time.Hour)))
	require.NoError(t, f.gate.OnMemberLeft(context.Background(),
		testkit.LeaveEvent("g-1", "u-1", "Boomerang")))

	require.NoError(t, f.gate.OnMemberJoined(context.Background(),
		testkit.JoinEvent("g-1", "u-1", "Boomerang", 90*24*time.Hour)))

	app, err := f.ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.NotEmpty(t, app.ChannelID, "processing channel must be reopened")
	assert.Equal(t, proto.StepAwaitingInitial, app.Conversation.CurrentStep)
	assert.Equal(t, proto.CommunityPending, app.CommunityStatus, "departure status cleared")
	assert.Len(t, f.plat.CreatedChannels, 2)

	back := f.plat.MessagesTo(app.ChannelID)
	require.NotEmpty(t, back)
	assert.Contains(t, back[len(back)-1].Content, "Welcome back")
}

func TestRejoinVouchedMemberGetsFriendRole(t *testing.T) {
	f := newGateFixture(t)

	require.NoError(t, f.gate.OnMemberJoined(context.Background(),
		testkit.JoinEvent("g-1", "u-1", "Vouched", 90*24*time.Hour)))
	accepted := proto.CommunityVouchAccept
	require.NoError(t, f.ops.UpdateStatuses("u-1", &persistence.UpdateStatusesRequest{
		CommunityStatus: &accepted,
	}))

	require.NoError(t, f.gate.OnMemberJoined(context.Background(),
		testkit.JoinEvent("g-1", "u-1", "Vouched", 90*24*time.Hour)))

	assert.Contains(t, f.plat.RoleChanges, testkit.RoleChange{UserID: "u-1", RoleID: "r-friend", Granted: true})
}

func TestLeaveCleansUp(t *testing.T) {
	f := newGateFixture(t)

	require.NoError(t, f.gate.OnMemberJoined(context.Background(),
		testkit.JoinEvent("g-1", "u-1", "Leaver", 90*24*time.Hour)))
	app, err := f.ops.GetApplicant("u-1")
	require.NoError(t, err)

	require.NoError(t, f.gate.OnMemberLeft(context.Background(),
		testkit.LeaveEvent("g-1", "u-1", "Leaver")))

	assert.Contains(t, f.plat.DeletedChannels, app.ChannelID)

	got, err := f.ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, proto.CommunityLeft, got.CommunityStatus)
	assert.Empty(t, got.ChannelID)
	assert.Equal(t, proto.StepIdle, got.Conversation.CurrentStep)

	_, _, active := f.waiters.Active("u-1")
	assert.False(t, active)
}

func TestLeaveUnknownMemberIsNoop(t *testing.T) {
	f := newGateFixture(t)

	require.NoError(t, f.gate.OnMemberLeft(context.Background(),
		testkit.LeaveEvent("g-1", "ghost", "Ghost")))
	assert.Empty(t, f.plat.DeletedChannels)
}

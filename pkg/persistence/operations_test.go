package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
)

// createTestDB initializes a fresh database in a temp dir and returns ops.
func createTestDB(t *testing.T) *DatabaseOperations {
	t.Helper()

	require.NoError(t, Reset())
	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, Initialize(dbPath))
	t.Cleanup(func() { _ = Reset() })

	return Ops()
}

func testApplicant(userID string) *Applicant {
	now := time.Now().UTC().Truncate(time.Second)
	return &Applicant{
		UserID:            userID,
		Username:          "grimbold",
		GuildID:           "g-1",
		ChannelID:         "chan-" + userID,
		ApplicationStatus: proto.ApplicationPending,
		CommunityStatus:   proto.CommunityPending,
		JoinedAt:          now,
		LastActivityAt:    now,
		Conversation:      IdleState(now),
	}
}

func TestUpsertAndGetApplicant(t *testing.T) {
	ops := createTestDB(t)

	a := testApplicant("u-1")
	a.Conversation.CurrentStep = proto.StepAwaitingInitial
	a.Conversation.ActiveWaiter = proto.WaiterInitialResponse
	deadline := time.Now().UTC().Add(5 * time.Minute).Truncate(time.Second)
	a.Conversation.TimeoutAt = &deadline
	require.NoError(t, ops.UpsertApplicant(a))

	got, err := ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, "grimbold", got.Username)
	assert.Equal(t, proto.StepAwaitingInitial, got.Conversation.CurrentStep)
	assert.Equal(t, proto.WaiterInitialResponse, got.Conversation.ActiveWaiter)
	require.NotNil(t, got.Conversation.TimeoutAt)
	assert.WithinDuration(t, deadline, *got.Conversation.TimeoutAt, time.Second)

	// Upsert again with cleared waiter.
	a.Conversation = IdleState(time.Now().UTC())
	require.NoError(t, ops.UpsertApplicant(a))
	got, err = ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, proto.StepIdle, got.Conversation.CurrentStep)
	assert.Nil(t, got.Conversation.TimeoutAt, "cleared waiter must clear timeout_at")
}

func TestGetApplicantNotFound(t *testing.T) {
	ops := createTestDB(t)

	_, err := ops.GetApplicant("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetApplicantByChannel(t *testing.T) {
	ops := createTestDB(t)

	a := testApplicant("u-1")
	a.TicketChannelID = "ticket-1"
	require.NoError(t, ops.UpsertApplicant(a))

	got, err := ops.GetApplicantByChannel("chan-u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)

	got, err = ops.GetApplicantByChannel("ticket-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)

	_, err = ops.GetApplicantByChannel("chan-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateConversationState(t *testing.T) {
	ops := createTestDB(t)
	require.NoError(t, ops.UpsertApplicant(testApplicant("u-1")))

	state := &ConversationState{
		CurrentStep:            proto.StepAwaitingClarification,
		ActiveWaiter:           proto.WaiterClarification,
		StepEntryTime:          time.Now().UTC(),
		AttemptCount:           2,
		LastIntent:             proto.IntentUnclear,
		LastProcessedMessageID: "m-9",
	}
	require.NoError(t, ops.UpdateConversationState("u-1", state))

	got, err := ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Conversation.AttemptCount)
	assert.Equal(t, proto.IntentUnclear, got.Conversation.LastIntent)
	assert.Equal(t, "m-9", got.Conversation.LastProcessedMessageID)

	err = ops.UpdateConversationState("ghost", state)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdvanceProcessedMessageCAS(t *testing.T) {
	ops := createTestDB(t)
	require.NoError(t, ops.UpsertApplicant(testApplicant("u-1")))

	ok, err := ops.AdvanceProcessedMessage("u-1", "", "m-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale prev loses the race.
	ok, err = ops.AdvanceProcessedMessage("u-1", "", "m-2")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = ops.AdvanceProcessedMessage("u-1", "m-1", "m-2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAppendTurnIdempotent(t *testing.T) {
	ops := createTestDB(t)
	require.NoError(t, ops.UpsertApplicant(testApplicant("u-1")))

	turn := &Turn{
		ID:                utils.NewID(),
		UserID:            "u-1",
		ChannelID:         "chan-u-1",
		Author:            proto.TurnAuthorUser,
		Content:           "hi, I want to apply",
		ExternalMessageID: "m-1",
	}
	inserted, err := ops.AppendTurn(turn)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Same external id, different row id: must be ignored.
	turn.ID = utils.NewID()
	inserted, err = ops.AppendTurn(turn)
	require.NoError(t, err)
	assert.False(t, inserted)

	has, err := ops.HasTurn("m-1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = ops.HasTurn("m-404")
	require.NoError(t, err)
	assert.False(t, has)

	turns, err := ops.GetRecentTurns("u-1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "hi, I want to apply", turns[0].Content)
}

func TestGetRecentTurnsOrderAndLimit(t *testing.T) {
	ops := createTestDB(t)
	require.NoError(t, ops.UpsertApplicant(testApplicant("u-1")))

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := ops.AppendTurn(&Turn{
			ID:                utils.NewID(),
			UserID:            "u-1",
			ChannelID:         "chan-u-1",
			Author:            proto.TurnAuthorUser,
			Content:           string(rune('a' + i)),
			ExternalMessageID: utils.NewID(),
			CreatedAt:         base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	turns, err := ops.GetRecentTurns("u-1", 3)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	// Most recent three, oldest first.
	assert.Equal(t, "c", turns[0].Content)
	assert.Equal(t, "e", turns[2].Content)
}

func TestUpdateStatuses(t *testing.T) {
	ops := createTestDB(t)
	require.NoError(t, ops.UpsertApplicant(testApplicant("u-1")))

	comm := proto.CommunityVouchAccept
	voucher := "friend-9"
	require.NoError(t, ops.UpdateStatuses("u-1", &UpdateStatusesRequest{
		CommunityStatus: &comm,
		VouchedBy:       &voucher,
	}))

	got, err := ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, proto.CommunityVouchAccept, got.CommunityStatus)
	assert.Equal(t, "friend-9", got.VouchedBy)
	assert.Equal(t, proto.ApplicationPending, got.ApplicationStatus, "untouched fields stay")
}

func TestMarkDeparted(t *testing.T) {
	ops := createTestDB(t)

	a := testApplicant("u-1")
	a.Conversation.CurrentStep = proto.StepGeneralListening
	a.Conversation.ActiveWaiter = proto.WaiterGeneral
	deadline := time.Now().UTC().Add(time.Hour)
	a.Conversation.TimeoutAt = &deadline
	require.NoError(t, ops.UpsertApplicant(a))

	require.NoError(t, ops.MarkDeparted("u-1", time.Now().UTC()))

	got, err := ops.GetApplicant("u-1")
	require.NoError(t, err)
	assert.Equal(t, proto.ApplicationLeft, got.ApplicationStatus)
	assert.Equal(t, proto.CommunityLeft, got.CommunityStatus)
	assert.Empty(t, got.ChannelID)
	assert.Equal(t, proto.StepIdle, got.Conversation.CurrentStep)
	assert.Nil(t, got.Conversation.TimeoutAt)
}

func TestListStaleApplicants(t *testing.T) {
	ops := createTestDB(t)

	stale := testApplicant("u-stale")
	stale.LastActivityAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, ops.UpsertApplicant(stale))

	fresh := testApplicant("u-fresh")
	require.NoError(t, ops.UpsertApplicant(fresh))

	gone := testApplicant("u-gone")
	gone.ChannelID = ""
	gone.LastActivityAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, ops.UpsertApplicant(gone))

	got, err := ops.ListStaleApplicants(time.Now().UTC().Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u-stale", got[0].UserID)
}

func TestListExpiredWaiters(t *testing.T) {
	ops := createTestDB(t)

	expired := testApplicant("u-expired")
	expired.Conversation.CurrentStep = proto.StepAwaitingClarification
	expired.Conversation.ActiveWaiter = proto.WaiterClarification
	past := time.Now().UTC().Add(-time.Minute)
	expired.Conversation.TimeoutAt = &past
	require.NoError(t, ops.UpsertApplicant(expired))

	armed := testApplicant("u-armed")
	armed.Conversation.ActiveWaiter = proto.WaiterGeneral
	future := time.Now().UTC().Add(time.Hour)
	armed.Conversation.TimeoutAt = &future
	require.NoError(t, ops.UpsertApplicant(armed))

	idle := testApplicant("u-idle")
	require.NoError(t, ops.UpsertApplicant(idle))

	got, err := ops.ListExpiredWaiters(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u-expired", got[0].UserID)
}

func TestSchemaVersion(t *testing.T) {
	createTestDB(t)

	version, err := GetSchemaVersion(GetDB())
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

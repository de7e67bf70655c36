package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
)

type staticDigest struct {
	body string
	err  error
}

func (d *staticDigest) Digest(context.Context) (string, error) { return d.body, d.err }

func newSweeper(t *testing.T, f *gateFixture, digest DigestSource) *Sweeper {
	t.Helper()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)
	return NewSweeper(effect.NewRuntime(f.plat, f.cfg), f.ops, f.waiters, renderer, f.cfg, digest)
}

func seedStale(t *testing.T, f *gateFixture, userID string, idle time.Duration, step proto.Step) *persistence.Applicant {
	t.Helper()
	now := time.Now().UTC()
	app := &persistence.Applicant{
		UserID:            userID,
		Username:          "stale-" + userID,
		GuildID:           "g-1",
		ChannelID:         "proc-" + userID,
		ApplicationStatus: proto.ApplicationPending,
		CommunityStatus:   proto.CommunityPending,
		JoinedAt:          now.Add(-idle),
		LastActivityAt:    now.Add(-idle),
		Conversation:      persistence.IdleState(now.Add(-idle)),
	}
	app.Conversation.CurrentStep = step
	require.NoError(t, f.ops.UpsertApplicant(app))
	return app
}

func TestSweepRetiresInactiveChannels(t *testing.T) {
	f := newGateFixture(t)
	s := newSweeper(t, f, nil)

	stale := seedStale(t, f, "u-old", 72*time.Hour, proto.StepGeneralListening)
	fresh := seedStale(t, f, "u-new", time.Hour, proto.StepGeneralListening)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, f.plat.DeletedChannels, stale.ChannelID)
	assert.NotContains(t, f.plat.DeletedChannels, fresh.ChannelID)

	got, err := f.ops.GetApplicant("u-old")
	require.NoError(t, err)
	assert.Empty(t, got.ChannelID)
	assert.Equal(t, proto.StepIdle, got.Conversation.CurrentStep)
}

func TestSweepSkipsActiveVouch(t *testing.T) {
	f := newGateFixture(t)
	s := newSweeper(t, f, nil)

	vouching := seedStale(t, f, "u-vouch", 72*time.Hour, proto.StepVouchActive)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NotContains(t, f.plat.DeletedChannels, vouching.ChannelID)
}

func TestSweepPostsDigest(t *testing.T) {
	f := newGateFixture(t)
	s := newSweeper(t, f, &staticDigest{body: "Classifier: 42 requests, 1 degraded."})

	seedStale(t, f, "u-old", 72*time.Hour, proto.StepGeneralListening)

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	staff := f.plat.MessagesTo("staff-chan")
	require.Len(t, staff, 1)
	assert.Contains(t, staff[0].Content, "daily recruitment sweep")
	assert.Contains(t, staff[0].Content, "stale-u-old")
	assert.Contains(t, staff[0].Content, "42 requests")
}

func TestSweepDigestSourceFailureStillPosts(t *testing.T) {
	f := newGateFixture(t)
	s := newSweeper(t, f, &staticDigest{err: errors.New("prometheus down")})

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	staff := f.plat.MessagesTo("staff-chan")
	require.Len(t, staff, 1)
	assert.Contains(t, staff[0].Content, "No stale channels today")
}

func TestSweepDigestDisabled(t *testing.T) {
	f := newGateFixture(t, func(c *config.Config) { c.Cleanup.StaffDigest = false })
	s := newSweeper(t, f, nil)

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.plat.MessagesTo("staff-chan"))
}

func TestNextRunSchedule(t *testing.T) {
	f := newGateFixture(t)
	s := newSweeper(t, f, nil)

	base := time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC)
	next := s.nextRun(base)
	assert.Equal(t, time.Date(2025, 6, 1, 4, 0, 0, 0, time.UTC), next)

	afterHour := time.Date(2025, 6, 1, 5, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 4, 0, 0, 0, time.UTC), s.nextRun(afterHour))
}

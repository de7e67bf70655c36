package gate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/effect"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/logx"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/templates"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/waiter"
)

// DigestSource provides the activity summary appended to the sweep digest.
// The metrics query service implements it; a nil source skips the summary.
type DigestSource interface {
	Digest(ctx context.Context) (string, error)
}

// Sweeper retires processing channels that have gone quiet.
type Sweeper struct {
	runtime  effect.Runtime
	ops      *persistence.DatabaseOperations
	waiters  *waiter.Registry
	renderer *templates.Renderer
	cfg      config.Config
	digest   DigestSource
	logger   *logx.Logger
}

// NewSweeper creates a sweeper. digest may be nil.
func NewSweeper(runtime effect.Runtime, ops *persistence.DatabaseOperations, waiters *waiter.Registry, renderer *templates.Renderer, cfg config.Config, digest DigestSource) *Sweeper {
	return &Sweeper{
		runtime:  runtime,
		ops:      ops,
		waiters:  waiters,
		renderer: renderer,
		cfg:      cfg,
		digest:   digest,
		logger:   logx.NewLogger("sweeper"),
	}
}

// Run sweeps once a day at the configured hour until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	for {
		wait := time.Until(s.nextRun(time.Now()))
		s.logger.Info("🧹 next sweep in %s", wait.Round(time.Minute))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Error("sweep failed: %v", err)
		}
	}
}

// nextRun returns the next occurrence of the configured sweep hour.
func (s *Sweeper) nextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.Cleanup.Hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Sweep retires processing channels inactive beyond the cutoff and posts
// the staff digest. Returns how many channels were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.Cleanup.InactiveHours) * time.Hour)
	stale, err := s.ops.ListStaleApplicants(cutoff)
	if err != nil {
		return 0, err
	}

	var swept []string
	for _, app := range stale {
		// Vouches run on their own deadline, leave them to the waiter.
		if app.Conversation.CurrentStep.SubWorkflow() {
			continue
		}

		s.waiters.Cancel(app.UserID)
		if _, err := (&effect.DeleteChannelEffect{ChannelID: app.ChannelID}).Execute(ctx, s.runtime); err != nil {
			s.logger.Error("failed to retire channel %s: %v", app.ChannelID, err)
			continue
		}

		empty := ""
		if err := s.ops.UpdateStatuses(app.UserID, &persistence.UpdateStatusesRequest{ChannelID: &empty}); err != nil {
			s.logger.Error("failed to clear channel binding for %s: %v", app.UserID, err)
			continue
		}
		idle := persistence.IdleState(time.Now().UTC())
		if err := s.ops.UpdateConversationState(app.UserID, &idle); err != nil {
			s.logger.Error("failed to park conversation for %s: %v", app.UserID, err)
		}
		swept = append(swept, app.Username)
	}

	s.logger.Info("🧹 sweep done, %d channel(s) retired", len(swept))
	if s.cfg.Cleanup.StaffDigest {
		s.postDigest(ctx, swept)
	}
	return len(swept), nil
}

// postDigest assembles and posts the staff summary for one sweep.
func (s *Sweeper) postDigest(ctx context.Context, swept []string) {
	var b strings.Builder
	if len(swept) == 0 {
		b.WriteString("No stale channels today.")
	} else {
		fmt.Fprintf(&b, "Retired %d stale channel(s): %s.", len(swept), strings.Join(swept, ", "))
	}

	if s.digest != nil {
		summary, err := s.digest.Digest(ctx)
		if err != nil {
			s.logger.Warn("digest source failed: %v", err)
		} else if summary != "" {
			b.WriteString("\n\n")
			b.WriteString(summary)
		}
	}

	content, err := s.renderer.Render(templates.StaffDigestTemplate, &templates.MessageData{
		StaffMention: roleMention(s.cfg.Roles.Recruiter),
		DigestBody:   b.String(),
	})
	if err != nil {
		s.logger.Error("failed to render digest: %v", err)
		return
	}
	if _, err := (&effect.StaffNoticeEffect{Content: content}).Execute(ctx, s.runtime); err != nil {
		s.logger.Error("failed to post digest: %v", err)
	}
}

func roleMention(roleID string) string {
	if roleID == "" {
		return "@here"
	}
	return "<@&" + roleID + ">"
}

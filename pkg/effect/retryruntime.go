package effect

import (
	"context"
	"fmt"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/platform"
)

const retryPause = 2 * time.Second

// RetryRuntime wraps a Runtime and retries channel and role mutations once
// after a short pause. A mutation that fails twice posts a staff notice so a
// human can finish the action by hand; the state machine never blocks on it.
// Message sends are not retried, the reply path handles its own failures.
type RetryRuntime struct {
	Runtime
	pause time.Duration
}

// NewRetryRuntime wraps inner with mutation retries.
func NewRetryRuntime(inner Runtime) *RetryRuntime {
	return &RetryRuntime{Runtime: inner, pause: retryPause}
}

// CreateChannel implements Platform.
func (r *RetryRuntime) CreateChannel(ctx context.Context, spec platform.ChannelSpec) (string, error) {
	id, err := r.Runtime.CreateChannel(ctx, spec)
	if err == nil {
		return id, nil
	}
	if !sleepCtx(ctx, r.pause) {
		return "", err
	}
	id, retryErr := r.Runtime.CreateChannel(ctx, spec)
	if retryErr != nil {
		r.notifyStaff(ctx, fmt.Sprintf("create channel **%s**", spec.Name), retryErr)
		return "", retryErr
	}
	return id, nil
}

// DeleteChannel implements Platform.
func (r *RetryRuntime) DeleteChannel(ctx context.Context, channelID string) error {
	return r.retryMutation(ctx, fmt.Sprintf("delete channel <#%s>", channelID), func() error {
		return r.Runtime.DeleteChannel(ctx, channelID)
	})
}

// AllowChannelAccess implements Platform.
func (r *RetryRuntime) AllowChannelAccess(ctx context.Context, channelID, userID string) error {
	return r.retryMutation(ctx, fmt.Sprintf("grant <@%s> access to <#%s>", userID, channelID), func() error {
		return r.Runtime.AllowChannelAccess(ctx, channelID, userID)
	})
}

// GrantRole implements Platform.
func (r *RetryRuntime) GrantRole(ctx context.Context, userID, roleID string) error {
	return r.retryMutation(ctx, fmt.Sprintf("grant role <@&%s> to <@%s>", roleID, userID), func() error {
		return r.Runtime.GrantRole(ctx, userID, roleID)
	})
}

// RevokeRole implements Platform.
func (r *RetryRuntime) RevokeRole(ctx context.Context, userID, roleID string) error {
	return r.retryMutation(ctx, fmt.Sprintf("revoke role <@&%s> from <@%s>", roleID, userID), func() error {
		return r.Runtime.RevokeRole(ctx, userID, roleID)
	})
}

func (r *RetryRuntime) retryMutation(ctx context.Context, action string, do func() error) error {
	err := do()
	if err == nil {
		return nil
	}
	if !sleepCtx(ctx, r.pause) {
		return err
	}
	if retryErr := do(); retryErr != nil {
		r.notifyStaff(ctx, action, retryErr)
		return retryErr
	}
	return nil
}

func (r *RetryRuntime) notifyStaff(ctx context.Context, action string, err error) {
	r.Error("platform mutation failed twice (%s): %v", action, err)
	staff := r.StaffChannelID()
	if staff == "" {
		return
	}
	msg := fmt.Sprintf("⚠️ I couldn't %s after retrying. Someone may need to do it manually. (%v)", action, err)
	if _, sendErr := r.SendMessage(ctx, staff, msg); sendErr != nil {
		r.Error("staff notice for failed mutation also failed: %v", sendErr)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package effect

import (
	"context"
	"fmt"
)

// GrantRoleEffect adds a role to a guild member.
type GrantRoleEffect struct {
	UserID string
	RoleID string
}

// Execute implements Effect.
func (e *GrantRoleEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	if err := runtime.GrantRole(ctx, e.UserID, e.RoleID); err != nil {
		return nil, fmt.Errorf("failed to grant role: %w", err)
	}
	runtime.Info("🎖️ granted role %s to %s", e.RoleID, e.UserID)
	return nil, nil
}

// Type implements Effect.
func (e *GrantRoleEffect) Type() string { return "grant_role" }

// RevokeRoleEffect removes a role from a guild member.
type RevokeRoleEffect struct {
	UserID string
	RoleID string
}

// Execute implements Effect.
func (e *RevokeRoleEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	if err := runtime.RevokeRole(ctx, e.UserID, e.RoleID); err != nil {
		return nil, fmt.Errorf("failed to revoke role: %w", err)
	}
	runtime.Info("🎖️ revoked role %s from %s", e.RoleID, e.UserID)
	return nil, nil
}

// Type implements Effect.
func (e *RevokeRoleEffect) Type() string { return "revoke_role" }

// KickMemberEffect removes a member from the guild, used by the account
// age gate.
type KickMemberEffect struct {
	UserID string
	Reason string
}

// Execute implements Effect.
func (e *KickMemberEffect) Execute(ctx context.Context, runtime Runtime) (any, error) {
	if err := runtime.KickMember(ctx, e.UserID, e.Reason); err != nil {
		return nil, fmt.Errorf("failed to kick %s: %w", e.UserID, err)
	}
	runtime.Info("🚪 kicked %s (%s)", e.UserID, e.Reason)
	return nil, nil
}

// Type implements Effect.
func (e *KickMemberEffect) Type() string { return "kick_member" }

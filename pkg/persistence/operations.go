package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DatabaseOperations provides methods for database operations.
type DatabaseOperations struct {
	db *sql.DB
}

// NewDatabaseOperations creates a new DatabaseOperations instance.
func NewDatabaseOperations(db *sql.DB) *DatabaseOperations {
	return &DatabaseOperations{db: db}
}

const applicantColumns = `
	user_id, username, guild_id, channel_id, ticket_channel_id, member_role,
	application_status, community_status, vouched_by, joined_at, last_activity_at,
	current_step, active_waiter, step_entry_time, timeout_at, attempt_count,
	last_intent, last_processed_message_id, vouch_initiator_id, created_at, updated_at`

// UpsertApplicant inserts or updates an applicant record, conversation state
// included.
func (ops *DatabaseOperations) UpsertApplicant(a *Applicant) error {
	query := `
		INSERT INTO applicants (
			user_id, username, guild_id, channel_id, ticket_channel_id, member_role,
			application_status, community_status, vouched_by, joined_at, last_activity_at,
			current_step, active_waiter, step_entry_time, timeout_at, attempt_count,
			last_intent, last_processed_message_id, vouch_initiator_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			guild_id = excluded.guild_id,
			channel_id = excluded.channel_id,
			ticket_channel_id = excluded.ticket_channel_id,
			member_role = excluded.member_role,
			application_status = excluded.application_status,
			community_status = excluded.community_status,
			vouched_by = excluded.vouched_by,
			joined_at = excluded.joined_at,
			last_activity_at = excluded.last_activity_at,
			current_step = excluded.current_step,
			active_waiter = excluded.active_waiter,
			step_entry_time = excluded.step_entry_time,
			timeout_at = excluded.timeout_at,
			attempt_count = excluded.attempt_count,
			last_intent = excluded.last_intent,
			last_processed_message_id = excluded.last_processed_message_id,
			vouch_initiator_id = excluded.vouch_initiator_id,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
	`

	var timeoutAt interface{}
	if a.Conversation.TimeoutAt != nil {
		timeoutAt = *a.Conversation.TimeoutAt
	}

	_, err := ops.db.Exec(query,
		a.UserID, a.Username, a.GuildID, a.ChannelID, a.TicketChannelID, a.MemberRole,
		string(a.ApplicationStatus), string(a.CommunityStatus), a.VouchedBy,
		a.JoinedAt, a.LastActivityAt,
		string(a.Conversation.CurrentStep), string(a.Conversation.ActiveWaiter),
		a.Conversation.StepEntryTime, timeoutAt, a.Conversation.AttemptCount,
		string(a.Conversation.LastIntent), a.Conversation.LastProcessedMessageID,
		a.Conversation.VouchInitiatorID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert applicant %s: %w", a.UserID, err)
	}
	return nil
}

// GetApplicant returns the applicant for a user, or ErrNotFound.
func (ops *DatabaseOperations) GetApplicant(userID string) (*Applicant, error) {
	row := ops.db.QueryRow(
		`SELECT `+applicantColumns+` FROM applicants WHERE user_id = ?`, userID)
	return scanApplicant(row, userID)
}

// GetApplicantByChannel returns the applicant whose processing or ticket
// channel matches channelID, or ErrNotFound.
func (ops *DatabaseOperations) GetApplicantByChannel(channelID string) (*Applicant, error) {
	row := ops.db.QueryRow(
		`SELECT `+applicantColumns+` FROM applicants WHERE channel_id = ? OR ticket_channel_id = ?`,
		channelID, channelID)
	return scanApplicant(row, channelID)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplicant(row rowScanner, key string) (*Applicant, error) {
	var (
		a                              Applicant
		appStatus, commStatus          string
		step, waiter, intent           string
		joinedAt, lastActivity         sql.NullTime
		stepEntry, timeoutAt           sql.NullTime
		createdAt, updatedAt           sql.NullTime
	)

	err := row.Scan(
		&a.UserID, &a.Username, &a.GuildID, &a.ChannelID, &a.TicketChannelID, &a.MemberRole,
		&appStatus, &commStatus, &a.VouchedBy, &joinedAt, &lastActivity,
		&step, &waiter, &stepEntry, &timeoutAt, &a.Conversation.AttemptCount,
		&intent, &a.Conversation.LastProcessedMessageID, &a.Conversation.VouchInitiatorID,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("applicant %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan applicant %s: %w", key, err)
	}

	a.ApplicationStatus = proto.ApplicationStatus(appStatus)
	a.CommunityStatus = proto.CommunityStatus(commStatus)
	a.Conversation.CurrentStep = proto.Step(step)
	a.Conversation.ActiveWaiter = proto.WaiterKind(waiter)
	a.Conversation.LastIntent = proto.Intent(intent)
	a.JoinedAt = joinedAt.Time
	a.LastActivityAt = lastActivity.Time
	a.Conversation.StepEntryTime = stepEntry.Time
	if timeoutAt.Valid {
		t := timeoutAt.Time
		a.Conversation.TimeoutAt = &t
	}
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updatedAt.Time
	return &a, nil
}

// UpdateConversationState overwrites the conversation state columns for a user.
func (ops *DatabaseOperations) UpdateConversationState(userID string, state *ConversationState) error {
	var timeoutAt interface{}
	if state.TimeoutAt != nil {
		timeoutAt = *state.TimeoutAt
	}

	result, err := ops.db.Exec(`
		UPDATE applicants SET
			current_step = ?,
			active_waiter = ?,
			step_entry_time = ?,
			timeout_at = ?,
			attempt_count = ?,
			last_intent = ?,
			last_processed_message_id = ?,
			vouch_initiator_id = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE user_id = ?`,
		string(state.CurrentStep), string(state.ActiveWaiter), state.StepEntryTime,
		timeoutAt, state.AttemptCount, string(state.LastIntent),
		state.LastProcessedMessageID, state.VouchInitiatorID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation state for %s: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("applicant %s: %w", userID, ErrNotFound)
	}
	return nil
}

// AdvanceProcessedMessage moves last_processed_message_id from prev to next
// atomically. A false return means another path already advanced past prev,
// so the caller must drop its turn.
func (ops *DatabaseOperations) AdvanceProcessedMessage(userID, prev, next string) (bool, error) {
	result, err := ops.db.Exec(`
		UPDATE applicants SET
			last_processed_message_id = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE user_id = ? AND last_processed_message_id = ?`,
		next, userID, prev,
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance processed message for %s: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// UpdateStatusesRequest carries optional status changes for one applicant.
// Nil fields are left untouched.
type UpdateStatusesRequest struct {
	ApplicationStatus *proto.ApplicationStatus
	CommunityStatus   *proto.CommunityStatus
	VouchedBy         *string
	MemberRole        *string
	TicketChannelID   *string
	ChannelID         *string
}

// UpdateStatuses applies the non-nil fields of req to an applicant row.
func (ops *DatabaseOperations) UpdateStatuses(userID string, req *UpdateStatusesRequest) error {
	setParts := []string{"updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')"}
	args := []interface{}{}

	if req.ApplicationStatus != nil {
		setParts = append(setParts, "application_status = ?")
		args = append(args, string(*req.ApplicationStatus))
	}
	if req.CommunityStatus != nil {
		setParts = append(setParts, "community_status = ?")
		args = append(args, string(*req.CommunityStatus))
	}
	if req.VouchedBy != nil {
		setParts = append(setParts, "vouched_by = ?")
		args = append(args, *req.VouchedBy)
	}
	if req.MemberRole != nil {
		setParts = append(setParts, "member_role = ?")
		args = append(args, *req.MemberRole)
	}
	if req.TicketChannelID != nil {
		setParts = append(setParts, "ticket_channel_id = ?")
		args = append(args, *req.TicketChannelID)
	}
	if req.ChannelID != nil {
		setParts = append(setParts, "channel_id = ?")
		args = append(args, *req.ChannelID)
	}

	args = append(args, userID)

	//nolint:gosec // Safe string concatenation, set parts are code constants
	query := `UPDATE applicants SET ` + strings.Join(setParts, ", ") + ` WHERE user_id = ?`

	result, err := ops.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update statuses for %s: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("applicant %s: %w", userID, ErrNotFound)
	}
	return nil
}

// TouchActivity bumps last_activity_at for the sweeper's inactivity cutoff.
func (ops *DatabaseOperations) TouchActivity(userID string, at time.Time) error {
	_, err := ops.db.Exec(`
		UPDATE applicants SET last_activity_at = ?,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE user_id = ?`, at, userID)
	if err != nil {
		return fmt.Errorf("failed to touch activity for %s: %w", userID, err)
	}
	return nil
}

// MarkDeparted records a member leaving: statuses LEFT_SERVER, channels
// cleared, conversation reset to idle.
func (ops *DatabaseOperations) MarkDeparted(userID string, now time.Time) error {
	result, err := ops.db.Exec(`
		UPDATE applicants SET
			application_status = ?,
			community_status = ?,
			channel_id = '',
			ticket_channel_id = '',
			current_step = ?,
			active_waiter = ?,
			step_entry_time = ?,
			timeout_at = NULL,
			attempt_count = 0,
			last_intent = '',
			vouch_initiator_id = '',
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE user_id = ?`,
		string(proto.ApplicationLeft), string(proto.CommunityLeft),
		string(proto.StepIdle), string(proto.WaiterNone), now, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %s departed: %w", userID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("applicant %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ListStaleApplicants returns applicants whose processing channel has been
// inactive since before the cutoff.
func (ops *DatabaseOperations) ListStaleApplicants(cutoff time.Time) ([]*Applicant, error) {
	rows, err := ops.db.Query(
		`SELECT `+applicantColumns+` FROM applicants
		 WHERE channel_id <> '' AND last_activity_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale applicants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Applicant
	for rows.Next() {
		a, err := scanApplicant(rows, "stale")
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("stale applicants iteration error: %w", err)
	}
	return out, nil
}

// ListArmedWaiters returns applicants with any waiter armed, regardless of
// deadline. Used on startup to rebuild the in-memory registry.
func (ops *DatabaseOperations) ListArmedWaiters() ([]*Applicant, error) {
	rows, err := ops.db.Query(
		`SELECT `+applicantColumns+` FROM applicants
		 WHERE active_waiter <> ? AND timeout_at IS NOT NULL`,
		string(proto.WaiterNone))
	if err != nil {
		return nil, fmt.Errorf("failed to query armed waiters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Applicant
	for rows.Next() {
		a, err := scanApplicant(rows, "armed")
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("armed waiters iteration error: %w", err)
	}
	return out, nil
}

// ListExpiredWaiters returns applicants whose armed waiter deadline passed
// before now. Used on startup to fire deadlines missed while down.
func (ops *DatabaseOperations) ListExpiredWaiters(now time.Time) ([]*Applicant, error) {
	rows, err := ops.db.Query(
		`SELECT `+applicantColumns+` FROM applicants
		 WHERE active_waiter <> ? AND timeout_at IS NOT NULL AND timeout_at < ?`,
		string(proto.WaiterNone), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired waiters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Applicant
	for rows.Next() {
		a, err := scanApplicant(rows, "expired")
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("expired waiters iteration error: %w", err)
	}
	return out, nil
}

// AppendTurn records one turn. Returns false when a turn with the same
// external message id already exists, which makes recording idempotent.
func (ops *DatabaseOperations) AppendTurn(t *Turn) (bool, error) {
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := ops.db.Exec(`
		INSERT OR IGNORE INTO turns (
			id, user_id, channel_id, author, content, external_message_id,
			classifier_output, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.ChannelID, string(t.Author), t.Content,
		t.ExternalMessageID, nullIfEmpty(t.ClassifierOutput), createdAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to append turn %s: %w", t.ExternalMessageID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// RecordClassifierOutput attaches the raw classifier JSON to an already
// recorded user turn, keyed by external message id.
func (ops *DatabaseOperations) RecordClassifierOutput(externalMessageID, output string) error {
	_, err := ops.db.Exec(
		`UPDATE turns SET classifier_output = ? WHERE external_message_id = ?`,
		nullIfEmpty(output), externalMessageID)
	if err != nil {
		return fmt.Errorf("failed to record classifier output for %s: %w", externalMessageID, err)
	}
	return nil
}

// HasTurn reports whether a turn with the external message id exists.
func (ops *DatabaseOperations) HasTurn(externalMessageID string) (bool, error) {
	var one int
	err := ops.db.QueryRow(
		`SELECT 1 FROM turns WHERE external_message_id = ?`, externalMessageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check turn %s: %w", externalMessageID, err)
	}
	return true, nil
}

// GetRecentTurns returns up to limit most recent turns for a user, oldest
// first.
func (ops *DatabaseOperations) GetRecentTurns(userID string, limit int) ([]*Turn, error) {
	rows, err := ops.db.Query(`
		SELECT id, user_id, channel_id, author, content, external_message_id,
		       COALESCE(classifier_output, ''), created_at
		FROM (
			SELECT * FROM turns WHERE user_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		) ORDER BY created_at ASC, id ASC`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns for %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Turn
	for rows.Next() {
		var (
			t         Turn
			author    string
			createdAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.ChannelID, &author, &t.Content,
			&t.ExternalMessageID, &t.ClassifierOutput, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Author = proto.TurnAuthor(author)
		t.CreatedAt = createdAt.Time
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("turns iteration error: %w", err)
	}
	return out, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

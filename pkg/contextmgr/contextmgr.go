// Package contextmgr manages conversation history and token budgeting for
// classifier requests.
package contextmgr

import (
	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
)

// DefaultMaxTurns is how much history callers load when the configuration
// does not say otherwise.
const DefaultMaxTurns = 20

// Manager bounds conversation history to a turn count and token budget so
// classifier prompts stay within model context limits.
type Manager struct {
	counter   *utils.TokenCounter
	maxTurns  int
	maxTokens int
}

// NewManager creates a context manager. counter may be nil, in which case a
// character-based token estimate is used.
func NewManager(counter *utils.TokenCounter, maxTurns, maxTokens int) *Manager {
	return &Manager{
		counter:   counter,
		maxTurns:  maxTurns,
		maxTokens: maxTokens,
	}
}

// Bound trims history to the configured turn and token budgets, keeping the
// most recent messages. Order is preserved.
func (m *Manager) Bound(history []proto.HistoryMessage) []proto.HistoryMessage {
	if len(history) == 0 {
		return nil
	}

	if m.maxTurns > 0 && len(history) > m.maxTurns {
		history = history[len(history)-m.maxTurns:]
	}

	if m.maxTokens <= 0 {
		return history
	}

	// Walk backwards so the newest messages survive a tight budget.
	total := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := m.counter.CountTokens(history[i].Content)
		if total+cost > m.maxTokens {
			break
		}
		total += cost
		start = i
	}

	if start == len(history) {
		// Even the newest message exceeds the budget; keep it anyway so the
		// classifier always sees the current turn's context.
		start = len(history) - 1
	}

	return history[start:]
}

// FromTurns converts persisted turns into classifier history messages.
func FromTurns(turns []*persistence.Turn) []proto.HistoryMessage {
	if len(turns) == 0 {
		return nil
	}

	history := make([]proto.HistoryMessage, 0, len(turns))
	for _, turn := range turns {
		role := "user"
		if turn.Author == proto.TurnAuthorAgent {
			role = "assistant"
		}
		history = append(history, proto.HistoryMessage{
			Role:    role,
			Content: turn.Content,
		})
	}
	return history
}

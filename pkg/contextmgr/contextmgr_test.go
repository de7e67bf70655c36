package contextmgr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/persistence"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

func historyOf(contents ...string) []proto.HistoryMessage {
	msgs := make([]proto.HistoryMessage, len(contents))
	for i, c := range contents {
		msgs[i] = proto.HistoryMessage{Role: "user", Content: c}
	}
	return msgs
}

func TestBoundByTurnCount(t *testing.T) {
	m := NewManager(nil, 2, 0)

	bounded := m.Bound(historyOf("a", "b", "c", "d"))
	require.Len(t, bounded, 2)
	assert.Equal(t, "c", bounded[0].Content)
	assert.Equal(t, "d", bounded[1].Content)
}

func TestBoundByTokenBudget(t *testing.T) {
	// nil counter estimates 4 chars per token, so each message costs 10 tokens.
	m := NewManager(nil, 0, 25)

	long := strings.Repeat("x", 40)
	bounded := m.Bound(historyOf(long, long, long))
	require.Len(t, bounded, 2)
}

func TestBoundKeepsNewestWhenOverBudget(t *testing.T) {
	m := NewManager(nil, 0, 1)

	bounded := m.Bound(historyOf(strings.Repeat("x", 400)))
	require.Len(t, bounded, 1)
}

func TestBoundEmpty(t *testing.T) {
	m := NewManager(nil, 5, 100)
	assert.Nil(t, m.Bound(nil))
}

func TestFromTurns(t *testing.T) {
	turns := []*persistence.Turn{
		{Author: proto.TurnAuthorUser, Content: "hello"},
		{Author: proto.TurnAuthorAgent, Content: "hi there"},
	}

	history := FromTurns(turns)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, "hi there", history[1].Content)
}

package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/contextmgr"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// scriptedClient returns a canned response or error and records the request.
type scriptedClient struct {
	response llm.CompletionResponse
	err      error
	lastReq  llm.CompletionRequest
}

func (s *scriptedClient) Complete(_ context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return llm.CompletionResponse{}, s.err
	}
	return s.response, nil
}

func (s *scriptedClient) GetModelName() string { return "scripted" }

func newTestService(client llm.Client) *Service {
	cfg := config.ClassifierConfig{MaxTokens: 512, Temperature: 0.3}
	history := contextmgr.NewManager(nil, 20, 4000)
	return NewService(client, history, nil, cfg)
}

func TestClassifyHappyPath(t *testing.T) {
	fake := &scriptedClient{response: llm.CompletionResponse{
		Content: `{"intent":"COMMUNITY_INTEREST_VOUCH","entities":{"vouch_person_name":"Thrall"},"suggested_reply":"I'll check with Thrall.","confidence":0.88,"requires_clarification":false}`,
	}}

	c, err := newTestService(fake).Classify(context.Background(), "my friend Thrall can vouch for me", nil)
	require.NoError(t, err)
	assert.Equal(t, proto.IntentCommunityVouch, c.Intent)
	assert.Equal(t, "Thrall", c.Entity(proto.EntityVouchPersonName))
	assert.False(t, c.Degraded)
}

func TestClassifyDegradesOnCompletionError(t *testing.T) {
	fake := &scriptedClient{err: clserrors.NewUnavailableError(assert.AnError, 3)}

	c, err := newTestService(fake).Classify(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.True(t, c.Degraded)
	assert.Equal(t, proto.IntentUnclear, c.Intent)
	assert.True(t, c.RequiresClarification)
}

func TestClassifyDegradesOnMalformedOutput(t *testing.T) {
	fake := &scriptedClient{response: llm.CompletionResponse{Content: "sorry, I cannot help with that"}}

	c, err := newTestService(fake).Classify(context.Background(), "hello", nil)
	require.NoError(t, err)
	assert.True(t, c.Degraded)
	assert.Equal(t, proto.IntentUnclear, c.Intent)
}

func TestClassifyBuildsPromptWithHistory(t *testing.T) {
	fake := &scriptedClient{response: llm.CompletionResponse{
		Content: `{"intent":"GENERAL_QUESTION","suggested_reply":"","confidence":0.5,"requires_clarification":false}`,
	}}
	svc := newTestService(fake)

	history := []proto.HistoryMessage{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "welcome!"},
	}
	_, err := svc.Classify(context.Background(), "when do you raid?", history)
	require.NoError(t, err)

	msgs := fake.lastReq.Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Equal(t, llm.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "when do you raid?", msgs[3].Content)
}

func TestFallbackShape(t *testing.T) {
	c := Fallback("test")
	assert.Equal(t, proto.IntentUnclear, c.Intent)
	assert.True(t, c.Degraded)
	assert.True(t, c.RequiresClarification)
	assert.Zero(t, c.Confidence)
}

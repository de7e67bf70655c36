package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRendererLoadsAllTemplates(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestRenderWelcome(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(WelcomeTemplate, &MessageData{
		Mention:   "<@123>",
		GuildName: "Wraiven",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "<@123>")
	assert.Contains(t, out, "Wraiven")
}

func TestRenderVouchPrompt(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	out, err := r.Render(VouchPromptTemplate, &MessageData{
		VoucherMention: "<@456>",
		CandidateName:  "Newfriend",
		DeadlineHours:  24,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "<@456>")
	assert.Contains(t, out, "Newfriend")
	assert.Contains(t, out, "24 hours")
}

func TestRenderUnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, err = r.Render(MessageTemplate("messages/missing.tpl.md"), &MessageData{})
	require.Error(t, err)
}

func TestAllTemplatesRenderWithEmptyData(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	for name := range r.templates {
		out, renderErr := r.Render(name, &MessageData{})
		require.NoError(t, renderErr, "template %s", name)
		assert.NotEmpty(t, out, "template %s", name)
	}
}

// Package templates provides template rendering for the bot's user-facing
// messages and staff notices.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed messages/*.tpl.md
var templateFS embed.FS

// MessageData holds the data for message template rendering.
type MessageData struct {
	Extra map[string]any `json:"extra,omitempty"`
	// User-facing fields.
	Username  string `json:"username,omitempty"`
	Mention   string `json:"mention,omitempty"`
	GuildName string `json:"guild_name,omitempty"`
	// Vouch workflow fields.
	VoucherName    string `json:"voucher_name,omitempty"`
	VoucherMention string `json:"voucher_mention,omitempty"`
	CandidateName  string `json:"candidate_name,omitempty"`
	DeadlineHours  int    `json:"deadline_hours,omitempty"`
	// Account age gate fields.
	MinAccountAgeDays int `json:"min_account_age_days,omitempty"`
	// Escalation and staff fields.
	StaffMention string `json:"staff_mention,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ChannelRef   string `json:"channel_ref,omitempty"`
	// Sweeper digest fields.
	DigestBody string `json:"digest_body,omitempty"`
}

// MessageTemplate names one rendered message.
type MessageTemplate string

const (
	// WelcomeTemplate greets a new arrival in their processing channel.
	WelcomeTemplate MessageTemplate = "messages/welcome.tpl.md"
	// WelcomeBackTemplate greets a returning visitor with a prior record.
	WelcomeBackTemplate MessageTemplate = "messages/welcome_back.tpl.md"
	// ClarificationTemplate asks the visitor to restate what they want.
	ClarificationTemplate MessageTemplate = "messages/clarification.tpl.md"
	// DegradedApologyTemplate is used when classification was unavailable.
	DegradedApologyTemplate MessageTemplate = "messages/degraded_apology.tpl.md"
	// EscalationTemplate tells the visitor a human will take over.
	EscalationTemplate MessageTemplate = "messages/escalation.tpl.md"
	// StaffEscalationTemplate notifies staff about an escalated conversation.
	StaffEscalationTemplate MessageTemplate = "messages/staff_escalation.tpl.md"
	// StillThereTemplate nudges a visitor whose reply window lapsed.
	StillThereTemplate MessageTemplate = "messages/still_there.tpl.md"
	// ConversationClosedTemplate ends a conversation politely.
	ConversationClosedTemplate MessageTemplate = "messages/conversation_closed.tpl.md"
	// VouchMentionTemplate asks the visitor to name their voucher.
	VouchMentionTemplate MessageTemplate = "messages/vouch_mention.tpl.md"
	// VouchPromptTemplate asks a member to confirm or deny a vouch request.
	VouchPromptTemplate MessageTemplate = "messages/vouch_prompt.tpl.md"
	// VouchAcceptedTemplate congratulates a vouched visitor.
	VouchAcceptedTemplate MessageTemplate = "messages/vouch_accepted.tpl.md"
	// VouchDeclinedTemplate informs the visitor the vouch was declined.
	VouchDeclinedTemplate MessageTemplate = "messages/vouch_declined.tpl.md"
	// VouchTimeoutTemplate informs the visitor the vouch expired unanswered.
	VouchTimeoutTemplate MessageTemplate = "messages/vouch_timeout.tpl.md"
	// ApplicationIntroTemplate starts the guild application flow.
	ApplicationIntroTemplate MessageTemplate = "messages/application_intro.tpl.md"
	// TicketOpenedTemplate confirms a recruitment ticket was opened.
	TicketOpenedTemplate MessageTemplate = "messages/ticket_opened.tpl.md"
	// AccountTooNewTemplate is sent when the account age gate rejects a join.
	AccountTooNewTemplate MessageTemplate = "messages/account_too_new.tpl.md"
	// StaffDigestTemplate wraps the daily cleanup digest for staff.
	StaffDigestTemplate MessageTemplate = "messages/staff_digest.tpl.md"
)

// Renderer handles message template rendering.
type Renderer struct {
	templates map[MessageTemplate]*template.Template
}

// NewRenderer creates a renderer with all message templates parsed. An
// unparseable embedded template is a programming error surfaced at startup.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[MessageTemplate]*template.Template),
	}

	templateNames := []MessageTemplate{
		WelcomeTemplate,
		WelcomeBackTemplate,
		ClarificationTemplate,
		DegradedApologyTemplate,
		EscalationTemplate,
		StaffEscalationTemplate,
		StillThereTemplate,
		ConversationClosedTemplate,
		VouchMentionTemplate,
		VouchPromptTemplate,
		VouchAcceptedTemplate,
		VouchDeclinedTemplate,
		VouchTimeoutTemplate,
		ApplicationIntroTemplate,
		TicketOpenedTemplate,
		AccountTooNewTemplate,
		StaffDigestTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"contains": strings.Contains,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the named template with the given data.
func (r *Renderer) Render(name MessageTemplate, data *MessageData) (string, error) {
	tmpl, exists := r.templates[name]
	if !exists {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}

	return strings.TrimSpace(buf.String()), nil
}

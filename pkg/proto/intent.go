package proto

import "strings"

// Intent is the classifier's reading of what a user message is trying to do.
type Intent string

const (
	IntentGuildApplication Intent = "GUILD_APPLICATION_INTEREST"
	IntentCommunityVouch   Intent = "COMMUNITY_INTEREST_VOUCH"
	IntentGeneralQuestion  Intent = "GENERAL_QUESTION"
	IntentSocialGreeting   Intent = "SOCIAL_GREETING"
	IntentEndConversation  Intent = "END_CONVERSATION"
	IntentRequestHuman     Intent = "REQUEST_HUMAN"
	IntentUnclear          Intent = "UNCLEAR_INTENT"
	IntentOther            Intent = "OTHER"
)

var allIntents = map[Intent]bool{
	IntentGuildApplication: true,
	IntentCommunityVouch:   true,
	IntentGeneralQuestion:  true,
	IntentSocialGreeting:   true,
	IntentEndConversation:  true,
	IntentRequestHuman:     true,
	IntentUnclear:          true,
	IntentOther:            true,
}

func (i Intent) String() string {
	return string(i)
}

// ValidateIntent parses a classifier-provided intent. Unknown intents map to
// UNCLEAR_INTENT rather than failing the turn.
func ValidateIntent(raw string) (Intent, bool) {
	i := Intent(strings.ToUpper(strings.TrimSpace(raw)))
	if allIntents[i] {
		return i, true
	}
	return IntentUnclear, false
}

// Entity keys the classifier may populate.
const (
	EntityVouchPersonName  = "vouch_person_name"
	EntityOriginalVouch    = "original_vouch_text"
	EntityGuildName        = "guild_name"
	EntityCharacterClass   = "character_class"
	EntityApplicationAgree = "application_agree"
)

// Classification is the structured result of one classifier call.
type Classification struct {
	Intent                Intent            `json:"intent"`
	Entities              map[string]string `json:"entities,omitempty"`
	SuggestedReply        string            `json:"suggested_reply"`
	Confidence            float64           `json:"confidence"`
	RequiresClarification bool              `json:"requires_clarification"`

	// Degraded is set when the classification was synthesized after a
	// classifier failure instead of being produced by a model.
	Degraded       bool   `json:"-"`
	DegradedReason string `json:"-"`
}

// Entity returns the named entity or "".
func (c *Classification) Entity(key string) string {
	if c == nil || c.Entities == nil {
		return ""
	}
	return c.Entities[key]
}

// HistoryMessage is one prior turn handed to the classifier for context.
type HistoryMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

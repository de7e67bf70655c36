package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/proto"
)

// wireClassification mirrors the JSON contract the model is instructed to
// emit. Parsed values are validated before becoming a proto.Classification.
type wireClassification struct {
	Intent                string            `json:"intent"`
	Entities              map[string]string `json:"entities"`
	SuggestedReply        string            `json:"suggested_reply"`
	Confidence            float64           `json:"confidence"`
	RequiresClarification bool              `json:"requires_clarification"`
}

// ParseClassification parses raw model output into a classification. Models
// sometimes wrap JSON in markdown fences or surrounding prose, so the first
// balanced JSON object is extracted before unmarshaling.
func ParseClassification(raw string) (*proto.Classification, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, clserrors.NewErrorWithCause(clserrors.ErrorTypeMalformed, err, "no JSON object in classifier output")
	}

	var wire wireClassification
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, clserrors.NewErrorWithCause(clserrors.ErrorTypeMalformed, err, "invalid classification JSON")
	}

	if strings.TrimSpace(wire.Intent) == "" {
		return nil, clserrors.NewError(clserrors.ErrorTypeMalformed, "classification missing intent field")
	}

	intent, known := proto.ValidateIntent(wire.Intent)
	requiresClarification := wire.RequiresClarification
	if !known {
		// An intent outside the taxonomy is treated as the model being unsure.
		requiresClarification = true
	}

	confidence := wire.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	entities := wire.Entities
	if entities == nil {
		entities = map[string]string{}
	}

	return &proto.Classification{
		Intent:                intent,
		Entities:              entities,
		SuggestedReply:        strings.TrimSpace(wire.SuggestedReply),
		Confidence:            confidence,
		RequiresClarification: requiresClarification,
	}, nil
}

// extractJSON returns the first balanced top-level JSON object in text,
// after stripping markdown code fences.
func extractJSON(text string) (string, error) {
	text = stripFences(text)

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("no opening brace")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces")
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

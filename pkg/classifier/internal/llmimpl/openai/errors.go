package openai

import (
	"fmt"
	"strings"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
)

// classifyError converts OpenAI SDK errors to classified error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "403"),
		strings.Contains(errStr, "invalid_api_key"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeAuth, err, "OpenAI authentication failed")
	case strings.Contains(errStr, "429"), strings.Contains(errStr, "rate_limit"),
		strings.Contains(errStr, "quota"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeRateLimit, err, "OpenAI rate limited")
	case strings.Contains(errStr, "500"), strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"), strings.Contains(errStr, "504"),
		strings.Contains(errStr, "timeout"), strings.Contains(errStr, "connection"),
		strings.Contains(errStr, "EOF"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeTransient, err, "OpenAI transient failure")
	case strings.Contains(errStr, "400"), strings.Contains(errStr, "context_length"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeBadPrompt, err, "OpenAI rejected request")
	default:
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeUnknown, err, fmt.Sprintf("OpenAI API call failed: %v", err))
	}
}

// Package google provides the Google Gemini client implementation.
package google

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
)

// GeminiClient wraps the Google GenAI client to implement llm.Client.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
}

// NewClientWithModel creates a raw Gemini client; middleware is applied at a
// higher level. Client creation requires a context, so it is deferred to the
// first Complete call.
func NewClientWithModel(apiKey, model string) llm.Client {
	return &GeminiClient{
		client: nil,
		apiKey: apiKey,
		model:  model,
	}
}

// Complete implements llm.Client.
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if g.client == nil {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.apiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return llm.CompletionResponse{}, clserrors.NewErrorWithCause(clserrors.ErrorTypeTransient, err, "failed to create Gemini client")
		}
		g.client = client
	}

	contents, systemInstruction, err := convertMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, clserrors.NewError(clserrors.ErrorTypeBadPrompt, fmt.Sprintf("message conversion error: %v", err))
	}

	//nolint:gosec // MaxTokens validated at higher layer, overflow acceptable
	maxTokens := int32(in.MaxTokens)
	config := &genai.GenerateContentConfig{
		Temperature:     &in.Temperature,
		MaxOutputTokens: maxTokens,
	}
	if systemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, clserrors.NewError(clserrors.ErrorTypeTransient, "empty response from Gemini API")
	}

	return llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: "end_turn",
	}, nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// convertMessages converts messages to Gemini's Content format, extracting
// system messages into the system instruction.
func convertMessages(messages []llm.CompletionMessage) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("message list cannot be empty")
	}

	var systemInstruction string
	var contents []*genai.Content

	for i := range messages {
		msg := &messages[i]

		if msg.Role == llm.RoleSystem {
			if systemInstruction != "" {
				systemInstruction += "\n\n" + msg.Content
			} else {
				systemInstruction = msg.Content
			}
			continue
		}

		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = "user"
		case llm.RoleAssistant:
			role = "model" // Gemini uses "model" instead of "assistant"
		default:
			return nil, "", fmt.Errorf("unsupported message role: %s", msg.Role)
		}

		if msg.Content == "" {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	if len(contents) == 0 {
		return nil, "", fmt.Errorf("must have at least one non-system message")
	}

	return contents, systemInstruction, nil
}

// classifyError converts Gemini SDK errors to classified error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "API key"), strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"), strings.Contains(errStr, "PERMISSION_DENIED"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeAuth, err, "Gemini authentication failed")
	case strings.Contains(errStr, "429"), strings.Contains(errStr, "RESOURCE_EXHAUSTED"),
		strings.Contains(errStr, "quota"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeRateLimit, err, "Gemini rate limited")
	case strings.Contains(errStr, "500"), strings.Contains(errStr, "503"),
		strings.Contains(errStr, "UNAVAILABLE"), strings.Contains(errStr, "timeout"),
		strings.Contains(errStr, "connection"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeTransient, err, "Gemini transient failure")
	case strings.Contains(errStr, "400"), strings.Contains(errStr, "INVALID_ARGUMENT"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeBadPrompt, err, "Gemini rejected request")
	default:
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeUnknown, err, fmt.Sprintf("Gemini API call failed: %v", err))
	}
}

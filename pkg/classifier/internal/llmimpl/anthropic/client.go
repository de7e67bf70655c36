// Package anthropic provides the Anthropic Claude client implementation.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
)

// Client wraps the Anthropic API client to implement llm.Client.
type Client struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClientWithModel creates a raw Claude client; middleware is applied at a
// higher level.
func NewClientWithModel(apiKey, model string) llm.Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for Anthropic API requirements:
// system messages move to the top-level system parameter, consecutive user
// messages merge, and the sequence must end with a user message.
func ensureAlternation(messages []llm.CompletionMessage) (systemPrompt string, alternating []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var nonSystem []llm.CompletionMessage
	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			nonSystem = append(nonSystem, *msg)
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(nonSystem) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var merged []llm.CompletionMessage
	var userParts []string
	flushUser := func() {
		if len(userParts) > 0 {
			merged = append(merged, llm.CompletionMessage{
				Role:    llm.RoleUser,
				Content: strings.Join(userParts, "\n\n"),
			})
			userParts = nil
		}
	}
	for i := range nonSystem {
		msg := &nonSystem[i]
		if msg.Role == llm.RoleAssistant {
			flushUser()
			// Drop a leading assistant message, Anthropic requires the
			// conversation to open with the user.
			if len(merged) == 0 {
				continue
			}
			merged = append(merged, *msg)
		} else {
			userParts = append(userParts, msg.Content)
		}
	}
	flushUser()

	if len(merged) == 0 || merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("conversation must end with a user message")
	}

	return systemPrompt, merged, nil
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, clserrors.NewError(clserrors.ErrorTypeBadPrompt, fmt.Sprintf("message alternation error: %v", err))
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, clserrors.NewError(clserrors.ErrorTypeTransient, "empty response from Anthropic API")
	}

	var content strings.Builder
	for i := range resp.Content {
		if text := resp.Content[i].Text; text != "" {
			content.WriteString(text)
		}
	}

	return llm.CompletionResponse{
		Content:    content.String(),
		StopReason: string(resp.StopReason),
	}, nil
}

// GetModelName returns the model name for this client.
func (c *Client) GetModelName() string {
	return string(c.model)
}

// classifyError converts Anthropic SDK errors to classified error types.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "403"),
		strings.Contains(errStr, "authentication"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeAuth, err, "Anthropic authentication failed")
	case strings.Contains(errStr, "429"), strings.Contains(errStr, "rate_limit"),
		strings.Contains(errStr, "overloaded"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeRateLimit, err, "Anthropic rate limited")
	case strings.Contains(errStr, "500"), strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"), strings.Contains(errStr, "529"),
		strings.Contains(errStr, "timeout"), strings.Contains(errStr, "connection"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeTransient, err, "Anthropic transient failure")
	case strings.Contains(errStr, "400"), strings.Contains(errStr, "invalid_request"):
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeBadPrompt, err, "Anthropic rejected request")
	default:
		return clserrors.NewErrorWithCause(clserrors.ErrorTypeUnknown, err, fmt.Sprintf("Anthropic API call failed: %v", err))
	}
}

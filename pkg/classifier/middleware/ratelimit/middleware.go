// Package ratelimit provides local rate limiting middleware for completion
// clients, backed by the shared token bucket limiter.
package ratelimit

import (
	"context"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/limiter"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
)

// Middleware returns a middleware function that reserves tokens and budget
// from the limiter before each request. Reservations use a worst-case token
// estimate (prompt plus MaxTokens) since the true usage is only known after
// the call.
func Middleware(lim *limiter.Limiter, counter *utils.TokenCounter) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				model := next.GetModelName()

				promptTokens := 0
				for i := range req.Messages {
					promptTokens += counter.CountTokens(req.Messages[i].Content)
				}
				estimate := promptTokens + req.MaxTokens

				if err := lim.Reserve(model, estimate); err != nil {
					return llm.CompletionResponse{}, clserrors.NewErrorWithCause(clserrors.ErrorTypeRateLimit, err, "local rate limit reached")
				}

				info, _ := config.GetModelInfo(model)
				costUSD := (float64(promptTokens)*info.InputCPM + float64(req.MaxTokens)*info.OutputCPM) / 1_000_000
				if err := lim.ReserveBudget(model, costUSD); err != nil {
					// Budget exhaustion is not retryable, backing off will not help
					// until the daily reset.
					return llm.CompletionResponse{}, clserrors.NewErrorWithCause(clserrors.ErrorTypeUnavailable, err, "daily model budget exhausted")
				}

				return next.Complete(ctx, req)
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

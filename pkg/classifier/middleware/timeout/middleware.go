// Package timeout provides timeout middleware for completion clients.
package timeout

import (
	"context"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
)

// Middleware returns a middleware function that wraps a completion client
// with per-request timeout logic. Each request gets a timeout context to
// prevent hanging requests.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				return next.Complete(timeoutCtx, req)
			},
			func() string {
				return next.GetModelName()
			},
		)
	}
}

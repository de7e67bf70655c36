// Package observe provides the metrics middleware for classifier requests.
package observe

import (
	"context"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/metrics"
)

// Middleware records request counts, durations, and error types for every
// completion that reaches the provider.
func Middleware(rec metrics.Recorder) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				resp, err := next.Complete(ctx, req)

				status := "success"
				errorType := ""
				if err != nil {
					status = "error"
					errorType = clserrors.TypeOf(err).String()
				}
				rec.ObserveClassification(next.GetModelName(), status, errorType, time.Since(start))
				return resp, err
			},
			next.GetModelName,
		)
	}
}

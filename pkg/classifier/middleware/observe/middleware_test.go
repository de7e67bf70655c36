package observe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/clserrors"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/metrics"
)

type recordingSink struct {
	metrics.Nop
	model     string
	status    string
	errorType string
	calls     int
}

func (r *recordingSink) ObserveClassification(model, status, errorType string, _ time.Duration) {
	r.model = model
	r.status = status
	r.errorType = errorType
	r.calls++
}

func fixedClient(resp llm.CompletionResponse, err error) llm.Client {
	return llm.WrapClient(
		func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
			return resp, err
		},
		func() string { return "test-model" },
	)
}

func TestRecordsSuccess(t *testing.T) {
	sink := &recordingSink{}
	client := Middleware(sink)(fixedClient(llm.CompletionResponse{Content: "ok"}, nil))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.NoError(t, err)

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, "test-model", sink.model)
	assert.Equal(t, "success", sink.status)
	assert.Empty(t, sink.errorType)
}

func TestRecordsTypedError(t *testing.T) {
	sink := &recordingSink{}
	failure := clserrors.NewError(clserrors.ErrorTypeRateLimit, "slow down")
	client := Middleware(sink)(fixedClient(llm.CompletionResponse{}, failure))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)

	assert.Equal(t, "error", sink.status)
	assert.Equal(t, clserrors.ErrorTypeRateLimit.String(), sink.errorType)
}

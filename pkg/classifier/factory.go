package classifier

import (
	"fmt"
	"os"
	"time"

	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/internal/llmimpl/anthropic"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/internal/llmimpl/google"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/internal/llmimpl/ollama"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/internal/llmimpl/openai"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/llm"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/middleware/observe"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/middleware/ratelimit"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/middleware/retry"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/classifier/middleware/timeout"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/config"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/contextmgr"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/limiter"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/metrics"
	"github.com/DoctaCloak/wraiven-recruiter/pkg/utils"
)

const defaultOllamaHost = "http://localhost:11434"

// New builds the production classifier for the configured model: the raw
// provider client wrapped in rate limiting, retry, metrics, and per-request
// timeout middleware, feeding a Service with token-bounded history. rec may
// be nil.
func New(cfg *config.Config, profile *config.GuildProfile, lim *limiter.Limiter, rec metrics.Recorder) (*Service, error) {
	base, err := newProviderClient(&cfg.Classifier)
	if err != nil {
		return nil, err
	}

	// A nil counter degrades to a character-based estimate, so tokenizer
	// setup failure is not fatal.
	counter, _ := utils.NewTokenCounter()

	requestTimeout := time.Duration(cfg.Classifier.RequestTimeoutSec) * time.Second
	if rec == nil {
		rec = metrics.Nop{}
	}
	client := llm.Chain(base,
		ratelimit.Middleware(lim, counter),
		retry.Middleware(retry.NewPolicy(retry.DefaultConfig, nil)),
		observe.Middleware(rec),
		timeout.Middleware(requestTimeout),
	)

	history := contextmgr.NewManager(counter, cfg.Classifier.MaxHistoryTurns, cfg.Classifier.MaxHistoryTokens)
	return NewService(client, history, profile, cfg.Classifier), nil
}

func newProviderClient(cfg *config.ClassifierConfig) (llm.Client, error) {
	info, _ := config.GetModelInfo(cfg.Model)

	apiKey, err := config.APIKeyForProvider(info.Provider)
	if err != nil {
		return nil, fmt.Errorf("classifier model %s: %w", cfg.Model, err)
	}

	switch info.Provider {
	case config.ProviderOpenAI:
		return openai.NewClientWithModel(apiKey, cfg.Model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClientWithModel(apiKey, cfg.Model), nil
	case config.ProviderGoogle:
		return google.NewClientWithModel(apiKey, cfg.Model), nil
	case config.ProviderOllama:
		host := cfg.OllamaHost
		if host == "" {
			host = os.Getenv(config.EnvOllamaHost)
		}
		if host == "" {
			host = defaultOllamaHost
		}
		return ollama.NewClientWithModel(host, cfg.Model), nil
	default:
		return nil, fmt.Errorf("no client implementation for provider %q", info.Provider)
	}
}

// Package config provides configuration loading, validation, and management
// for the recruiter.
//
// KEY PRINCIPLES:
//
//  1. SEPARATION OF CONCERNS:
//     - Config: operator-editable settings loaded from config.json
//     - Guild profile: recruitment-facing knowledge (name, focus, FAQ) in guild.yaml
//     - Secrets: API keys and tokens, environment only, never in files
//     - State: conversation and applicant state lives in the DATABASE, never in config
//
//  2. GLOBAL SINGLETON: a single Config instance is maintained in memory,
//     protected by a mutex.
//
//  3. VALUE-BASED ACCESS: GetConfig() returns the config BY VALUE to prevent
//     external mutation.
//
//  4. VALIDATION FIRST: configs are validated at load; invalid configs are
//     rejected before anything runs.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Provider name constants.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Model name constants.
const (
	ModelGPT4oMini        = "gpt-4o-mini"
	ModelGPT4o            = "gpt-4o"
	ModelClaudeSonnet4    = "claude-sonnet-4-5"
	ModelClaudeHaiku35    = "claude-3-5-haiku-latest"
	ModelGeminiFlash      = "gemini-2.0-flash"
	ModelOllamaLlama3     = "llama3.2"
	DefaultClassifierModel = ModelGPT4oMini
)

// ModelInfo contains static information about a known classifier model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (openai, anthropic, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int
	MaxOutputTokens  int
}

// KnownModels registry contains pricing and provider information for the
// models the classifier is expected to run on. Unknown models fall back to
// provider inference by name prefix.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	ModelGPT4oMini: {
		Provider:         ProviderOpenAI,
		InputCPM:         0.15,
		OutputCPM:        0.6,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	ModelGPT4o: {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	ModelClaudeSonnet4: {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	ModelClaudeHaiku35: {
		Provider:         ProviderAnthropic,
		InputCPM:         0.8,
		OutputCPM:        4.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	ModelGeminiFlash: {
		Provider:         ProviderGoogle,
		InputCPM:         0.1,
		OutputCPM:        0.4,
		MaxContextTokens: 1000000,
		MaxOutputTokens:  8192,
	},
	ModelOllamaLlama3: {
		Provider:         ProviderOllama,
		InputCPM:         0,
		OutputCPM:        0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
}

// GetModelInfo returns the ModelInfo for a model name. Unknown models get an
// inferred provider and conservative limits, with found=false.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	return ModelInfo{
		Provider:         inferProvider(modelName),
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

func inferProvider(modelName string) string {
	name := strings.ToLower(modelName)
	switch {
	case strings.HasPrefix(name, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(name, "gpt"), strings.HasPrefix(name, "o1"), strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		return ProviderOpenAI
	case strings.HasPrefix(name, "gemini"):
		return ProviderGoogle
	default:
		return ProviderOllama
	}
}

// GuildConfig identifies the server the recruiter manages.
type GuildConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ProfilePath string `json:"profile_path"` // guild.yaml, relative to config dir
}

// RolesConfig names the roles the recruiter assigns and checks.
type RolesConfig struct {
	Outsider  string `json:"outsider"`
	Friend    string `json:"friend"`
	Member    string `json:"member"`
	Recruiter string `json:"recruiter"`
	Bot       string `json:"bot"`
}

// CategoriesConfig names the channel categories the recruiter creates under.
type CategoriesConfig struct {
	CityGates string `json:"city_gates"` // processing channels
	Tickets   string `json:"tickets"`    // application ticket channels
}

// TimeoutsConfig holds turn-waiter deadlines in seconds.
type TimeoutsConfig struct {
	InitialResponseSec int `json:"initial_response_sec"`
	ClarificationSec   int `json:"clarification_sec"`
	VouchMentionSec    int `json:"vouch_mention_sec"`
	VouchReactionSec   int `json:"vouch_reaction_sec"`
	GeneralSec         int `json:"general_sec"`
}

// ClassifierConfig configures the intent classifier.
type ClassifierConfig struct {
	Model             string  `json:"model"` // mapped to a provider via KnownModels
	MaxTokens         int     `json:"max_tokens"`
	Temperature       float64 `json:"temperature"`
	RequestTimeoutSec int     `json:"request_timeout_sec"`
	MaxHistoryTurns   int     `json:"max_history_turns"`
	MaxHistoryTokens  int     `json:"max_history_tokens"`
	OllamaHost        string  `json:"ollama_host,omitempty"`
}

// ModelCfg defines operator limits for one model.
type ModelCfg struct {
	MaxTokensPerMinute int     `json:"max_tokens_per_minute"`
	MaxBudgetPerDayUSD float64 `json:"max_budget_per_day_usd"`
}

// CleanupConfig configures the daily stale-channel sweep.
type CleanupConfig struct {
	Hour          int  `json:"hour"`           // local hour of day to run, 0-23
	InactiveHours int  `json:"inactive_hours"` // channels idle longer than this get removed
	StaffDigest   bool `json:"staff_digest"`   // post a metrics digest after each sweep
}

// Config is the top-level recruiter configuration.
type Config struct {
	Guild                    GuildConfig       `json:"guild"`
	Roles                    RolesConfig       `json:"roles"`
	Categories               CategoriesConfig  `json:"categories"`
	StaffChannelID           string            `json:"staff_channel_id"`
	Timeouts                 TimeoutsConfig    `json:"timeouts"`
	MaxClarificationAttempts int               `json:"max_clarification_attempts"`
	MinAccountAgeDays        int               `json:"min_account_age_days"` // 0 disables the gate
	Classifier               ClassifierConfig  `json:"classifier"`
	Models                   map[string]ModelCfg `json:"models"`
	Cleanup                  CleanupConfig     `json:"cleanup"`
	DatabasePath             string            `json:"database_path"`
	EventLogDir              string            `json:"event_log_dir"`
	MetricsAddr              string            `json:"metrics_addr"`
	MetricsQueryURL          string            `json:"metrics_query_url,omitempty"`
}

// Timeout accessors, as durations.

func (t TimeoutsConfig) InitialResponse() time.Duration {
	return time.Duration(t.InitialResponseSec) * time.Second
}
func (t TimeoutsConfig) Clarification() time.Duration {
	return time.Duration(t.ClarificationSec) * time.Second
}
func (t TimeoutsConfig) VouchMention() time.Duration {
	return time.Duration(t.VouchMentionSec) * time.Second
}
func (t TimeoutsConfig) VouchReaction() time.Duration {
	return time.Duration(t.VouchReactionSec) * time.Second
}
func (t TimeoutsConfig) General() time.Duration {
	return time.Duration(t.GeneralSec) * time.Second
}

func (c ClassifierConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Global singleton.
var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// GetConfig returns the loaded config by value.
func GetConfig() (Config, error) {
	globalMu.RLock()
	defer globalMu.RUnlock()

	if globalConfig == nil {
		return Config{}, fmt.Errorf("config not loaded, call LoadConfig first")
	}
	return *globalConfig, nil
}

// SetConfigForTest installs a config directly. Tests only.
func SetConfigForTest(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = &cfg
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// LoadConfig loads and validates configuration from a JSON file with
// environment variable substitution, and installs it as the global config.
func LoadConfig(configPath string) error {
	cfg, err := parseConfigFile(configPath)
	if err != nil {
		return err
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
	return nil
}

func parseConfigFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Replace ${ENV_VAR} placeholders; unknown vars stay literal so
	// validation reports them.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		if value := os.Getenv(match[2 : len(match)-1]); value != "" {
			return value
		}
		return match
	})

	var cfg Config
	if err := json.Unmarshal([]byte(dataStr), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Profile path is resolved relative to the config file.
	if cfg.Guild.ProfilePath != "" && !filepath.IsAbs(cfg.Guild.ProfilePath) {
		cfg.Guild.ProfilePath = filepath.Join(filepath.Dir(configPath), cfg.Guild.ProfilePath)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Timeouts.InitialResponseSec == 0 {
		cfg.Timeouts.InitialResponseSec = 300
	}
	if cfg.Timeouts.ClarificationSec == 0 {
		cfg.Timeouts.ClarificationSec = 300
	}
	if cfg.Timeouts.VouchMentionSec == 0 {
		cfg.Timeouts.VouchMentionSec = 120
	}
	if cfg.Timeouts.VouchReactionSec == 0 {
		cfg.Timeouts.VouchReactionSec = 86400
	}
	if cfg.Timeouts.GeneralSec == 0 {
		cfg.Timeouts.GeneralSec = 600
	}
	if cfg.MaxClarificationAttempts == 0 {
		cfg.MaxClarificationAttempts = 3
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = DefaultClassifierModel
	}
	if cfg.Classifier.MaxTokens == 0 {
		cfg.Classifier.MaxTokens = 1024
	}
	if cfg.Classifier.Temperature == 0 {
		cfg.Classifier.Temperature = 0.3
	}
	if cfg.Classifier.RequestTimeoutSec == 0 {
		cfg.Classifier.RequestTimeoutSec = 30
	}
	if cfg.Classifier.MaxHistoryTurns == 0 {
		cfg.Classifier.MaxHistoryTurns = 20
	}
	if cfg.Classifier.MaxHistoryTokens == 0 {
		cfg.Classifier.MaxHistoryTokens = 4000
	}
	if cfg.Cleanup.Hour == 0 {
		cfg.Cleanup.Hour = 2
	}
	if cfg.Cleanup.InactiveHours == 0 {
		cfg.Cleanup.InactiveHours = 24
	}
	if cfg.Categories.CityGates == "" {
		cfg.Categories.CityGates = "City Gates"
	}
	if cfg.Categories.Tickets == "" {
		cfg.Categories.Tickets = "Recruitment Tickets"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "recruiter.db"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Guild.ID == "" {
		return fmt.Errorf("guild.id is required")
	}
	if cfg.Guild.Name == "" {
		return fmt.Errorf("guild.name is required")
	}
	if cfg.Roles.Outsider == "" || cfg.Roles.Friend == "" {
		return fmt.Errorf("roles.outsider and roles.friend are required")
	}
	if cfg.MaxClarificationAttempts < 1 {
		return fmt.Errorf("max_clarification_attempts must be at least 1, got %d", cfg.MaxClarificationAttempts)
	}
	if cfg.Cleanup.Hour < 0 || cfg.Cleanup.Hour > 23 {
		return fmt.Errorf("cleanup.hour must be 0-23, got %d", cfg.Cleanup.Hour)
	}
	if cfg.Classifier.Temperature < 0 || cfg.Classifier.Temperature > 2 {
		return fmt.Errorf("classifier.temperature must be 0-2, got %f", cfg.Classifier.Temperature)
	}
	info, _ := GetModelInfo(cfg.Classifier.Model)
	switch info.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderGoogle, ProviderOllama:
	default:
		return fmt.Errorf("classifier model %q maps to unknown provider %q", cfg.Classifier.Model, info.Provider)
	}
	return nil
}

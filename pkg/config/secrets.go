package config

import (
	"fmt"
	"os"
)

// Secrets come from the environment only. Keys never live in config files or
// the database.
const (
	EnvDiscordToken    = "DISCORD_TOKEN"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvAnthropicKey    = "ANTHROPIC_API_KEY"
	EnvGeminiKey       = "GEMINI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// PlatformToken returns the chat platform bot token.
func PlatformToken() (string, error) {
	token := os.Getenv(EnvDiscordToken)
	if token == "" {
		return "", fmt.Errorf("%s not set", EnvDiscordToken)
	}
	return token, nil
}

// APIKeyForProvider returns the API key env value for a classifier provider.
// Ollama needs no key and returns "".
func APIKeyForProvider(provider string) (string, error) {
	var envName string
	switch provider {
	case ProviderOpenAI:
		envName = EnvOpenAIKey
	case ProviderAnthropic:
		envName = EnvAnthropicKey
	case ProviderGoogle:
		envName = EnvGeminiKey
	case ProviderOllama:
		return "", nil
	default:
		return "", fmt.Errorf("unknown provider %q", provider)
	}

	key := os.Getenv(envName)
	if key == "" {
		return "", fmt.Errorf("%s not set for provider %s", envName, provider)
	}
	return key, nil
}

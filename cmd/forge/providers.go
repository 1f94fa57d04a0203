package main

import (
	"context"
	"fmt"
	"os"

	"github.com/forgehq/forge/internal/agent"
	"github.com/forgehq/forge/internal/agent/providers"
	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/providers/venice"
)

// buildProviders instantiates one agent.LLMProvider per configured entry,
// keyed by entry name (falling back to the provider type when a name is
// not given). The Claude/OpenAI/Gemini SDK wrappers handle their own
// concern directly; the OpenAI-compatible chat surface (OpenRouter's
// client) stands in for the OpenAI-compatible providers the corpus has
// no dedicated SDK wrapper for (Grok, Mistral, Groq all speak the same
// chat-completions shape against a different base URL).
func buildProviders(cfg *config.ProvidersConfig) (map[string]agent.LLMProvider, error) {
	result := make(map[string]agent.LLMProvider, len(cfg.Providers))
	for _, entry := range cfg.Providers {
		id := entry.Name
		if id == "" {
			id = string(entry.Type)
		}
		provider, err := buildProvider(entry)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", id, err)
		}
		result[id] = provider
	}
	return result, nil
}

func buildProvider(entry config.ProviderEntry) (agent.LLMProvider, error) {
	switch entry.Type {
	case config.ProviderClaude:
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:  apiKeyOrEnv(entry.APIKey, "ANTHROPIC_API_KEY"),
			BaseURL: entry.BaseURL,
		})
	case config.ProviderOpenAI:
		return providers.NewOpenAIProvider(apiKeyOrEnv(entry.APIKey, "OPENAI_API_KEY")), nil
	case config.ProviderGemini:
		apiKey := apiKeyOrEnv(entry.APIKey, "GOOGLE_API_KEY")
		if entry.APIKey == "" && entry.OAuth != nil {
			// Service-account-style entries carry a refresh token instead
			// of a static key; resolve one access token up front rather
			// than threading a TokenSource through the genai client.
			resolved, err := entry.ResolveAPIKey(context.Background())
			if err != nil {
				return nil, err
			}
			apiKey = resolved
		}
		return providers.NewGoogleProvider(providers.GoogleConfig{
			APIKey: apiKey,
		})
	case config.ProviderGrok:
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       apiKeyOrEnv(entry.APIKey, "XAI_API_KEY"),
			DefaultModel: entry.Model,
		})
	case config.ProviderMistral:
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       apiKeyOrEnv(entry.APIKey, "MISTRAL_API_KEY"),
			DefaultModel: entry.Model,
		})
	case config.ProviderGroq:
		return providers.NewOpenRouterProvider(providers.OpenRouterConfig{
			APIKey:       apiKeyOrEnv(entry.APIKey, "GROQ_API_KEY"),
			DefaultModel: entry.Model,
		})
	case config.ProviderVenice:
		return venice.NewVeniceProvider(venice.VeniceConfig{
			APIKey:       apiKeyOrEnv(entry.APIKey, "VENICE_API_KEY"),
			DefaultModel: entry.Model,
		})
	case config.ProviderBedrock:
		// BaseURL doubles as the AWS region for this entry type — Bedrock
		// has no HTTP base URL of its own, and ProviderEntry carries no
		// dedicated region field. Credentials fall back to the default
		// AWS SDK chain (env vars, shared config, instance role) when
		// APIKey is unset, matching the teacher's credential.Provider
		// resolution in internal/agent/providers/bedrock.go.
		return providers.NewBedrockProvider(providers.BedrockConfig{
			Region:       entry.BaseURL,
			DefaultModel: entry.Model,
		})
	case config.ProviderLocal:
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return providers.NewOllamaProvider(providers.OllamaConfig{
			BaseURL:      baseURL,
			DefaultModel: entry.Model,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported provider type %q", entry.Type)
	}
}

func apiKeyOrEnv(key, envVar string) string {
	if key != "" {
		return key
	}
	return os.Getenv(envVar)
}

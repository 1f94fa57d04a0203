package config

import "fmt"

// ProviderType enumerates the supported LLM provider kinds in the
// unified tagged provider-entry configuration format.
type ProviderType string

const (
	ProviderClaude ProviderType = "claude"
	ProviderOpenAI ProviderType = "openai"
	ProviderGrok   ProviderType = "grok"
	ProviderGemini ProviderType = "gemini"
	ProviderMistral ProviderType = "mistral"
	ProviderGroq   ProviderType = "groq"
	ProviderLocal   ProviderType = "local"
	ProviderVenice  ProviderType = "venice"
	ProviderBedrock ProviderType = "bedrock"
)

// ProviderEntry is one entry in the unified tagged provider list. A
// config file lists providers as `providers: [{type: claude, ...}, ...]`
// rather than nesting them under per-vendor maps — the name is
// deliberately used to look the entry up instead of the map key the
// older llm.providers shape used, so order is preserved and entries can
// be anonymous duplicates of the same type (e.g. two "openai" entries
// pointed at different base URLs).
type ProviderEntry struct {
	Type       ProviderType `yaml:"type"`
	Name       string       `yaml:"name,omitempty"`
	APIKey     string       `yaml:"api_key,omitempty"`
	Model      string       `yaml:"model,omitempty"`
	BaseURL    string       `yaml:"base_url,omitempty"`
	APIVersion string       `yaml:"api_version,omitempty"`

	// OAuth carries service-account-style credentials for providers that
	// authenticate via token refresh instead of a static APIKey (e.g. a
	// Gemini entry backed by a GCP service account). Left zero-valued,
	// the entry authenticates with APIKey as usual.
	OAuth *OAuthCredential `yaml:"oauth,omitempty"`
}

// OAuthCredential configures a golang.org/x/oauth2 token source for a
// provider entry. ClientID/ClientSecret/TokenURL/RefreshToken mirror the
// fields a service-account or installed-app OAuth2 flow hands back;
// Scopes is passed through to the token request unchanged.
type OAuthCredential struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	TokenURL     string   `yaml:"token_url"`
	RefreshToken string   `yaml:"refresh_token"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// legacyTeacherEntry is the older `[[teachers]]` list shape this config
// format replaces. Field names mirror LLMProviderConfig's map-value
// shape from before providers were promoted to a top-level tagged list.
type legacyTeacherEntry struct {
	Provider     string `yaml:"provider"`
	Name         string `yaml:"name,omitempty"`
	APIKey       string `yaml:"api_key,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
	BaseURL      string `yaml:"base_url,omitempty"`
}

// ProvidersConfig holds the unified provider list plus the deprecated
// legacy shape it's migrated from on load.
type ProvidersConfig struct {
	Providers []ProviderEntry      `yaml:"providers,omitempty"`
	Teachers  []legacyTeacherEntry `yaml:"teachers,omitempty"`
}

// MigrateLegacyProviders converts any `teachers` entries into the
// unified `providers` list and clears Teachers, so callers that only
// read cfg.Providers.Providers never need to know the legacy shape
// existed. Safe to call unconditionally; a no-op when Teachers is empty.
func (c *ProvidersConfig) MigrateLegacyProviders() {
	if len(c.Teachers) == 0 {
		return
	}
	for _, t := range c.Teachers {
		c.Providers = append(c.Providers, ProviderEntry{
			Type:    ProviderType(t.Provider),
			Name:    t.Name,
			APIKey:  t.APIKey,
			Model:   t.DefaultModel,
			BaseURL: t.BaseURL,
		})
	}
	c.Teachers = nil
}

// ByType returns the first configured provider entry of the given
// type, or nil if none is configured.
func (c *ProvidersConfig) ByType(t ProviderType) *ProviderEntry {
	for i := range c.Providers {
		if c.Providers[i].Type == t {
			return &c.Providers[i]
		}
	}
	return nil
}

// Validate checks that every entry names a supported type.
func (c *ProvidersConfig) Validate() error {
	for i, p := range c.Providers {
		switch p.Type {
		case ProviderClaude, ProviderOpenAI, ProviderGrok, ProviderGemini, ProviderMistral, ProviderGroq, ProviderLocal, ProviderVenice, ProviderBedrock:
		default:
			return fmt.Errorf("providers[%d]: unsupported provider type %q", i, p.Type)
		}
	}
	return nil
}

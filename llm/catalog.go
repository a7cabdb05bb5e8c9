package llm

// ProviderInfo describes a known provider in the catalog: which credential
// variable configures it, its default model and endpoint, and its token
// limits. The catalog is an explicit slice consulted at startup; nothing
// mutates it at runtime.
type ProviderInfo struct {
	Name            string `json:"name"`
	EnvVar          string `json:"env_var"`
	FallbackEnvVar  string `json:"fallback_env_var,omitempty"`
	DefaultModel    string `json:"default_model"`
	DefaultBaseURL  string `json:"default_base_url,omitempty"`
	MaxOutputTokens int    `json:"max_output_tokens"`
	ContextWindow   int    `json:"context_window"`
	Description     string `json:"description"`
}

// Providers is the built-in provider catalog.
var Providers = []ProviderInfo{
	{
		Name:            ProviderGLM,
		EnvVar:          "OPENCODE_API_KEY",
		FallbackEnvVar:  "GLM_API_KEY",
		DefaultModel:    "glm-4.7",
		DefaultBaseURL:  "https://api.z.ai/api/coding/paas/v4",
		MaxOutputTokens: 32768,
		ContextWindow:   131072,
		Description:     "GLM via Z.AI coding API (default)",
	},
	{
		Name:            ProviderClaude,
		EnvVar:          "ANTHROPIC_API_KEY",
		DefaultModel:    "claude-sonnet-4-20250514",
		MaxOutputTokens: 8192,
		ContextWindow:   200000,
		Description:     "Anthropic Claude via Anthropic API",
	},
	{
		Name:            ProviderCodex,
		EnvVar:          "OPENAI_API_KEY",
		DefaultModel:    "gpt-4",
		DefaultBaseURL:  "https://api.openai.com/v1",
		MaxOutputTokens: 8192,
		ContextWindow:   128000,
		Description:     "OpenAI GPT-4/Codex via OpenAI API",
	},
	{
		Name:            ProviderKimmyK2,
		EnvVar:          "KIMMY_K2_API_KEY",
		DefaultModel:    "kimmy-k2",
		DefaultBaseURL:  "https://api.kimmy.ai/v1",
		MaxOutputTokens: 8192,
		ContextWindow:   131072,
		Description:     "Kimmy K2 (API details pending)",
	},
}

// Provider name constants.
const (
	ProviderGLM     = "glm"
	ProviderClaude  = "claude"
	ProviderCodex   = "codex"
	ProviderKimmyK2 = "kimmy_k2"
)

// DefaultProvider is used when no provider is requested anywhere.
const DefaultProvider = ProviderGLM

// GetProviderInfo returns the catalog entry for a provider, or nil if the
// name is unknown.
func GetProviderInfo(name string) *ProviderInfo {
	for i := range Providers {
		if Providers[i].Name == name {
			return &Providers[i]
		}
	}
	return nil
}

// ProviderNames returns the names of all cataloged providers, in catalog
// order.
func ProviderNames() []string {
	names := make([]string, len(Providers))
	for i, p := range Providers {
		names[i] = p.Name
	}
	return names
}

// ProviderConfig is the fully resolved configuration for one provider
// adapter. It is immutable once resolved at process start.
type ProviderConfig struct {
	Provider        string `json:"provider"`
	APIKey          string `json:"-"`
	Model           string `json:"model"`
	BaseURL         string `json:"base_url,omitempty"`
	MaxOutputTokens int    `json:"max_output_tokens"`
	ContextWindow   int    `json:"context_window"`
}

// NewAdapter constructs the provider adapter matching cfg.Provider. Unknown
// providers and providers whose API is not yet available fail with a
// ConfigurationError.
func NewAdapter(cfg ProviderConfig) (ProviderAdapter, error) {
	if cfg.APIKey == "" {
		return nil, NewConfigurationError("provider %s: API key is required", cfg.Provider)
	}
	switch cfg.Provider {
	case ProviderClaude:
		return NewAnthropicAdapter(cfg), nil
	case ProviderGLM, ProviderCodex:
		return NewOpenAICompatAdapter(cfg), nil
	case ProviderKimmyK2:
		return nil, NewConfigurationError("provider kimmy_k2 is not implemented: API details are pending")
	default:
		return nil, NewConfigurationError("unknown provider %q (available: %v)", cfg.Provider, ProviderNames())
	}
}

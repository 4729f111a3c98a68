package model

// JudgeConfig describes one judge model of the panel. It is static for the
// lifetime of the process.
type JudgeConfig struct {
	Name              string `yaml:"name" json:"name" validate:"required,max=64"`
	Provider          string `yaml:"provider" json:"provider" validate:"required,oneof=openai anthropic googleai"`
	Model             string `yaml:"model" json:"model" validate:"required"`
	BaseURL           string `yaml:"base_url" json:"baseUrl,omitempty" validate:"omitempty,url"`
	APIKeyEnv         string `yaml:"api_key_env" json:"-" validate:"required"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requestsPerMinute,omitempty" validate:"gte=0"`
	MaxTokens         int    `yaml:"max_tokens" json:"maxTokens,omitempty" validate:"gte=0"`

	// APIKey is resolved from APIKeyEnv at load time.
	APIKey string `yaml:"-" json:"-"`
}

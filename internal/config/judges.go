package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/validation"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openRouterKeyEnv  = "OPENROUTER_API_KEY"
)

// DefaultJudges is the built-in three-model panel, served through
// OpenRouter's OpenAI-compatible API.
func DefaultJudges() []model.JudgeConfig {
	mk := func(name, m string) model.JudgeConfig {
		return model.JudgeConfig{
			Name:      name,
			Provider:  "openai",
			Model:     m,
			BaseURL:   openRouterBaseURL,
			APIKeyEnv: openRouterKeyEnv,
		}
	}
	return []model.JudgeConfig{
		mk("gpt", "openai/gpt-4o"),
		mk("claude", "anthropic/claude-sonnet-4"),
		mk("gemini", "google/gemini-2.0-flash-001"),
	}
}

type judgesFile struct {
	Judges []model.JudgeConfig `yaml:"judges"`
}

// ReadJudgesFile loads and validates a judge panel file:
//
//	judges:
//	  - name: gpt
//	    provider: openai
//	    model: gpt-4o
//	    api_key_env: OPENAI_API_KEY
func ReadJudgesFile(path string) ([]model.JudgeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read judges file: %w", err)
	}
	var f judgesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse judges file %s: %w", path, err)
	}
	if len(f.Judges) == 0 {
		return nil, fmt.Errorf("config: judges file %s defines no judges", path)
	}
	seen := make(map[string]bool, len(f.Judges))
	for i, j := range f.Judges {
		if err := validation.Struct(j); err != nil {
			return nil, fmt.Errorf("config: judge %d: %w", i, err)
		}
		if seen[j.Name] {
			return nil, fmt.Errorf("config: duplicate judge name %q", j.Name)
		}
		seen[j.Name] = true
	}
	return f.Judges, nil
}

// ResolveKeys reads each judge's API key from its environment variable.
// A missing key is an error: a panel with a keyless judge would score every
// scenario with that judge failing.
func ResolveKeys(judges []model.JudgeConfig) error {
	for i := range judges {
		key := os.Getenv(judges[i].APIKeyEnv)
		if key == "" {
			return fmt.Errorf("config: judge %q: %s is not set", judges[i].Name, judges[i].APIKeyEnv)
		}
		judges[i].APIKey = key
	}
	return nil
}

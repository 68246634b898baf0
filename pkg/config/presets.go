package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// presets tune the defaults for one model provider. Keys are lower case.
var presets = map[string]func(*Config){
	"zhipu": func(c *Config) {
		c.Model.Provider, c.Model.Model = "zhipu", "glm-4"
	},
	"doubao": func(c *Config) {
		// Doubao models are addressed by endpoint id, which is account specific.
		c.Model.Provider, c.Model.Model = "doubao", ""
	},
	"openai": func(c *Config) {
		c.Model.Provider, c.Model.Model = "openai", "gpt-4o-mini"
		c.Embedding = EmbeddingConfig{Provider: "openai", Model: "text-embedding-3-small", Dimensions: 1536}
	},
	"anthropic": func(c *Config) {
		c.Model.Provider, c.Model.Model = "anthropic", "claude-3-5-haiku-latest"
	},
	"gemini": func(c *Config) {
		c.Model.Provider, c.Model.Model = "gemini", "gemini-2.0-flash"
		c.Embedding = EmbeddingConfig{Provider: "gemini", Model: "text-embedding-004", Dimensions: 768}
	},
	"ollama": func(c *Config) {
		c.Model.Provider, c.Model.Model = "ollama", "llama3.2"
		c.Model.BaseURL = "http://localhost:11434"
	},
}

// PresetConfig returns the defaults adjusted for the named provider preset.
// Names are matched case-insensitively.
func PresetConfig(name string) (*Config, error) {
	tune, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}

	cfg := NewDefaultConfig()
	tune(cfg)
	return cfg, nil
}

// ValidPresetNames lists the preset names PresetConfig accepts, sorted.
func ValidPresetNames() []string {
	return slices.Sorted(maps.Keys(presets))
}

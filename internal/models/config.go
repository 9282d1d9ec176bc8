package models

// ModelConfig selects which model an internal/llmclient adapter calls and
// with what generation parameters.
type ModelConfig struct {
	Model         string  `json:"model"`          // provider-specific model id, e.g. "claude-sonnet-4-5" or "gpt-4o-mini"
	Provider      string  `json:"provider"`       // "anthropic" or "openai"
	Temperature   float64 `json:"temperature"`    // 0.0 to 2.0; 0 leaves the provider default in place
	MaxTokens     int     `json:"max_tokens"`     // max tokens to generate
	ContextWindow int     `json:"context_window"` // max context window size, used for compaction thresholds
}

// DefaultModelConfig returns a sensible default configuration.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Model:         "claude-sonnet-4-5",
		Provider:      "anthropic",
		Temperature:   0.7,
		MaxTokens:     4096,
		ContextWindow: 200000,
	}
}

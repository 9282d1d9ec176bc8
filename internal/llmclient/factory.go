package llmclient

import (
	"fmt"

	"github.com/autopoiesis-dev/agentcore/internal/models"
	"github.com/autopoiesis-dev/agentcore/internal/tools"
	"github.com/autopoiesis-dev/agentcore/internal/turn"
)

// New builds the turn.LLMClient named by model.Provider. Unlike the teacher's
// per-call MultiProviderClient, a runtime.Runtime holds one concrete client
// for its lifetime — the provider choice is a startup-time decision, not a
// per-request dispatch.
func New(model models.ModelConfig, toolSpecs []tools.ToolSpec) (turn.LLMClient, error) {
	switch model.Provider {
	case "", "anthropic":
		return NewAnthropicClient(model, toolSpecs), nil
	case "openai":
		return NewOpenAIClient(model, toolSpecs), nil
	default:
		return nil, fmt.Errorf("llmclient: unsupported provider %q (supported: anthropic, openai)", model.Provider)
	}
}

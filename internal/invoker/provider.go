package invoker

import (
	"fmt"

	"github.com/kordant/loom/internal/domain"
)

// NewInvoker creates an agent invoker for the given provider name.
// Returns an error if the provider is unknown or the API key is empty (except for mock).
func NewInvoker(provider, apiKey string) (domain.AgentInvoker, error) {
	switch domain.ModelProvider(provider) {
	case domain.ProviderOpenAI:
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for OpenAI provider")
		}
		return NewOpenAIInvoker(apiKey), nil

	case domain.ProviderAnthropic:
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required for Anthropic provider")
		}
		return NewAnthropicInvoker(apiKey), nil

	case domain.ProviderBedrock:
		// TODO: bedrock needs SigV4 signing, not a bearer key.
		return nil, fmt.Errorf("bedrock provider is not supported yet")

	case domain.ProviderMock:
		return NewMockInvoker(), nil

	default:
		return nil, fmt.Errorf("unknown invoker provider: %s (valid options: openai, anthropic, mock)", provider)
	}
}

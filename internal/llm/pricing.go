package llm

const DefaultModel = "gpt-4o-mini"

type modelRate struct {
	input  float64
	output float64
}

// Cost per 1K tokens, input and output priced separately.
var rates = map[string]modelRate{
	"gpt-4o-mini": {
		input:  0.00015, // $0.15 per 1M input tokens
		output: 0.0006,  // $0.60 per 1M output tokens
	},
	"gpt-4o": {
		input:  0.0025, // $2.50 per 1M input tokens
		output: 0.01,   // $10.00 per 1M output tokens
	},
	"gpt-4.1-mini": {
		input:  0.0004,
		output: 0.0016,
	},
	"gpt-3.5-turbo": {
		input:  0.0005,
		output: 0.0015,
	},
}

// EstimateLLMCost estimates the cost of an LLM request based on input/output tokens
func EstimateLLMCost(inputTokens, outputTokens int, model string) float64 {
	modelCosts, exists := rates[model]
	if !exists {
		// Unknown models are priced like the default model
		modelCosts = rates[DefaultModel]
	}

	inputCost := (float64(inputTokens) / 1000.0) * modelCosts.input
	outputCost := (float64(outputTokens) / 1000.0) * modelCosts.output

	return inputCost + outputCost
}

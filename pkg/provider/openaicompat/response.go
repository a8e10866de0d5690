package openaicompat

import (
	"github.com/rhuss/codeloop/pkg/provider"
)

// TranslateResponse converts a ChatCompletionResponse into a ProviderResponse.
// It uses only choices[0] and maps content, tool calls, finish reason, and usage.
func TranslateResponse(resp *ChatCompletionResponse) *provider.ProviderResponse {
	pr := &provider.ProviderResponse{
		Model: resp.Model,
	}

	// Map usage.
	if resp.Usage != nil {
		pr.Usage = provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return pr
	}

	choice := resp.Choices[0]
	pr.FinishReason = choice.FinishReason
	pr.Content = choice.Message.Content

	for _, tc := range choice.Message.ToolCalls {
		typ := tc.Type
		if typ == "" {
			typ = "function"
		}
		pr.ToolCalls = append(pr.ToolCalls, provider.ProviderToolCall{
			ID:   tc.ID,
			Type: typ,
			Function: provider.ProviderFunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	return pr
}

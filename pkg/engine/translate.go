package engine

import (
	"encoding/json"
	"fmt"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/provider"
	"github.com/rhuss/codeloop/pkg/tools"
)

// translateMessages converts the conversation log into provider messages.
// Each assistant tool call message becomes an assistant message with a
// single tool_calls entry.
func translateMessages(msgs []api.Message) []provider.ProviderMessage {
	out := make([]provider.ProviderMessage, 0, len(msgs))
	for _, m := range msgs {
		pm := provider.ProviderMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		switch m.Role {
		case api.RoleAssistant:
			if m.ToolCall != nil {
				pm.ToolCalls = []provider.ProviderToolCall{{
					ID:   m.ToolCall.ID,
					Type: "function",
					Function: provider.ProviderFunctionCall{
						Name:      m.ToolCall.Name,
						Arguments: m.ToolCall.Arguments,
					},
				}}
			}
		case api.RoleTool:
			pm.ToolCallID = m.ToolCallID
			pm.Name = m.Name
		}
		out = append(out, pm)
	}
	return out
}

// translateTools converts the executors' definitions into provider tools.
func translateTools(executors []tools.ToolExecutor) ([]provider.ProviderTool, error) {
	var out []provider.ProviderTool
	for _, ex := range executors {
		for _, def := range ex.Definitions() {
			var params json.RawMessage
			if def.Parameters != nil {
				data, err := json.Marshal(def.Parameters)
				if err != nil {
					return nil, fmt.Errorf("encoding parameters of tool %s: %w", def.Name, err)
				}
				params = data
			}
			out = append(out, provider.ProviderTool{
				Type: "function",
				Function: provider.ProviderFunctionDef{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  params,
				},
			})
		}
	}
	return out, nil
}

// extractToolCalls returns the tool calls of a provider response in order.
// Calls without an ID get a generated one so results can be linked.
func extractToolCalls(resp *provider.ProviderResponse) []api.ToolCall {
	if len(resp.ToolCalls) == 0 {
		return nil
	}
	calls := make([]api.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		id := tc.ID
		if id == "" {
			id = api.NewCallID()
		}
		calls = append(calls, api.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return calls
}

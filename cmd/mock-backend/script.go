package main

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// arithmetic matches prompts that are plain JavaScript arithmetic.
var arithmetic = regexp.MustCompile(`^[0-9\s+\-*/%().]+$`)

// respond answers a tool result with a summary and anything else with a
// javascript call, or with plain text when no tools are offered.
func respond(req *chatRequest) chatResponse {
	last := req.Messages[len(req.Messages)-1]

	if last.Role == "tool" {
		return textResponse(summarize(last))
	}

	prompt := ""
	if last.Content != nil {
		prompt = strings.TrimSpace(*last.Content)
	}
	if len(req.Tools) == 0 {
		return textResponse("You said: " + prompt)
	}
	return toolCallResponse(callID(len(req.Messages)), argumentsFor(prompt))
}

// argumentsFor builds the raw tool arguments for a prompt.
func argumentsFor(prompt string) string {
	switch {
	case strings.HasPrefix(prompt, "!malformed"):
		return `{not valid`
	case strings.HasPrefix(prompt, "!nocode"):
		return `{"minified":false}`
	}

	code := prompt
	if !arithmetic.MatchString(prompt) {
		quoted, _ := json.Marshal(prompt)
		code = fmt.Sprintf("log(%s); %s.length", quoted, quoted)
	}
	args, _ := json.Marshal(map[string]any{"code": code, "minified": false})
	return string(args)
}

// summarize turns a tool message into the final answer.
func summarize(msg chatMessage) string {
	if msg.Content == nil {
		return "The tool returned nothing."
	}
	var out struct {
		Result string `json:"result"`
		Stdout string `json:"stdout"`
	}
	if err := json.Unmarshal([]byte(*msg.Content), &out); err != nil {
		return "The tool returned: " + *msg.Content
	}
	if out.Stdout != "" {
		return fmt.Sprintf("The result is %s (output: %s).", out.Result, strings.TrimRight(out.Stdout, "\n"))
	}
	return fmt.Sprintf("The result is %s.", out.Result)
}

func callID(n int) string {
	return fmt.Sprintf("call_mock%020d", n)
}

func textResponse(text string) chatResponse {
	return chatResponse{
		ID:     "chatcmpl-mock-text",
		Object: "chat.completion",
		Choices: []chatChoice{{
			Message:      chatMsg{Role: "assistant", Content: &text},
			FinishReason: "stop",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
	}
}

func toolCallResponse(id, arguments string) chatResponse {
	return chatResponse{
		ID:     "chatcmpl-mock-tool",
		Object: "chat.completion",
		Choices: []chatChoice{{
			Message: chatMsg{
				Role: "assistant",
				ToolCalls: []toolCall{{
					ID:       id,
					Type:     "function",
					Function: funcCall{Name: "javascript", Arguments: arguments},
				}},
			},
			FinishReason: "tool_calls",
		}},
		Usage: chatUsage{PromptTokens: 10, CompletionTokens: 12, TotalTokens: 22},
	}
}

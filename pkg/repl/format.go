package repl

import (
	"encoding/json"
	"strings"

	"github.com/rhuss/codeloop/pkg/engine"
	"github.com/rhuss/codeloop/pkg/tools"
)

// formatEvent renders a progress event. Model requests are not printed;
// the spinner covers them.
func formatEvent(ev engine.Event) []string {
	switch ev.Type {
	case engine.EventAssistantText:
		return []string{dimStyle.Render("assistant: ") + ev.Text}

	case engine.EventToolCall:
		if ev.Call == nil {
			return nil
		}
		lines := []string{toolStyle.Render("▶ " + ev.Call.Name)}
		if args, err := tools.DecodeJavaScriptArgs(ev.Call.Arguments); err == nil {
			lines = append(lines, codeStyle.Render(args.Code))
		} else {
			lines = append(lines, codeStyle.Render(ev.Call.Arguments))
		}
		return lines

	case engine.EventToolResult:
		return formatToolOutput(ev.Output, ev.IsError)

	case engine.EventToolError:
		return []string{errorStyle.Render("Tool call rejected: ") + ev.Err.Error()}
	}
	return nil
}

// formatToolOutput renders the {"result","stdout"} tool message.
func formatToolOutput(output string, isError bool) []string {
	var out struct {
		Result string `json:"result"`
		Stdout string `json:"stdout"`
	}
	if err := json.Unmarshal([]byte(output), &out); err != nil {
		return []string{dimStyle.Render("◀ ") + output}
	}

	var lines []string
	if stdout := strings.TrimRight(out.Stdout, "\n"); stdout != "" {
		lines = append(lines, dimStyle.Render(stdout))
	}
	if isError {
		lines = append(lines, errorStyle.Render("◀ ")+out.Result)
	} else {
		lines = append(lines, toolStyle.Render("◀ ")+out.Result)
	}
	return lines
}

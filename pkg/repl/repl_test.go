package repl

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/rhuss/codeloop/pkg/api"
	"github.com/rhuss/codeloop/pkg/engine"
)

// fakeRunner records inputs and returns a scripted result.
type fakeRunner struct {
	inputs []string
	result *engine.TurnResult
	err    error
}

func (f *fakeRunner) RunTurn(_ context.Context, input string) (*engine.TurnResult, error) {
	f.inputs = append(f.inputs, input)
	return f.result, f.err
}

func newTestModel(r Runner) Model {
	return NewModel(context.Background(), r, NewFeed(), "codeloop")
}

func typeText(m Model, s string) Model {
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(Model)
}

func TestUpdate_EmptyPromptIsRejected(t *testing.T) {
	r := &fakeRunner{}
	m := newTestModel(r)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if cmd != nil {
		t.Error("empty prompt should not start a turn")
	}
	if m.busy {
		t.Error("model should not be busy")
	}
	if !strings.Contains(m.View(), EmptyPromptMessage) {
		t.Errorf("view should show %q:\n%s", EmptyPromptMessage, m.View())
	}

	// Typing clears the validation message.
	m = typeText(m, "x")
	if strings.Contains(m.View(), EmptyPromptMessage) {
		t.Error("validation message should clear on input")
	}
}

func TestUpdate_WhitespacePromptIsRejected(t *testing.T) {
	m := typeText(newTestModel(&fakeRunner{}), "   ")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if next.(Model).validation != EmptyPromptMessage {
		t.Error("whitespace-only prompt should be rejected")
	}
}

func TestUpdate_SubmitRunsTurn(t *testing.T) {
	r := &fakeRunner{result: &engine.TurnResult{Reply: "2", Rounds: 2}}
	m := typeText(newTestModel(r), "what is 1+1?")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	if !m.busy {
		t.Fatal("model should be busy while the turn runs")
	}
	if m.input.Value() != "" {
		t.Errorf("input not reset: %q", m.input.Value())
	}
	if cmd == nil {
		t.Fatal("expected a command")
	}

	// Run the turn the way bubbletea would and collect its completion.
	if msg := runTurn(m.ctx, r, m.feed, "what is 1+1?")(); msg != nil {
		t.Errorf("runTurn returned %v, want nil", msg)
	}
	if len(r.inputs) != 1 || r.inputs[0] != "what is 1+1?" {
		t.Errorf("inputs = %v", r.inputs)
	}
	done := waitForUpdate(m.feed.ch)()
	if _, ok := done.(turnDoneMsg); !ok {
		t.Fatalf("got %T, want turnDoneMsg", done)
	}

	next, _ = m.Update(done)
	m = next.(Model)
	if m.busy {
		t.Error("model should be idle after the turn")
	}
}

func TestUpdate_EnterIgnoredWhileBusy(t *testing.T) {
	m := newTestModel(&fakeRunner{})
	m.busy = true
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil || !next.(Model).busy {
		t.Error("enter should be ignored while busy")
	}
}

func TestUpdate_QuitKeys(t *testing.T) {
	for _, key := range []tea.KeyType{tea.KeyCtrlC, tea.KeyEsc} {
		m := newTestModel(&fakeRunner{})
		_, cmd := m.Update(tea.KeyMsg{Type: key})
		if cmd == nil {
			t.Fatalf("key %v: expected quit command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("key %v: expected tea.QuitMsg", key)
		}
	}
}

func TestFeed_PreservesOrder(t *testing.T) {
	feed := NewFeed()
	feed.Observe(engine.Event{Type: engine.EventToolCall})
	feed.ch <- turnDoneMsg{}

	if _, ok := waitForUpdate(feed.ch)().(eventMsg); !ok {
		t.Error("first message should be the event")
	}
	if _, ok := waitForUpdate(feed.ch)().(turnDoneMsg); !ok {
		t.Error("second message should be the completion")
	}
}

func TestFormatEvent_ToolCallShowsCode(t *testing.T) {
	call := api.ToolCall{ID: "call_1", Name: "javascript", Arguments: `{"code":"log('hi'); 1+1"}`}
	lines := formatEvent(engine.Event{Type: engine.EventToolCall, Call: &call})
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "javascript") || !strings.Contains(joined, "log('hi'); 1+1") {
		t.Errorf("lines = %q", joined)
	}
}

func TestFormatEvent_ToolResult(t *testing.T) {
	lines := formatEvent(engine.Event{Type: engine.EventToolResult, Output: `{"result":"2","stdout":"hi\n"}`})
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "hi") || !strings.Contains(joined, "2") {
		t.Errorf("lines = %q", joined)
	}
}

func TestFormatEvent_ModelRequestIsSilent(t *testing.T) {
	if lines := formatEvent(engine.Event{Type: engine.EventModelRequest, Round: 1}); len(lines) != 0 {
		t.Errorf("lines = %q", lines)
	}
}

func TestFormatEvent_ToolError(t *testing.T) {
	err := &api.MissingCodeError{Arguments: "{}"}
	lines := formatEvent(engine.Event{Type: engine.EventToolError, Err: err})
	if len(lines) != 1 || !strings.Contains(lines[0], err.Error()) {
		t.Errorf("lines = %q", lines)
	}
}

func TestFormatTurn(t *testing.T) {
	lines := formatTurn(&engine.TurnResult{Reply: "done"}, nil)
	if len(lines) != 1 || !strings.Contains(lines[0], "done") {
		t.Errorf("reply lines = %q", lines)
	}

	lines = formatTurn(nil, errors.New("backend down"))
	if len(lines) != 1 || !strings.Contains(lines[0], "backend down") {
		t.Errorf("error lines = %q", lines)
	}

	lines = formatTurn(&engine.TurnResult{ToolError: engine.ErrMaxToolRounds, Rounds: 10}, nil)
	if len(lines) != 1 || !strings.Contains(lines[0], "10") {
		t.Errorf("max rounds lines = %q", lines)
	}
}

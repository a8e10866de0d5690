// Package repl is the interactive terminal front end: a prompt that runs
// one engine turn per line and prints tool activity as it happens.
package repl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/rhuss/codeloop/pkg/debug"
	"github.com/rhuss/codeloop/pkg/engine"
)

// EmptyPromptMessage is shown when the user submits an empty line.
const EmptyPromptMessage = "Prompt cannot be empty"

// Runner runs one conversation turn. *engine.Engine implements it.
type Runner interface {
	RunTurn(ctx context.Context, input string) (*engine.TurnResult, error)
}

// Feed carries engine events and turn completions to the UI. Both travel
// on one channel so they are printed in the order they happened.
type Feed struct {
	ch chan tea.Msg
}

// NewFeed creates a feed.
func NewFeed() *Feed {
	return &Feed{ch: make(chan tea.Msg, 256)}
}

// Observe is an engine.Observer.
func (f *Feed) Observe(ev engine.Event) {
	f.ch <- eventMsg(ev)
}

type eventMsg engine.Event

type turnDoneMsg struct {
	result *engine.TurnResult
	err    error
}

// Model is the bubbletea model of the prompt loop.
type Model struct {
	ctx    context.Context
	runner Runner
	feed   *Feed
	title  string

	input   textinput.Model
	spinner spinner.Model

	busy       bool
	validation string
}

// NewModel creates the prompt model. title is printed once at start.
func NewModel(ctx context.Context, runner Runner, feed *Feed, title string) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask anything..."
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinStyle

	return Model{
		ctx:     ctx,
		runner:  runner,
		feed:    feed,
		title:   title,
		input:   ti,
		spinner: sp,
	}
}

// Run starts the terminal UI and blocks until the user quits.
func Run(ctx context.Context, runner Runner, feed *Feed, title string, opts ...tea.ProgramOption) error {
	_, err := tea.NewProgram(NewModel(ctx, runner, feed, title), opts...).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.Println(titleStyle.Render(m.title)),
		textinput.Blink,
		waitForUpdate(m.feed.ch),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy {
				return m, nil
			}
			return m.submit()
		}
		m.validation = ""

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		return m, tea.Batch(printLines(formatEvent(engine.Event(msg))), waitForUpdate(m.feed.ch))

	case turnDoneMsg:
		m.busy = false
		m.input.Focus()
		return m, tea.Batch(printLines(formatTurn(msg.result, msg.err)), waitForUpdate(m.feed.ch))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts a turn for the current input.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		m.validation = EmptyPromptMessage
		return m, nil
	}

	m.validation = ""
	m.busy = true
	m.input.Reset()
	m.input.Blur()

	debug.Log("repl", "prompt submitted", "length", len(text))
	return m, tea.Batch(
		tea.Println(userStyle.Render("> ")+text),
		m.spinner.Tick,
		runTurn(m.ctx, m.runner, m.feed, text),
	)
}

func (m Model) View() string {
	if m.busy {
		return m.spinner.View() + dimStyle.Render(" thinking...") + "\n"
	}
	view := m.input.View() + "\n"
	if m.validation != "" {
		view += errorStyle.Render(m.validation) + "\n"
	}
	view += dimStyle.Render("enter to send • esc to quit")
	return view
}

// runTurn runs the turn off the UI goroutine and reports completion
// through the feed, behind any events the turn produced.
func runTurn(ctx context.Context, runner Runner, feed *Feed, text string) tea.Cmd {
	return func() tea.Msg {
		res, err := runner.RunTurn(ctx, text)
		feed.ch <- turnDoneMsg{result: res, err: err}
		return nil
	}
}

func waitForUpdate(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func printLines(lines []string) tea.Cmd {
	if len(lines) == 0 {
		return nil
	}
	return tea.Println(strings.Join(lines, "\n"))
}

// formatTurn renders the end of a turn.
func formatTurn(res *engine.TurnResult, err error) []string {
	var lines []string
	if err != nil {
		return append(lines, errorStyle.Render("Error: ")+err.Error())
	}
	if res == nil {
		return nil
	}
	if res.Reply != "" {
		lines = append(lines, assistantStyle.Render("assistant: ")+res.Reply)
	}
	if errors.Is(res.ToolError, engine.ErrMaxToolRounds) {
		lines = append(lines, noticeStyle.Render(fmt.Sprintf("Stopped after %d model calls: %v", res.Rounds, res.ToolError)))
	}
	return lines
}

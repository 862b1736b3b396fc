package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"pyrstest/internal/dispatch"
	"pyrstest/internal/history"
	"pyrstest/internal/scenario"
)

// Options wires the scenario browser to the dispatch machinery.
type Options struct {
	Dispatcher *dispatch.Dispatcher
	Profile    *scenario.Profile
	History    *history.Store
	SkipBuild  bool
}

// Run launches the interactive scenario browser and blocks until the user
// quits.
func Run(opts Options) error {
	p := tea.NewProgram(newModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type uiState int

const (
	statePicking uiState = iota
	stateRunning
	stateViewing
)

// runFinishedMsg carries the dispatch result back onto the UI loop.
type runFinishedMsg struct {
	outcome *dispatch.Outcome
	err     error
}

// scenarioItem adapts a scenario for the bubbles list.
type scenarioItem struct {
	sc   scenario.Scenario
	note string
}

func (i scenarioItem) Title() string {
	return strings.Join(i.sc.Tokens(), " / ")
}

func (i scenarioItem) Description() string {
	if i.note != "" {
		return i.sc.Summary + "  · " + i.note
	}
	return i.sc.Summary
}

func (i scenarioItem) FilterValue() string {
	return strings.Join(append(i.sc.Tokens(), i.sc.Summary), " ")
}

type model struct {
	opts   Options
	styles Styles

	list     list.Model
	spinner  spinner.Model
	viewport viewport.Model
	renderer *glamour.TermRenderer

	state     uiState
	skipBuild bool
	current   *scenario.Scenario
	outcome   *dispatch.Outcome
	runErr    error
	cancelRun context.CancelFunc
	startedAt time.Time

	width  int
	height int
}

func newModel(opts Options) model {
	styles := DefaultStyles()

	// Per-token run counts from the history database enrich the listing.
	notes := make(map[string]string)
	if opts.History != nil {
		if stats, err := opts.History.GetStats(); err == nil {
			for token, count := range stats.ByToken {
				notes[token] = fmt.Sprintf("%d recorded runs", count)
			}
		}
	}

	items := make([]list.Item, 0, len(opts.Profile.Scenarios))
	for _, sc := range opts.Profile.Scenarios {
		item := scenarioItem{sc: sc}
		for _, token := range sc.Tokens() {
			if n, ok := notes[token]; ok {
				item.note = n
				break
			}
		}
		items = append(items, item)
	}

	delegate := list.NewDefaultDelegate()
	l := list.New(items, delegate, 0, 0)
	l.Title = fmt.Sprintf("HB2B test scenarios · profile %s", opts.Profile.Name)
	l.SetShowStatusBar(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	vp := viewport.New(80, 20)

	var renderer *glamour.TermRenderer
	if styles.Theme.IsDark {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
	} else {
		renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath("light"),
			glamour.WithWordWrap(80),
		)
	}

	return model{
		opts:      opts,
		styles:    styles,
		list:      l,
		spinner:   sp,
		viewport:  vp,
		renderer:  renderer,
		skipBuild: opts.SkipBuild,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-2)
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = msg.Height - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		if m.state != stateRunning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case runFinishedMsg:
		m.cancelRun = nil
		m.outcome = msg.outcome
		m.runErr = msg.err
		m.state = stateViewing
		m.viewport.SetContent(m.renderReport())
		m.viewport.GotoTop()
		return m, nil
	}

	return m.updateChild(msg)
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.state {
	case statePicking:
		// While the filter input is active every key belongs to the list.
		if m.list.FilterState() == list.Filtering {
			return m.updateChild(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "b":
			m.skipBuild = !m.skipBuild
			return m, nil
		case "enter":
			item, ok := m.list.SelectedItem().(scenarioItem)
			if !ok {
				return m, nil
			}
			sc := item.sc
			m.current = &sc
			m.state = stateRunning
			m.startedAt = time.Now()
			return m, tea.Batch(m.spinner.Tick, m.startRun(sc.Code))
		}
		return m.updateChild(msg)

	case stateRunning:
		if msg.String() == "ctrl+c" {
			if m.cancelRun != nil {
				m.cancelRun()
			}
			return m, tea.Quit
		}
		return m, nil

	case stateViewing:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.state = statePicking
			return m, nil
		case "r":
			if m.current != nil {
				m.state = stateRunning
				m.startedAt = time.Now()
				return m, tea.Batch(m.spinner.Tick, m.startRun(m.current.Code))
			}
		}
		return m.updateChild(msg)
	}
	return m, nil
}

func (m model) updateChild(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.state {
	case statePicking:
		m.list, cmd = m.list.Update(msg)
	case stateViewing:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// startRun dispatches the scenario off the UI loop and reports back with a
// runFinishedMsg.
func (m *model) startRun(token string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelRun = cancel
	d := m.opts.Dispatcher
	opts := dispatch.Options{SkipBuild: m.skipBuild}
	return func() tea.Msg {
		outcome, err := d.Dispatch(ctx, token, opts)
		return runFinishedMsg{outcome: outcome, err: err}
	}
}

func (m model) View() string {
	switch m.state {
	case stateRunning:
		token := ""
		if m.current != nil {
			token = strings.Join(m.current.Tokens(), " / ")
		}
		elapsed := time.Since(m.startedAt).Round(time.Second)
		build := "build + run"
		if m.skipBuild {
			build = "run only"
		}
		return fmt.Sprintf("\n  %s running %s (%s) · %s\n\n  %s\n",
			m.spinner.View(),
			m.styles.Bold.Render(token),
			build,
			elapsed,
			m.styles.Muted.Render("ctrl+c to abort"))

	case stateViewing:
		header := m.styles.Header.Render("scenario result")
		footer := m.styles.Footer.Render("esc back · r rerun · q quit")
		return header + "\n" + m.viewport.View() + "\n" + footer

	default:
		build := "on"
		if m.skipBuild {
			build = "off"
		}
		footer := m.styles.Footer.Render(
			fmt.Sprintf("enter run · b build (%s) · / filter · q quit", build))
		return m.list.View() + "\n" + footer
	}
}

// renderReport assembles the dispatch outcome as markdown and renders it
// with glamour, falling back to the raw text if rendering fails.
func (m model) renderReport() string {
	raw := m.reportMarkdown()
	if m.renderer == nil {
		return raw
	}
	rendered, err := m.renderer.Render(raw)
	if err != nil {
		return raw
	}
	return rendered
}

func (m model) reportMarkdown() string {
	var b strings.Builder
	o := m.outcome

	if o == nil || o.Scenario == nil {
		fmt.Fprintf(&b, "# dispatch failed\n\n")
		if m.runErr != nil {
			fmt.Fprintf(&b, "**error:** %v\n", m.runErr)
		}
		return b.String()
	}

	fmt.Fprintf(&b, "# %s\n\n%s\n\n", strings.Join(o.Scenario.Tokens(), " / "), o.Scenario.Summary)

	if m.runErr != nil {
		fmt.Fprintf(&b, "**harness error:** %v\n\n", m.runErr)
	}

	if o.Build != nil {
		fmt.Fprintf(&b, "## Build\n\n")
		fmt.Fprintf(&b, "exit %d in %s\n\n", o.Build.ExitCode, o.Build.Duration.Round(time.Millisecond))
		if !o.Build.Passed() {
			writeTail(&b, o.Build.Output(), 30)
		}
	}

	if o.Scenario.NoOp {
		fmt.Fprintf(&b, "## Scenario\n\nThis token is reserved and runs nothing.\n")
		return b.String()
	}

	if o.Run != nil {
		fmt.Fprintf(&b, "## Scenario\n\n")
		if o.Run.Killed {
			fmt.Fprintf(&b, "**killed:** %s\n\n", o.Run.KillReason)
		}
		fmt.Fprintf(&b, "exit %d in %s\n\n", o.Run.ExitCode, o.Run.Duration.Round(time.Millisecond))
		writeTail(&b, o.Run.Output(), 60)
	}

	fmt.Fprintf(&b, "\n---\n\nharness exit code: **%d**\n", o.ExitCode)
	return b.String()
}

// writeTail appends the last n lines of text as a fenced code block.
func writeTail(b *strings.Builder, text string, n int) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	fmt.Fprintf(b, "```\n%s\n```\n", strings.Join(lines, "\n"))
}

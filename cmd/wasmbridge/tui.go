package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.bytecodealliance.org/wit"
	"golang.org/x/term"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
	"github.com/wippyai/wasm-bridge/script"
)

var tuiCmd = &cobra.Command{
	Use:   "tui <file.wasm>",
	Short: "Pick and call exported functions in a terminal UI",
	Args:  cobra.ExactArgs(1),
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

const historySize = 5

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
	kindStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	paneStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

type keyMap struct {
	Up, Down, Call, Next, Back, Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Call, k.Next, k.Back, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newKeyMap() keyMap {
	return keyMap{
		Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Call: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "call")),
		Next: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next arg"), key.WithDisabled()),
		Back: key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back"), key.WithDisabled()),
		Quit: key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
	}
}

type view int

const (
	viewList view = iota
	viewArgs
	viewResult
)

// export is one callable function of the loaded instance.
type export struct {
	info   runtime.FunctionInfo
	fn     *wit.Function
}

type callRecord struct {
	call    string
	outcome string
	failed  bool
}

type tuiModel struct {
	rt       *runtime.Context
	filename string
	module   runtime.ModuleInfo
	exports  []export
	cursor   int
	args     []textinput.Model
	focus    int
	view     view
	history  []callRecord
	loadErr  error
	keys     keyMap
	help     help.Model
}

type loadedMsg struct {
	rt      *runtime.Context
	module  runtime.ModuleInfo
	exports []export
	err     error
}

type calledMsg callRecord

func newTUIModel(filename string) *tuiModel {
	m := &tuiModel{filename: filename, keys: newKeyMap(), help: help.New()}
	m.setView(viewList)
	return m
}

func (m *tuiModel) Init() tea.Cmd {
	return m.load
}

func (m *tuiModel) load() tea.Msg {
	ctx := context.Background()

	data, err := os.ReadFile(m.filename)
	if err != nil {
		return loadedMsg{err: err}
	}
	rt, err := newContext(ctx)
	if err != nil {
		return loadedMsg{err: err}
	}

	res, err := inspect(ctx, rt, data)
	switch {
	case err != nil:
	case res.Note != "":
		err = errors.InvalidArgument(errors.PhaseInstantiate, "%s", res.Note)
	case len(res.Functions) == 0:
		err = errors.NotFound(errors.PhaseLookup, "exported function in", m.filename)
	}
	if err != nil {
		rt.Close(ctx)
		return loadedMsg{err: err}
	}

	exports := make([]export, len(res.Functions))
	for i, f := range res.Functions {
		exports[i].info = f
		exports[i].fn = runtime.WITFunction(f.Name, f.Signature())
	}
	return loadedMsg{rt: rt, module: res.Module, exports: exports}
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		m.rt, m.module, m.exports, m.loadErr = msg.rt, msg.module, msg.exports, msg.err
		return m, nil

	case calledMsg:
		m.history = append([]callRecord{callRecord(msg)}, m.history...)
		if len(m.history) > historySize {
			m.history = m.history[:historySize]
		}
		m.setView(viewResult)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || (m.view != viewArgs && key.Matches(msg, m.keys.Quit)) {
			if m.rt != nil {
				m.rt.Close(context.Background())
			}
			return m, tea.Quit
		}
		switch m.view {
		case viewList:
			return m.updateList(msg)
		case viewArgs:
			return m.updateArgs(msg)
		case viewResult:
			if key.Matches(msg, m.keys.Call, m.keys.Back) {
				m.setView(viewList)
			}
		}
	}
	return m, nil
}

func (m *tuiModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.exports)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Call):
		if len(m.exports) == 0 {
			return m, nil
		}
		m.args = argInputs(m.exports[m.cursor])
		if len(m.args) == 0 {
			return m, m.call
		}
		m.focus = 0
		m.setView(viewArgs)
	}
	return m, nil
}

func (m *tuiModel) updateArgs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Call):
		return m, m.call
	case key.Matches(msg, m.keys.Back):
		m.args = nil
		m.setView(viewList)
		return m, nil
	case key.Matches(msg, m.keys.Next):
		m.args[m.focus].Blur()
		m.focus = (m.focus + 1) % len(m.args)
		return m, m.args[m.focus].Focus()
	}

	var cmd tea.Cmd
	m.args[m.focus], cmd = m.args[m.focus].Update(msg)
	return m, cmd
}

func (m *tuiModel) setView(v view) {
	m.view = v
	m.keys.Up.SetEnabled(v == viewList)
	m.keys.Down.SetEnabled(v == viewList)
	m.keys.Next.SetEnabled(v == viewArgs && len(m.args) > 1)
	m.keys.Back.SetEnabled(v != viewList)
	m.keys.Quit.SetEnabled(v != viewArgs)
}

func argInputs(e export) []textinput.Model {
	inputs := make([]textinput.Model, len(e.fn.Params))
	for i, p := range e.fn.Params {
		ti := textinput.New()
		ti.Prompt = p.Name + ": "
		ti.Placeholder = p.Type.WIT(nil, "")
		ti.Width = 32
		if i == 0 {
			ti.Focus()
		}
		inputs[i] = ti
	}
	return inputs
}

func (m *tuiModel) call() tea.Msg {
	e := m.exports[m.cursor]
	values := make([]any, len(m.args))
	shown := make([]string, len(m.args))
	for i, in := range m.args {
		v := strings.TrimSpace(in.Value())
		values[i] = convertArg(v, e.fn.Params[i].Type)
		shown[i] = v
	}

	rec := callRecord{call: e.info.Name + "(" + strings.Join(shown, ", ") + ")"}
	results, err := m.rt.ExecuteFunction(context.Background(), e.info.Handle, values)
	switch {
	case err != nil:
		rec.outcome, rec.failed = err.Error(), true
	case len(results) == 0:
		rec.outcome = "(no results)"
	default:
		rec.outcome = script.FormatResults(results)
	}
	return calledMsg(rec)
}

// convertArg parses input for a parameter of type t. Unparseable input is
// passed through as a string so the call reports a marshal error.
func convertArg(value string, t wit.Type) any {
	switch t.(type) {
	case wit.S32:
		if v, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(v)
		}
	case wit.S64:
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	case wit.F32:
		if v, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(v)
		}
	case wit.F64:
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return v
		}
	}
	return script.ParseValue(value)
}

func (m *tuiModel) View() string {
	if m.loadErr != nil {
		return failStyle.Render("Error: "+m.loadErr.Error()) + "\n\n" + dimStyle.Render("q quit")
	}
	if m.rt == nil {
		return "Loading " + m.filename + "..."
	}

	header := headerStyle.Render("wasmbridge") + " " + m.filename + " " +
		dimStyle.Render(fmt.Sprintf("%s · %d bytes · %d exports", m.rt.Backend(), m.module.Size, len(m.module.Exports)))

	var body string
	switch m.view {
	case viewList:
		body = lipgloss.JoinHorizontal(lipgloss.Top, paneStyle.Render(m.listView()), paneStyle.Render(m.detailView()))
	case viewArgs:
		body = paneStyle.Render(m.argsView())
	case viewResult:
		body = paneStyle.Render(m.resultView())
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.help.View(m.keys))
}

func (m *tuiModel) listView() string {
	lines := make([]string, len(m.exports))
	for i, e := range m.exports {
		if i == m.cursor {
			lines[i] = cursorStyle.Render("> " + e.info.Name)
		} else {
			lines[i] = "  " + nameStyle.Render(e.info.Name)
		}
	}
	return strings.Join(lines, "\n")
}

func (m *tuiModel) detailView() string {
	e := m.exports[m.cursor].info
	var b strings.Builder
	b.WriteString(kindStyle.Render(e.WIT))
	fmt.Fprintf(&b, "\n\nexport index %d\n", e.Index)
	fmt.Fprintf(&b, "core type    %s\n", e.Signature())
	if len(m.history) > 0 {
		b.WriteString("\nrecent calls\n")
		for _, r := range m.history {
			b.WriteString(dimStyle.Render(r.call + " = "))
			b.WriteString(outcomeStyle(r).Render(r.outcome))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *tuiModel) argsView() string {
	e := m.exports[m.cursor]
	lines := []string{kindStyle.Render(e.info.WIT), ""}
	for _, in := range m.args {
		lines = append(lines, in.View())
	}
	return strings.Join(lines, "\n")
}

func (m *tuiModel) resultView() string {
	r := m.history[0]
	return nameStyle.Render(r.call) + "\n\n" + outcomeStyle(r).Render(r.outcome)
}

func outcomeStyle(r callRecord) lipgloss.Style {
	if r.failed {
		return failStyle
	}
	return okStyle
}

func runTUI(cmd *cobra.Command, args []string) error {
	if f, ok := cmd.OutOrStdout().(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return errors.Unsupported(errors.PhaseInit, "tui needs a terminal; use run or script")
	}
	_, err := tea.NewProgram(newTUIModel(args[0]), tea.WithAltScreen()).Run()
	return err
}

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	xfbridge "github.com/wippyai/xf-bridge"
	"github.com/wippyai/xf-bridge/adapter"
	"github.com/wippyai/xf-bridge/config"
	"github.com/wippyai/xf-bridge/logging"
	"github.com/wippyai/xf-bridge/relay"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	methodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// historySize is how many past calls the TUI keeps on screen.
const historySize = 8

type interactiveModel struct {
	err      error
	host     *host
	bridge   *adapter.Adapter
	cfg      config.Config
	methods  []xfbridge.MethodID
	history  []callResult
	input    textinput.Model
	selected int
	state    modelState
}

type modelState int

const (
	stateSelectMethod modelState = iota
	stateInputArgs
	stateShowResult
)

func newInteractiveModel(cfg config.Config, inputs []float64) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "inputs: "
	ti.Placeholder = "1, 2.5, 3"
	ti.Width = 40
	ti.SetValue(strings.Trim(formatValues(inputs), "[]"))

	return &interactiveModel{
		cfg:     cfg,
		methods: xfbridge.Methods(),
		input:   ti,
		state:   stateSelectMethod,
	}
}

type loadedMsg struct {
	err    error
	bridge *adapter.Adapter
}

type callResultMsg struct {
	err    error
	result callResult
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadBridge
}

func (m *interactiveModel) loadBridge() tea.Msg {
	logger, err := logging.New(m.cfg.Log)
	if err != nil {
		return loadedMsg{err: err}
	}
	bridge, err := adapter.New(m.cfg, relay.NewStaticBuffer(), logger)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{bridge: bridge}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.close()
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				m.close()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectMethod && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectMethod && m.selected < len(m.methods)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectMethod:
				if m.methods[m.selected] != xfbridge.MethodCalculate {
					return m, m.callMethod
				}
				m.input.Focus()
				m.state = stateInputArgs
				return m, textinput.Blink

			case stateInputArgs:
				m.input.Blur()
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectMethod
				m.err = nil
			}
			return m, nil

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.input.Blur()
				m.state = stateSelectMethod
			case stateShowResult:
				m.state = stateSelectMethod
				m.err = nil
			}
			return m, nil
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.bridge = msg.bridge
		inputs, _ := parseValues(m.input.Value())
		m.host = newHost(msg.bridge, inputs)

	case callResultMsg:
		m.err = msg.err
		if msg.err == nil {
			m.history = append(m.history, msg.result)
			if len(m.history) > historySize {
				m.history = m.history[len(m.history)-historySize:]
			}
		}
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) callMethod() tea.Msg {
	if m.host == nil {
		return callResultMsg{err: fmt.Errorf("bridge not loaded")}
	}

	id := m.methods[m.selected]
	if id == xfbridge.MethodCalculate {
		inputs, err := parseValues(m.input.Value())
		if err != nil {
			return callResultMsg{err: err}
		}
		m.host.inputs = inputs
	}
	return callResultMsg{result: m.host.call(context.Background(), id)}
}

func (m *interactiveModel) close() {
	if m.bridge != nil {
		m.bridge.Close(context.Background())
	}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if m.host == nil {
		return "Loading bridge..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("XF Bridge"))
	b.WriteString(" ")
	b.WriteString(m.cfg.Module.Path)
	b.WriteString(" ")
	b.WriteString(idStyle.Render(m.bridge.State().String()))
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectMethod:
		b.WriteString("Select a method to call:\n\n")
		for i, id := range m.methods {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatMethod(id)))
			} else {
				b.WriteString("  " + formatMethod(id))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		b.WriteString(fmt.Sprintf("Calling %s\n\n", methodStyle.Render(xfbridge.MethodCalculate.String())))
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter call • esc back"))

	case stateShowResult:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n")
		}
		for _, r := range m.history {
			style := resultStyle
			if r.status != xfbridge.StatusSuccess {
				style = errorStyle
			}
			b.WriteString(style.Render(r.String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func formatMethod(id xfbridge.MethodID) string {
	return methodStyle.Render(id.String()) + " " + idStyle.Render(fmt.Sprintf("(%d)", id))
}

func runInteractive(cfg config.Config, inputs []float64) error {
	p := tea.NewProgram(newInteractiveModel(cfg, inputs), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

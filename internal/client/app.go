package client

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fenggwsx/wsbridge/internal/config"
)

// App implements the bubbletea tea.Model interface for the relay console.
type App struct {
	cfg       config.ClientConfig
	session   *Session
	serverURL string
	online    bool

	input    textinput.Model
	viewport viewport.Model
	helper   help.Model
	styles   styleSet
	commands []commandSpec

	view    viewMode
	history []entry
	logLine logLine

	width      int
	height     int
	showHelp   bool
	helpView   string
	helpHeight int
}

type viewMode int

const (
	viewLog viewMode = iota
	viewHelp
)

func (v viewMode) String() string {
	switch v {
	case viewHelp:
		return "help"
	default:
		return "log"
	}
}

type direction string

const (
	directionIn  direction = "IN"
	directionOut direction = "OUT"
)

type entry struct {
	timestamp time.Time
	direction direction
	body      string
}

type logLevel int

const (
	logLevelInfo logLevel = iota
	logLevelError
)

type logLine struct {
	label string
	body  string
	level logLevel
}

type styleSet struct {
	title         lipgloss.Style
	view          lipgloss.Style
	statusOnline  lipgloss.Style
	statusOffline lipgloss.Style
	label         lipgloss.Style
	value         lipgloss.Style
	command       lipgloss.Style
	logLabel      lipgloss.Style
	logBody       lipgloss.Style
	logLabelError lipgloss.Style
	logBodyError  lipgloss.Style
	help          lipgloss.Style
}

type connectResultMsg struct {
	session *Session
	url     string
	err     error
}

type sessionMessageMsg struct {
	session *Session
	payload []byte
}

type sessionClosedMsg struct {
	session *Session
}

type sendResultMsg struct {
	session     *Session
	description string
	err         error
}

const historyLimit = 500

// NewApp returns a console model that connects to cfg.ServerURL on start.
func NewApp(cfg config.ClientConfig) *App {
	if cfg.CommandPrefix == 0 {
		cfg.CommandPrefix = '/'
	}

	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = fmt.Sprintf("text or %shelp", string(cfg.CommandPrefix))
	input.Focus()

	a := &App{
		cfg:       cfg,
		serverURL: cfg.ServerURL,
		input:     input,
		viewport:  viewport.New(0, 0),
		helper:    help.New(),
		styles:    buildStyles(),
		commands:  defaultCommands(cfg.CommandPrefix),
		history:   make([]entry, 0, historyLimit),
		logLine:   logLine{label: "INFO", body: "Welcome"},
	}
	a.updateViewportContent()
	return a
}

// Init connects to the configured hub.
func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.connectToServer(a.serverURL))
}

// Update handles key input and session events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = m.Width
		a.height = m.Height
		a.updateInputWidth()
		a.updateHelp()
		a.updateViewportSize()
		a.updateViewportContent()
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)
	case connectResultMsg:
		return a, a.handleConnectResult(m)
	case sessionMessageMsg:
		return a, a.handleSessionMessage(m)
	case sessionClosedMsg:
		a.handleSessionClosed(m)
		return a, nil
	case sendResultMsg:
		a.handleSendResult(m)
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if a.session != nil {
			_ = a.session.Close()
			a.session = nil
		}
		return a, tea.Quit
	case tea.KeyEnter:
		value := a.input.Value()
		a.input.Reset()
		a.updateHelp()
		a.updateViewportSize()
		return a, a.handleSubmit(value)
	case tea.KeyTab:
		a.handleTabCompletion()
		a.updateHelp()
		a.updateViewportSize()
		return a, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	a.updateHelp()
	a.updateViewportSize()
	return a, cmd
}

func (a *App) logf(format string, args ...interface{}) {
	a.logLine = logLine{label: "INFO", body: fmt.Sprintf(format, args...), level: logLevelInfo}
}

func (a *App) logErrorf(format string, args ...interface{}) {
	a.logLine = logLine{label: "ERROR", body: fmt.Sprintf(format, args...), level: logLevelError}
}

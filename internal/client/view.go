package client

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/mattn/go-runewidth"
)

var homeArt = strings.TrimRight(figure.NewColorFigure("WS BRIDGE", "3-d", "cyan", true).String(), "\n")

// View renders the terminal UI.
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(a.viewport.View())
	b.WriteString("\n")

	if a.showHelp && a.helpView != "" {
		b.WriteString(a.styles.help.Render(a.helpView))
		b.WriteString("\n")
	}

	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(a.logLineView())
	b.WriteString("\n")
	b.WriteString(a.statusLine())

	return b.String()
}

func (a *App) updateViewportContent() {
	switch a.view {
	case viewLog:
		if len(a.history) == 0 {
			a.viewport.SetContent(a.homeContent())
			return
		}
		a.viewport.SetContent(a.renderLogView())
		a.viewport.GotoBottom()
	case viewHelp:
		a.viewport.SetContent(a.renderHelpView())
		a.viewport.GotoTop()
	}
}

func (a *App) updateViewportSize() {
	if a.height == 0 {
		return
	}
	const fixed = 3
	height := a.height - fixed - a.helpHeight
	if height < 3 {
		height = 3
	}
	a.viewport.Height = height
	a.viewport.Width = a.width
}

func (a *App) updateInputWidth() {
	width := a.width
	if width <= 0 {
		width = 60
	}
	usable := width - lipgloss.Width(a.input.Prompt) - 1
	if usable < 10 {
		usable = 10
	}
	a.input.Width = usable
}

func (a *App) updateHelp() {
	value := a.input.Value()
	if value == "" || !strings.HasPrefix(value, string(a.cfg.CommandPrefix)) {
		a.clearHelp()
		return
	}

	token := value
	if idx := strings.IndexAny(value, " \t"); idx >= 0 {
		token = value[:idx]
	}

	bindings := a.matchingBindings(token)
	if len(bindings) == 0 {
		a.clearHelp()
		return
	}

	a.showHelp = true
	a.helper.Width = a.width
	view := strings.TrimRight(a.helper.View(dynamicKeyMap{keys: bindings}), "\n")
	a.helpView = view
	a.helpHeight = countLines(view)
}

func (a *App) clearHelp() {
	a.showHelp = false
	a.helpView = ""
	a.helpHeight = 0
}

func (a *App) matchingBindings(prefix string) []key.Binding {
	prefix = strings.ToLower(prefix)
	var bindings []key.Binding
	for _, c := range a.commands {
		if strings.HasPrefix(c.trigger, prefix) {
			bindings = append(bindings, key.NewBinding(
				key.WithKeys(c.usage),
				key.WithHelp(c.usage, c.description),
			))
		}
	}
	return bindings
}

func (a *App) statusLine() string {
	status := "OFFLINE"
	statusStyle := a.styles.statusOffline
	if a.isConnected() {
		status = "ONLINE"
		statusStyle = a.styles.statusOnline
	}
	server := a.serverURL
	if server == "" {
		server = "-"
	}

	parts := []string{
		a.styles.title.Render("WSBridge"),
		a.styles.view.Render(strings.ToUpper(a.view.String())),
		statusStyle.Render(status),
		a.styles.label.Render("Hub") + ": " + a.styles.value.Render(server),
		a.styles.label.Render("Frames") + ": " + a.styles.value.Render(fmt.Sprintf("%d", len(a.history))),
	}
	return strings.Join(parts, " | ")
}

func (a *App) logLineView() string {
	labelStyle := a.styles.logLabel
	bodyStyle := a.styles.logBody
	if a.logLine.level == logLevelError {
		labelStyle = a.styles.logLabelError
		bodyStyle = a.styles.logBodyError
	}
	return labelStyle.Render(a.logLine.label) + " " + bodyStyle.Render(a.logLine.body)
}

func buildStyles() styleSet {
	base := lipgloss.NewStyle()
	return styleSet{
		title:         base.Foreground(lipgloss.Color("13")).Bold(true),
		view:          base.Foreground(lipgloss.Color("14")).Bold(true),
		statusOnline:  base.Foreground(lipgloss.Color("10")).Bold(true),
		statusOffline: base.Foreground(lipgloss.Color("9")).Bold(true),
		label:         base.Foreground(lipgloss.Color("8")),
		value:         base.Foreground(lipgloss.Color("15")),
		command:       base.Foreground(lipgloss.Color("11")).Bold(true),
		logLabel:      base.Foreground(lipgloss.Color("11")).Bold(true),
		logBody:       base.Foreground(lipgloss.Color("7")),
		logLabelError: base.Foreground(lipgloss.Color("9")).Bold(true),
		logBodyError:  base.Foreground(lipgloss.Color("9")),
		help:          base.Foreground(lipgloss.Color("12")),
	}
}

func (a *App) renderHelpView() string {
	var b strings.Builder
	b.WriteString("WSBridge Commands\n\n")
	for _, c := range a.commands {
		b.WriteString(fmt.Sprintf("%-22s %s\n", c.usage, c.description))
	}
	b.WriteString("\nAnything else is broadcast as a JSON string.")
	return b.String()
}

func (a *App) renderLogView() string {
	width := a.viewport.Width
	if width <= 0 {
		width = a.width
	}
	var b strings.Builder
	for i, e := range a.history {
		header := fmt.Sprintf("[%s %s]", e.timestamp.Format("15:04:05.000"), e.direction)
		b.WriteString(a.styles.label.Render(header))
		if name := commandLabel(e.body); name != "" {
			b.WriteString(" ")
			b.WriteString(a.styles.command.Render(name))
		}
		b.WriteString("\n")
		b.WriteString(strings.Join(wrapLines([]string{e.body}, width), "\n"))
		if i < len(a.history)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (a *App) homeContent() string {
	p := string(a.cfg.CommandPrefix)
	info := []string{
		fmt.Sprintf("Use %sconnect <ip> <port> to open the relay's TCP connection.", p),
		fmt.Sprintf("Use %ssend <json> to forward a value, %sdestroy to close it.", p, p),
		fmt.Sprintf("Use %sraw <json> to broadcast any value to every client.", p),
		fmt.Sprintf("Use %shelp to browse all commands.", p),
	}
	return homeArt + "\n\n" + strings.Join(info, "\n")
}

func wrapLines(lines []string, width int) []string {
	if width <= 0 {
		return lines
	}
	const minWidth = 10
	if width < minWidth {
		width = minWidth
	}

	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		segment := line
		if segment == "" {
			wrapped = append(wrapped, "")
			continue
		}
		for len(segment) > 0 {
			if runewidth.StringWidth(segment) <= width {
				wrapped = append(wrapped, segment)
				break
			}
			cut := wrapCutIndex(segment, width)
			part := strings.TrimRight(segment[:cut], " ")
			if part == "" {
				part = segment[:cut]
			}
			wrapped = append(wrapped, part)
			segment = strings.TrimLeft(segment[cut:], " ")
		}
	}
	return wrapped
}

func wrapCutIndex(s string, limit int) int {
	var width int
	lastSpace := -1
	for i, r := range s {
		rw := runewidth.RuneWidth(r)
		if width+rw > limit {
			if lastSpace >= 0 {
				return lastSpace + 1
			}
			if i == 0 {
				return len(string(r))
			}
			return i
		}
		width += rw
		if unicode.IsSpace(r) {
			lastSpace = i
		}
	}
	return len(s)
}

type dynamicKeyMap struct {
	keys []key.Binding
}

func (d dynamicKeyMap) ShortHelp() []key.Binding {
	return d.keys
}

func (d dynamicKeyMap) FullHelp() [][]key.Binding {
	if len(d.keys) == 0 {
		return [][]key.Binding{}
	}
	return [][]key.Binding{d.keys}
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

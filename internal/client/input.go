package client

import "strings"

// handleTabCompletion extends a partially typed command name to the longest
// prefix shared by every matching command.
func (a *App) handleTabCompletion() {
	value := a.input.Value()
	if value == "" || a.input.Position() != len([]rune(value)) {
		return
	}
	if !strings.HasPrefix(value, string(a.cfg.CommandPrefix)) || strings.ContainsAny(value, " \t") {
		return
	}

	completed := completeCommand(a.commands, value)
	if len(completed) <= len(value) {
		return
	}
	a.input.SetValue(completed)
	a.input.CursorEnd()
}

func completeCommand(commands []commandSpec, typed string) string {
	var matches []string
	for _, c := range commands {
		if strings.HasPrefix(c.trigger, strings.ToLower(typed)) {
			matches = append(matches, c.trigger)
		}
	}
	if len(matches) == 0 {
		return typed
	}
	if len(matches) == 1 {
		return matches[0] + " "
	}
	return longestCommonPrefix(matches)
}

func longestCommonPrefix(values []string) string {
	if len(values) == 0 {
		return ""
	}
	prefix := values[0]
	for _, s := range values[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}

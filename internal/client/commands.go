package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/wsbridge/internal/protocol"
)

type actionKind int

const (
	actionBroadcast actionKind = iota
	actionReconnect
	actionClear
	actionHelp
	actionLog
	actionQuit
)

// action is what one submitted input line asks the console to do.
type action struct {
	kind        actionKind
	payload     []byte
	description string
}

var errEmptyInput = errors.New("empty input")

type usageError struct {
	usage string
}

func (e usageError) Error() string {
	return "usage: " + e.usage
}

type commandSpec struct {
	trigger     string
	usage       string
	description string
}

func defaultCommands(prefix rune) []commandSpec {
	p := string(prefix)
	return []commandSpec{
		{trigger: p + "connect", usage: p + "connect <ip> <port>", description: "Open the relay's TCP connection"},
		{trigger: p + "send", usage: p + "send <json>", description: "Forward a JSON value over TCP"},
		{trigger: p + "destroy", usage: p + "destroy", description: "Close the relay's TCP connection"},
		{trigger: p + "raw", usage: p + "raw <json>", description: "Broadcast any JSON value"},
		{trigger: p + "reconnect", usage: p + "reconnect", description: "Reconnect to the hub"},
		{trigger: p + "clear", usage: p + "clear", description: "Clear the broadcast log"},
		{trigger: p + "log", usage: p + "log", description: "Switch to the broadcast log"},
		{trigger: p + "help", usage: p + "help", description: "Show command help"},
		{trigger: p + "quit", usage: p + "quit", description: "Exit the console"},
	}
}

// parseInput turns an input line into an action. Lines that do not start with
// prefix are broadcast as a JSON string.
func parseInput(prefix rune, line string) (action, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return action{}, errEmptyInput
	}
	p := string(prefix)
	if !strings.HasPrefix(line, p) {
		payload, err := protocol.EncodeValue(line)
		if err != nil {
			return action{}, err
		}
		return action{kind: actionBroadcast, payload: payload, description: "text"}, nil
	}

	body := strings.TrimPrefix(line, p)
	name, rest, _ := strings.Cut(body, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "connect":
		return connectAction(p, strings.Fields(rest))
	case "send":
		if rest == "" {
			return action{}, usageError{usage: p + "send <json>"}
		}
		value, err := protocol.DecodeValue([]byte(rest))
		if err != nil {
			return action{}, fmt.Errorf("invalid JSON: %w", err)
		}
		payload, err := protocol.EncodeValue(protocol.SendTCP{Command: protocol.CommandSendTCP, Data: value})
		if err != nil {
			return action{}, err
		}
		return action{kind: actionBroadcast, payload: payload, description: string(protocol.CommandSendTCP)}, nil
	case "destroy":
		payload, err := protocol.EncodeValue(protocol.DestroyTCP{Command: protocol.CommandDestroyTCP})
		if err != nil {
			return action{}, err
		}
		return action{kind: actionBroadcast, payload: payload, description: string(protocol.CommandDestroyTCP)}, nil
	case "raw":
		if rest == "" {
			return action{}, usageError{usage: p + "raw <json>"}
		}
		value, err := protocol.DecodeValue([]byte(rest))
		if err != nil {
			return action{}, fmt.Errorf("invalid JSON: %w", err)
		}
		payload, err := protocol.EncodeValue(value)
		if err != nil {
			return action{}, err
		}
		return action{kind: actionBroadcast, payload: payload, description: "raw"}, nil
	case "reconnect":
		return action{kind: actionReconnect}, nil
	case "clear":
		return action{kind: actionClear}, nil
	case "help":
		return action{kind: actionHelp}, nil
	case "log":
		return action{kind: actionLog}, nil
	case "quit", "exit":
		return action{kind: actionQuit}, nil
	default:
		return action{}, fmt.Errorf("command %s%s not implemented", p, name)
	}
}

func connectAction(prefix string, args []string) (action, error) {
	if len(args) != 2 {
		return action{}, usageError{usage: prefix + "connect <ip> <port>"}
	}
	port, err := strconv.Atoi(args[1])
	if err != nil || port < 1 || port > 65535 {
		return action{}, fmt.Errorf("invalid port %q", args[1])
	}
	payload, err := protocol.EncodeValue(protocol.ConnectTCP{
		Command: protocol.CommandConnectTCP,
		IP:      args[0],
		Port:    port,
	})
	if err != nil {
		return action{}, err
	}
	return action{
		kind:        actionBroadcast,
		payload:     payload,
		description: fmt.Sprintf("%s %s:%d", protocol.CommandConnectTCP, args[0], port),
	}, nil
}

func (a *App) handleSubmit(value string) tea.Cmd {
	act, err := parseInput(a.cfg.CommandPrefix, value)
	if errors.Is(err, errEmptyInput) {
		return nil
	}
	if err != nil {
		a.logErrorf("%v", err)
		return nil
	}

	var cmd tea.Cmd
	switch act.kind {
	case actionBroadcast:
		cmd = a.sendPayload(act.payload, act.description)
	case actionReconnect:
		cmd = a.connectToServer(a.serverURL)
	case actionClear:
		a.history = a.history[:0]
		a.logf("Cleared broadcast log")
	case actionHelp:
		a.view = viewHelp
		a.logf("Switched to HELP view")
	case actionLog:
		a.view = viewLog
		a.logf("Switched to LOG view")
	case actionQuit:
		a.logf("Exiting console")
		if a.session != nil {
			_ = a.session.Close()
			a.session = nil
		}
		a.online = false
		cmd = tea.Quit
	}
	a.updateViewportContent()
	return cmd
}

func (a *App) connectToServer(url string) tea.Cmd {
	if strings.TrimSpace(url) == "" {
		a.logErrorf("No hub address configured")
		return nil
	}
	if a.session != nil {
		_ = a.session.Close()
	}

	session := NewSession(url)
	a.session = session
	a.serverURL = url
	a.online = false
	a.logf("Connecting to %s ...", url)

	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		err := session.Connect(ctx)
		return connectResultMsg{session: session, url: url, err: err}
	}
}

func (a *App) listenForSession() tea.Cmd {
	session := a.session
	if session == nil {
		return nil
	}
	return func() tea.Msg {
		payload, ok := <-session.Messages()
		if !ok {
			return sessionClosedMsg{session: session}
		}
		return sessionMessageMsg{session: session, payload: payload}
	}
}

func (a *App) sendPayload(payload []byte, description string) tea.Cmd {
	session := a.session
	if !a.isConnected() {
		a.logErrorf("Not connected. Use %sreconnect first.", string(a.cfg.CommandPrefix))
		return nil
	}
	a.appendEntry(directionOut, payload)
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		err := session.Send(ctx, payload)
		return sendResultMsg{session: session, description: description, err: err}
	}
}

const (
	connectTimeout = 5 * time.Second
	sendTimeout    = 5 * time.Second
)

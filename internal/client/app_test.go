package client

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/wsbridge/internal/config"
)

func newTestApp(url string) *App {
	return NewApp(config.ClientConfig{ServerURL: url, CommandPrefix: '/'})
}

func typeLine(a *App, line string) tea.Cmd {
	a.input.SetValue(line)
	_, cmd := a.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return cmd
}

func TestAppRejectsBroadcastWhileOffline(t *testing.T) {
	a := newTestApp("")

	cmd := typeLine(a, "/destroy")

	assert.Nil(t, cmd)
	assert.Equal(t, logLevelError, a.logLine.level)
	assert.Contains(t, a.logLine.body, "Not connected")
	assert.Empty(t, a.history)
	assert.Empty(t, a.input.Value())
}

func TestAppReportsInputErrors(t *testing.T) {
	a := newTestApp("")

	typeLine(a, "/connect host")
	assert.Equal(t, logLevelError, a.logLine.level)
	assert.Contains(t, a.logLine.body, "usage: /connect <ip> <port>")
}

func TestAppSwitchesViews(t *testing.T) {
	a := newTestApp("")
	a.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	typeLine(a, "/help")
	assert.Equal(t, viewHelp, a.view)
	assert.Contains(t, a.viewport.View(), "WSBridge Commands")

	typeLine(a, "/log")
	assert.Equal(t, viewLog, a.view)
}

func TestAppIgnoresStaleSessions(t *testing.T) {
	a := newTestApp("")
	current := NewSession("ws://current.invalid/")
	a.session = current
	a.online = true

	stale := NewSession("ws://stale.invalid/")
	_, cmd := a.Update(sessionMessageMsg{session: stale, payload: []byte(`1`)})
	assert.Nil(t, cmd)
	assert.Empty(t, a.history)

	a.Update(sessionClosedMsg{session: stale})
	assert.True(t, a.isConnected())

	_, cmd = a.Update(sessionMessageMsg{session: current, payload: []byte(`{"command":"DestroyTCP"}`)})
	assert.NotNil(t, cmd)
	require.Len(t, a.history, 1)
	assert.Equal(t, directionIn, a.history[0].direction)

	a.Update(sessionClosedMsg{session: current})
	assert.False(t, a.isConnected())
	assert.Nil(t, a.session)
}

func TestAppRelaysThroughSession(t *testing.T) {
	srv := echoServer(t)
	a := newTestApp(wsURL(srv))

	cmd := a.connectToServer(a.serverURL)
	require.NotNil(t, cmd)
	_, listen := a.Update(cmd())
	require.True(t, a.isConnected())
	require.NotNil(t, listen)

	send := typeLine(a, `/send {"a":1}`)
	require.NotNil(t, send)
	a.Update(send())
	assert.Equal(t, "INFO", a.logLine.label)
	assert.Contains(t, a.logLine.body, "SendTCP")

	_, next := a.Update(listen())
	require.NotNil(t, next)
	require.Len(t, a.history, 2)
	assert.Equal(t, directionOut, a.history[0].direction)
	assert.Equal(t, directionIn, a.history[1].direction)
	assert.Equal(t, `{"command":"SendTCP","data":{"a":1}}`, a.history[1].body)

	typeLine(a, "/clear")
	assert.Empty(t, a.history)

	require.NoError(t, a.session.Send(context.Background(), []byte("bye")))
	a.Update(next())
	assert.False(t, a.isConnected())
}

package client

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/wsbridge/internal/protocol"
)

func (a *App) handleConnectResult(msg connectResultMsg) tea.Cmd {
	if msg.session != a.session {
		_ = msg.session.Close()
		return nil
	}
	if msg.err != nil {
		a.session = nil
		a.online = false
		a.logErrorf("Connect to %s failed: %v", msg.url, msg.err)
		return nil
	}
	a.online = true
	a.logf("Connected to %s", msg.url)
	return a.listenForSession()
}

func (a *App) handleSessionMessage(msg sessionMessageMsg) tea.Cmd {
	if msg.session != a.session {
		return nil
	}
	a.appendEntry(directionIn, msg.payload)
	return a.listenForSession()
}

func (a *App) handleSessionClosed(msg sessionClosedMsg) {
	if msg.session != a.session {
		return
	}
	_ = a.session.Close()
	a.session = nil
	a.online = false
	a.logErrorf("Connection to %s closed. Use %sreconnect to retry.", a.serverURL, string(a.cfg.CommandPrefix))
}

func (a *App) handleSendResult(msg sendResultMsg) {
	if msg.session != a.session {
		return
	}
	if msg.err != nil {
		a.logErrorf("Send %s failed: %v", msg.description, msg.err)
		return
	}
	a.logf("Sent %s", msg.description)
}

func (a *App) isConnected() bool {
	return a.session != nil && a.online
}

// appendEntry records a frame in the bounded broadcast log.
func (a *App) appendEntry(dir direction, payload []byte) {
	e := entry{
		timestamp: time.Now(),
		direction: dir,
		body:      string(payload),
	}
	if len(a.history) >= historyLimit {
		a.history = append(a.history[1:], e)
	} else {
		a.history = append(a.history, e)
	}
	a.updateViewportContent()
}

// commandLabel names the relay command carried by a frame, if any.
func commandLabel(body string) string {
	value, err := protocol.DecodeValue([]byte(body))
	if err != nil {
		return ""
	}
	if name := protocol.CommandOf(value); name.Known() {
		return string(name)
	}
	return ""
}

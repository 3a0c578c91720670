package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fenggwsx/wsbridge/internal/bridge"
	"github.com/fenggwsx/wsbridge/internal/protocol"
)

const maxPort = 65535

// Bridge is the outbound connection driven by commands. *bridge.Client
// satisfies it.
type Bridge interface {
	Connect(host string, port int) uint64
	Send(payload []byte) error
	Close()
	State() bridge.State
}

// CommandError reports a recognized command that could not be carried out.
type CommandError struct {
	Command protocol.CommandName
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Interpreter turns broadcast values carrying a command field into bridge
// operations. Dispatch must be called from a single goroutine.
type Interpreter struct {
	bridge Bridge
	logger *slog.Logger
}

// NewInterpreter binds an interpreter to the bridge it controls.
func NewInterpreter(b Bridge, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{bridge: b, logger: logger}
}

// Dispatch executes the command carried by value, if any. Values without a
// recognized command are ignored and yield nil. Connection establishment is
// asynchronous; its outcome is reported by the bridge, not here.
func (i *Interpreter) Dispatch(ctx context.Context, value interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := protocol.CommandOf(value)
	switch name {
	case "":
		return nil
	case protocol.CommandConnectTCP:
		return i.handleConnect(value)
	case protocol.CommandSendTCP:
		return i.handleSend(value)
	case protocol.CommandDestroyTCP:
		return i.handleDestroy()
	default:
		i.logger.Info("unknown command ignored", "command", string(name))
		return nil
	}
}

func (i *Interpreter) handleConnect(value interface{}) error {
	var cmd protocol.ConnectTCP
	if err := protocol.DecodeInto(value, &cmd); err != nil {
		return &CommandError{Command: protocol.CommandConnectTCP, Reason: "invalid payload", Err: err}
	}

	ip := strings.TrimSpace(cmd.IP)
	if ip == "" {
		return &CommandError{Command: protocol.CommandConnectTCP, Reason: "ip required"}
	}
	port, ok := cmd.PortNumber()
	if !ok || port <= 0 || port > maxPort {
		return &CommandError{Command: protocol.CommandConnectTCP, Reason: fmt.Sprintf("port must be an integer in 1..%d", maxPort)}
	}

	generation := i.bridge.Connect(ip, int(port))
	i.logger.Info("connect requested", "ip", ip, "port", port, "generation", generation)
	return nil
}

func (i *Interpreter) handleSend(value interface{}) error {
	if state := i.bridge.State(); state != bridge.StateOpen {
		return &CommandError{
			Command: protocol.CommandSendTCP,
			Reason:  "bridge is " + state.String(),
			Err:     bridge.ErrNotOpen,
		}
	}

	var data interface{}
	if obj, ok := value.(map[string]interface{}); ok {
		data = obj["data"]
	}
	payload, err := protocol.EncodeValue(data)
	if err != nil {
		return &CommandError{Command: protocol.CommandSendTCP, Reason: "encode data", Err: err}
	}

	if err := i.bridge.Send(payload); err != nil {
		reason := "send failed"
		if errors.Is(err, bridge.ErrNotOpen) {
			reason = "bridge closed before send"
		}
		return &CommandError{Command: protocol.CommandSendTCP, Reason: reason, Err: err}
	}
	i.logger.Debug("frame queued", "bytes", len(payload))
	return nil
}

func (i *Interpreter) handleDestroy() error {
	if state := i.bridge.State(); state == bridge.StateIdle || state == bridge.StateClosed {
		i.logger.Debug("destroy ignored", "state", state.String())
		return nil
	}
	i.bridge.Close()
	return nil
}

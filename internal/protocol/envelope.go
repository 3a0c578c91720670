package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// CommandName enumerates the control messages recognized inside broadcasts.
type CommandName string

const (
	CommandConnectTCP CommandName = "ConnectTCP"
	CommandSendTCP    CommandName = "SendTCP"
	CommandDestroyTCP CommandName = "DestroyTCP"
)

// Known reports whether the name is one of the recognized commands.
func (c CommandName) Known() bool {
	switch c {
	case CommandConnectTCP, CommandSendTCP, CommandDestroyTCP:
		return true
	}
	return false
}

// ConnectTCP asks the bridge to open a connection to IP:Port.
type ConnectTCP struct {
	Command CommandName `json:"command"`
	IP      string      `json:"ip"`
	Port    interface{} `json:"port"`
}

// PortNumber returns Port as an integer. Only JSON numbers with no
// fractional part qualify; strings and other types do not.
func (c ConnectTCP) PortNumber() (int64, bool) {
	n, ok := c.Port.(json.Number)
	if !ok {
		return 0, false
	}
	if v, err := n.Int64(); err == nil {
		return v, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int64(f), true
}

// SendTCP asks the bridge to frame and forward Data.
type SendTCP struct {
	Command CommandName `json:"command"`
	Data    interface{} `json:"data"`
}

// DestroyTCP asks the bridge to close its connection.
type DestroyTCP struct {
	Command CommandName `json:"command"`
}

// DecodeValue parses a JSON document into a generic value. Numbers are kept
// as json.Number so integers survive a round trip unchanged.
func DecodeValue(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	// Anything after the first value is a parse failure.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value at offset %d", dec.InputOffset())
	}
	return value, nil
}

// EncodeValue serializes a value to compact JSON text without HTML escaping.
func EncodeValue(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// CommandOf returns the command field of a decoded value, or "" when the
// value is not an object or carries no string command.
func CommandOf(value interface{}) CommandName {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return ""
	}
	name, ok := obj["command"].(string)
	if !ok {
		return ""
	}
	return CommandName(name)
}

// DecodeInto converts an already decoded value into a typed command struct.
func DecodeInto(value interface{}, out interface{}) error {
	data, err := EncodeValue(value)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

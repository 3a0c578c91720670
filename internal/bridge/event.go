package bridge

import (
	"strconv"
	"time"
)

// EventKind classifies a bridge Event.
type EventKind int

const (
	EventConnecting EventKind = iota
	EventConnected
	EventConnectFailed
	EventWritten
	EventWriteFailed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventConnectFailed:
		return "connect_failed"
	case EventWritten:
		return "written"
	case EventWriteFailed:
		return "write_failed"
	case EventClosed:
		return "closed"
	default:
		return "event(" + strconv.Itoa(int(k)) + ")"
	}
}

// Event reports a state change or write completion. Generation identifies
// the Connect call the event belongs to.
type Event struct {
	Kind       EventKind
	Generation uint64
	Target     string
	// Bytes is the number of bytes put on the wire, header included.
	// Set for EventWritten only.
	Bytes int
	Err   error
	At    time.Time
}

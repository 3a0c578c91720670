package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/fenggwsx/wsbridge/internal/protocol"
)

// ErrNotOpen is returned by Send when no connection is open.
var ErrNotOpen = errors.New("bridge connection not open")

// State is the lifecycle state of the bridge connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Dialer opens outbound connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures a Client. The zero value is usable.
type Options struct {
	// Dialer defaults to a plain net.Dialer.
	Dialer Dialer

	// DialTimeout bounds a connection attempt. Zero means no timeout.
	DialTimeout time.Duration

	// WriteTimeout sets a deadline on every frame write. Zero means none.
	WriteTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnEvent receives lifecycle and write completion events in the order
	// they occur. Calls are made one at a time from a background goroutine
	// without the client lock held, so a slow callback delays later events
	// but never reorders them or blocks Connect, Send and Close.
	OnEvent func(Event)
}

// Client owns at most one outbound TCP connection at a time. Connection
// establishment and frame writes happen on background goroutines; results
// are reported through Options.OnEvent.
type Client struct {
	dialer       Dialer
	dialTimeout  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
	onEvent      func(Event)

	mu         sync.Mutex
	state      State
	generation uint64
	target     string
	cancelDial context.CancelFunc
	link       *link
	pending    []Event
	delivering bool

	workers sync.WaitGroup
}

// link is one established connection and its writer queue.
type link struct {
	conn       net.Conn
	generation uint64
	target     string
	queue      *sendQueue
	closeOnce  sync.Once
}

func (l *link) shutdown() {
	l.closeOnce.Do(func() {
		l.queue.Close()
		_ = l.conn.Close()
	})
}

// NewClient returns an idle client.
func NewClient(opts Options) *Client {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		dialer:       dialer,
		dialTimeout:  opts.DialTimeout,
		writeTimeout: opts.WriteTimeout,
		logger:       logger,
		onEvent:      opts.OnEvent,
		state:        StateIdle,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Target returns the address of the current or most recent connection.
func (c *Client) Target() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// Pending returns the number of frames queued but not yet written.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.link == nil {
		return 0
	}
	return c.link.queue.Len()
}

// Connect closes any connecting or open connection, then starts dialing
// host:port in the background. It returns the generation number that tags
// events for the new attempt.
func (c *Client) Connect(host string, port int) uint64 {
	target := net.JoinHostPort(host, strconv.Itoa(port))

	c.mu.Lock()
	events := c.closeLocked(nil)

	c.generation++
	generation := c.generation
	c.target = target
	c.state = StateConnecting

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.dialTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.dialTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	c.cancelDial = cancel

	c.workers.Add(1)
	go c.dial(ctx, cancel, generation, target)

	events = append(events, c.event(EventConnecting, generation, target))
	c.emitLocked(events)
	c.mu.Unlock()

	c.logger.Info("bridge connecting", "target", target, "generation", generation)
	return generation
}

// Send queues payload to be written as one frame. It never blocks on the
// network. ErrNotOpen is returned unless the connection is open.
func (c *Client) Send(payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", protocol.ErrFrameTooLarge, len(payload))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOpen || c.link == nil {
		return fmt.Errorf("%w (state %s)", ErrNotOpen, c.state)
	}
	if !c.link.queue.Put(payload) {
		return fmt.Errorf("%w (state %s)", ErrNotOpen, StateClosed)
	}
	return nil
}

// Close tears down the connection or the pending attempt. It is idempotent
// and a no-op while idle. Frames still queued are dropped.
func (c *Client) Close() {
	c.mu.Lock()
	c.emitLocked(c.closeLocked(nil))
	c.mu.Unlock()
}

// Wait blocks until every background goroutine started by the client has
// returned. Call Close first.
func (c *Client) Wait() {
	c.workers.Wait()
}

// closeLocked moves Connecting or Open to Closed and returns the events to
// publish once the lock is released.
func (c *Client) closeLocked(cause error) []Event {
	switch c.state {
	case StateConnecting:
		if c.cancelDial != nil {
			c.cancelDial()
			c.cancelDial = nil
		}
	case StateOpen:
		if c.link != nil {
			c.link.shutdown()
			c.link = nil
		}
	default:
		return nil
	}

	c.state = StateClosed
	c.logger.Info("bridge closed", "target", c.target, "generation", c.generation)
	ev := c.event(EventClosed, c.generation, c.target)
	ev.Err = cause
	return []Event{ev}
}

func (c *Client) dial(ctx context.Context, cancel context.CancelFunc, generation uint64, target string) {
	defer c.workers.Done()
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", target)

	c.mu.Lock()
	if generation != c.generation || c.state != StateConnecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.cancelDial = nil

	if err != nil {
		c.state = StateIdle
		ev := c.event(EventConnectFailed, generation, target)
		ev.Err = err
		c.emitLocked([]Event{ev})
		c.mu.Unlock()

		c.logger.Warn("bridge connect failed", "target", target, "error", err)
		return
	}

	l := &link{
		conn:       conn,
		generation: generation,
		target:     target,
		queue:      newSendQueue(),
	}
	c.link = l
	c.state = StateOpen

	c.workers.Add(2)
	go c.writeLoop(l)
	go c.readLoop(l)

	c.emitLocked([]Event{c.event(EventConnected, generation, target)})
	c.mu.Unlock()

	c.logger.Info("bridge connected", "target", target, "local_addr", conn.LocalAddr())
}

// writeLoop is the only writer on l.conn, so a frame's header and payload
// are never separated by another write.
func (c *Client) writeLoop(l *link) {
	defer c.workers.Done()

	encoder := protocol.NewEncoder(l.conn)
	for {
		payload, ok := l.queue.Take()
		if !ok {
			return
		}
		if c.writeTimeout > 0 {
			if err := l.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.fail(l, EventWriteFailed, err)
				return
			}
		}
		if err := encoder.Encode(context.Background(), payload); err != nil {
			c.fail(l, EventWriteFailed, err)
			return
		}

		c.mu.Lock()
		ev := c.event(EventWritten, l.generation, l.target)
		ev.Bytes = protocol.FrameHeaderBytes + len(payload)
		c.emitLocked([]Event{ev})
		c.mu.Unlock()
	}
}

// readLoop discards inbound bytes so a remote close is noticed.
func (c *Client) readLoop(l *link) {
	defer c.workers.Done()

	n, err := io.Copy(io.Discard, l.conn)
	if err == nil {
		err = io.EOF
	}
	c.logger.Debug("bridge read loop finished", "target", l.target, "discarded_bytes", n)
	c.fail(l, EventClosed, err)
}

// fail closes l if it is still the current link. Failures on links that
// were already replaced or closed are ignored.
func (c *Client) fail(l *link, kind EventKind, err error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}

	var events []Event
	if kind == EventWriteFailed {
		ev := c.event(EventWriteFailed, l.generation, l.target)
		ev.Err = err
		events = append(events, ev)
		c.logger.Warn("bridge write failed", "target", l.target, "error", err)
	}
	events = append(events, c.closeLocked(err)...)
	c.emitLocked(events)
	c.mu.Unlock()
}

func (c *Client) event(kind EventKind, generation uint64, target string) Event {
	return Event{
		Kind:       kind,
		Generation: generation,
		Target:     target,
		At:         time.Now(),
	}
}

// emitLocked queues events for delivery. Events are appended under c.mu, so
// the queue order is the order in which state changed. At most one deliver
// goroutine runs at a time.
func (c *Client) emitLocked(events []Event) {
	if c.onEvent == nil || len(events) == 0 {
		return
	}
	c.pending = append(c.pending, events...)
	if c.delivering {
		return
	}
	c.delivering = true
	c.workers.Add(1)
	go c.deliver()
}

func (c *Client) deliver() {
	defer c.workers.Done()
	for {
		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		if len(batch) == 0 {
			c.delivering = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		for _, ev := range batch {
			c.onEvent(ev)
		}
	}
}

// Package mirror copies broadcast payloads to an external pub/sub channel
// for observers outside the relay. Nothing is consumed back, so the relay's
// own delivery order is unaffected.
package mirror

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fenggwsx/wsbridge/internal/config"
)

const (
	defaultQueueSize      = 1024
	defaultPublishTimeout = 500 * time.Millisecond
)

// Sink publishes one payload to a channel. *redis.Client satisfies it
// through redisSink.
type Sink interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Mirror queues payloads and publishes them in order from one goroutine.
// Publish never blocks; payloads are dropped when the queue is full.
type Mirror struct {
	sink    Sink
	channel string
	timeout time.Duration
	logger  *slog.Logger

	queue  chan []byte
	done   chan struct{}
	once   sync.Once
	worker sync.WaitGroup
}

// New wraps a sink. Start must be called for payloads to be delivered.
func New(sink Sink, channel string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		sink:    sink,
		channel: channel,
		timeout: defaultPublishTimeout,
		logger:  logger,
		queue:   make(chan []byte, defaultQueueSize),
		done:    make(chan struct{}),
	}
}

// NewRedis connects a mirror to the Redis server named by cfg.
func NewRedis(cfg config.MirrorConfig, logger *slog.Logger) *Mirror {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  defaultPublishTimeout,
		ReadTimeout:  defaultPublishTimeout,
		WriteTimeout: defaultPublishTimeout,
	})
	return New(redisSink{client: client}, cfg.Channel, logger)
}

// Publish enqueues payload for delivery.
func (m *Mirror) Publish(payload []byte) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.queue <- payload:
	default:
		m.logger.Warn("mirror queue full, payload dropped", "bytes", len(payload))
	}
}

// Start delivers queued payloads on a background goroutine until ctx is
// canceled or Close is called.
func (m *Mirror) Start(ctx context.Context) {
	m.worker.Add(1)
	go func() {
		defer m.worker.Done()
		m.run(ctx)
	}()
}

func (m *Mirror) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case payload := <-m.queue:
			m.deliver(ctx, payload)
		}
	}
}

func (m *Mirror) deliver(ctx context.Context, payload []byte) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.sink.Publish(ctx, m.channel, payload); err != nil {
		m.logger.Warn("mirror publish failed", "channel", m.channel, "error", err)
	}
}

// Close stops delivery, waits for the worker and closes the sink. Payloads
// still queued are discarded.
func (m *Mirror) Close() error {
	m.once.Do(func() { close(m.done) })
	m.worker.Wait()
	return m.sink.Close()
}

type redisSink struct {
	client *redis.Client
}

func (s redisSink) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

func (s redisSink) Close() error {
	return s.client.Close()
}

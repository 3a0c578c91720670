package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenggwsx/wsbridge/internal/bridge"
	"github.com/fenggwsx/wsbridge/internal/config"
	"github.com/fenggwsx/wsbridge/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// App wires the asset server, the WebSocket hub, the command interpreter and
// the TCP bridge together.
type App struct {
	cfg     config.ServerConfig
	logger  *slog.Logger
	journal storage.Journal
	bridge  *bridge.Client
	hub     *Hub

	mu      sync.Mutex
	webAddr net.Addr
	wsAddr  net.Addr
	ready   chan struct{}
}

// NewApp constructs a relay. journal and mirror may be nil.
func NewApp(cfg config.ServerConfig, logger *slog.Logger, journal storage.Journal, mirror Publisher) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		cfg:     cfg,
		logger:  logger,
		journal: journal,
		ready:   make(chan struct{}),
	}
	a.bridge = bridge.NewClient(bridge.Options{
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Logger:       logger.With("component", "bridge"),
		OnEvent:      a.recordBridgeEvent,
	})
	interpreter := NewInterpreter(a.bridge, logger.With("component", "interpreter"))
	a.hub = NewHub(interpreter, HubOptions{
		Logger:          logger.With("component", "hub"),
		SendBuffer:      cfg.SendBuffer,
		MaxMessageBytes: cfg.MaxMessageBytes,
		Mirror:          mirror,
	})
	return a
}

// Ready is closed once both listeners are bound.
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// WebAddr returns the bound asset server address after Ready.
func (a *App) WebAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.webAddr
}

// WebSocketAddr returns the bound hub address after Ready.
func (a *App) WebSocketAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.wsAddr
}

// Run serves until ctx is canceled or a listener fails, then shuts every
// component down.
func (a *App) Run(ctx context.Context) error {
	if a.journal != nil {
		if err := a.journal.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if a.cfg.Journal.Tail > 0 {
			a.logJournalTail(ctx)
		}
	}

	webListener, err := net.Listen("tcp", ":"+strconv.Itoa(a.cfg.WebPort))
	if err != nil {
		return fmt.Errorf("listen web: %w", err)
	}
	wsListener, err := net.Listen("tcp", ":"+strconv.Itoa(a.cfg.WebSocketPort))
	if err != nil {
		webListener.Close()
		return fmt.Errorf("listen websocket: %w", err)
	}

	a.mu.Lock()
	a.webAddr = webListener.Addr()
	a.wsAddr = wsListener.Addr()
	a.mu.Unlock()

	webServer := &http.Server{
		Handler:           NewAssetHandler(a.cfg.HtdocsDir, a.logger.With("component", "assets")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	wsServer := &http.Server{
		Handler:           a.hub,
		ReadHeaderTimeout: 10 * time.Second,
	}

	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	errCh := make(chan error, 2)
	serve := func(name string, srv *http.Server, l net.Listener) {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s server: %w", name, err)
			return
		}
		errCh <- nil
	}
	go serve("web", webServer, webListener)
	go serve("websocket", wsServer, wsListener)

	a.logger.Info("relay started",
		"web_addr", webListener.Addr().String(),
		"ws_addr", wsListener.Addr().String(),
		"htdocs", a.cfg.HtdocsDir,
	)
	close(a.ready)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("web shutdown", "error", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("websocket shutdown", "error", err)
	}

	a.hub.Close()
	a.hub.Wait()
	cancelHub()
	<-hubDone

	a.bridge.Close()
	a.bridge.Wait()

	a.logger.Info("relay stopped")
	return runErr
}

func (a *App) recordBridgeEvent(ev bridge.Event) {
	attrs := []any{"kind", ev.Kind.String(), "target", ev.Target, "generation", ev.Generation}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err)
	}
	if ev.Kind == bridge.EventWritten {
		attrs = append(attrs, "bytes", ev.Bytes)
	}
	a.logger.Debug("bridge event", attrs...)

	if a.journal == nil {
		return
	}
	entry := &storage.BridgeEvent{
		ID:         uuid.NewString(),
		Generation: ev.Generation,
		Kind:       ev.Kind.String(),
		Target:     ev.Target,
		Bytes:      ev.Bytes,
		CreatedAt:  ev.At.UTC(),
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.journal.Record(ctx, entry); err != nil {
		a.logger.Warn("journal record failed", "kind", entry.Kind, "error", err)
	}
}

// logJournalTail replays the most recent journal entries into the log,
// oldest first.
func (a *App) logJournalTail(ctx context.Context) {
	events, err := a.journal.Recent(ctx, a.cfg.Journal.Tail)
	if err != nil {
		a.logger.Warn("read journal tail failed", "error", err)
		return
	}
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		attrs := []any{
			"kind", ev.Kind,
			"generation", ev.Generation,
			"at", ev.CreatedAt.Format(time.RFC3339Nano),
		}
		if ev.Target != "" {
			attrs = append(attrs, "target", ev.Target)
		}
		if ev.Bytes > 0 {
			attrs = append(attrs, "bytes", ev.Bytes)
		}
		if ev.Error != "" {
			attrs = append(attrs, "error", ev.Error)
		}
		a.logger.Info("journal event", attrs...)
	}
}

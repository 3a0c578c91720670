package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fenggwsx/wsbridge/internal/config"
	"github.com/fenggwsx/wsbridge/internal/mirror"
	"github.com/fenggwsx/wsbridge/internal/server"
	"github.com/fenggwsx/wsbridge/internal/storage"
	"github.com/fenggwsx/wsbridge/internal/storage/sqlite"
)

var openJournal = func(cfg config.JournalConfig) (storage.Journal, error) {
	return sqlite.NewStore(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code so deferred cleanup always happens
// before the process exits.
func run(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := config.ParseServerFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	var journal storage.Journal
	if cfg.Journal.Enabled() {
		store, err := openJournal(cfg.Journal)
		if err != nil {
			logger.Error("init journal failed", "path", cfg.Journal.Path, "error", err)
			return 1
		}
		defer store.Close()
		journal = store
	}

	var publisher server.Publisher
	if cfg.Mirror.Enabled() {
		m := mirror.NewRedis(cfg.Mirror, logger.With("component", "mirror"))
		m.Start(ctx)
		defer m.Close()
		publisher = m
	}

	app := server.NewApp(cfg, logger, journal, publisher)
	if err := app.Run(ctx); err != nil {
		logger.Error("server shutdown", "error", err)
		return 1
	}
	return 0
}

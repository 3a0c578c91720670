package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/wsbridge/internal/config"
	"github.com/fenggwsx/wsbridge/internal/storage"
)

type fakeJournal struct {
	mu     sync.Mutex
	closed int
}

func (j *fakeJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.closed++
	return nil
}

func (j *fakeJournal) Migrate(ctx context.Context) error { return nil }

func (j *fakeJournal) Record(ctx context.Context, event *storage.BridgeEvent) error { return nil }

func (j *fakeJournal) Recent(ctx context.Context, limit int) ([]storage.BridgeEvent, error) {
	return nil, nil
}

func stubJournal(t *testing.T, open func(config.JournalConfig) (storage.Journal, error)) {
	t.Helper()
	prev := openJournal
	openJournal = open
	t.Cleanup(func() { openJournal = prev })
}

func TestRunRejectsBadFlags(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--ws-port", "70000"}, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "ws-port out of range")
}

func TestRunClosesJournalWhenServerFails(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	journal := &fakeJournal{}
	stubJournal(t, func(config.JournalConfig) (storage.Journal, error) { return journal, nil })

	var stderr bytes.Buffer
	port := strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)
	code := run(context.Background(), []string{"--web-port", port, "--journal", "bridge.db"}, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "listen web")
	assert.Equal(t, 1, journal.closed)
}

func TestRunReportsJournalOpenFailure(t *testing.T) {
	stubJournal(t, func(config.JournalConfig) (storage.Journal, error) {
		return nil, errors.New("disk full")
	})

	var stderr bytes.Buffer
	code := run(context.Background(), []string{"--journal", "bridge.db"}, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "disk full")
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/wsbridge/internal/config"
	"github.com/fenggwsx/wsbridge/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(config.JournalConfig{Path: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	kinds := []string{"connecting", "connected", "written", "closed"}
	for i, kind := range kinds {
		require.NoError(t, store.Record(ctx, &storage.BridgeEvent{
			ID:         kind,
			Generation: 1,
			Kind:       kind,
			Target:     "127.0.0.1:9000",
			Bytes:      i,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "closed", recent[0].Kind)
	assert.Equal(t, "written", recent[1].Kind)
	assert.Equal(t, 2, recent[1].Bytes)

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, len(kinds))
}

func TestRecordPreservesFailureDetail(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Record(ctx, &storage.BridgeEvent{
		ID:        "failure",
		Kind:      "connect_failed",
		Target:    "10.0.0.1:1",
		Error:     "connection refused",
		CreatedAt: time.Now().UTC(),
	}))

	recent, err := store.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "failure", recent[0].ID)
	assert.Equal(t, "connection refused", recent[0].Error)
	assert.Equal(t, "10.0.0.1:1", recent[0].Target)

	assert.Error(t, store.Record(ctx, nil))
}

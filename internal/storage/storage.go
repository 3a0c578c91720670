package storage

import (
	"context"
	"time"
)

// BridgeEvent is one persisted bridge lifecycle or write record.
type BridgeEvent struct {
	ID         string
	Generation uint64
	Kind       string
	Target     string
	Bytes      int
	Error      string
	CreatedAt  time.Time
}

// Journal defines persistence operations for the bridge audit trail.
type Journal interface {
	Close() error
	Migrate(ctx context.Context) error

	Record(ctx context.Context, event *BridgeEvent) error
	Recent(ctx context.Context, limit int) ([]BridgeEvent, error)
}

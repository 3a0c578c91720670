package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fenggwsx/wsbridge/internal/config"
	"github.com/fenggwsx/wsbridge/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Journal.
type Store struct {
	db *gorm.DB
}

type bridgeEventModel struct {
	ID         string `gorm:"primaryKey"`
	Generation uint64 `gorm:"index"`
	Kind       string `gorm:"index"`
	Target     string
	Bytes      int
	Error      string
	CreatedAt  time.Time `gorm:"index"`
}

func (bridgeEventModel) TableName() string {
	return "bridge_events"
}

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.JournalConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Events arrive from several bridge goroutines; SQLite wants one writer.
	sqlDB.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&bridgeEventModel{})
}

// Record appends an event.
func (s *Store) Record(ctx context.Context, event *storage.BridgeEvent) error {
	if event == nil {
		return errors.New("nil event")
	}
	model := bridgeEventModel{
		ID:         event.ID,
		Generation: event.Generation,
		Kind:       event.Kind,
		Target:     event.Target,
		Bytes:      event.Bytes,
		Error:      event.Error,
		CreatedAt:  event.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]storage.BridgeEvent, error) {
	var models []bridgeEventModel
	query := s.db.WithContext(ctx).Order("created_at desc").Order("rowid desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	events := make([]storage.BridgeEvent, 0, len(models))
	for _, m := range models {
		events = append(events, toEvent(m))
	}
	return events, nil
}

func toEvent(m bridgeEventModel) storage.BridgeEvent {
	return storage.BridgeEvent{
		ID:         m.ID,
		Generation: m.Generation,
		Kind:       m.Kind,
		Target:     m.Target,
		Bytes:      m.Bytes,
		Error:      m.Error,
		CreatedAt:  m.CreatedAt,
	}
}

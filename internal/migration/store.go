package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Store persists the migration bookkeeping trio (log, journal, snapshots)
// in the dedicated migrations schema.
type Store struct {
	db *gorm.DB
}

// NewStore creates a store bound to the given database handle
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx returns a store view running on the given transaction
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx}
}

// Initialize creates the migrations schema and its relations. Safe to call
// on every startup.
func (s *Store) Initialize(ctx context.Context) error {
	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS migrations`,
		`CREATE TABLE IF NOT EXISTS migrations.plugin_migrations (
			id UUID PRIMARY KEY,
			plugin_name TEXT NOT NULL,
			hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_plugin_migrations_plugin
			ON migrations.plugin_migrations (plugin_name, created_at)`,
		`CREATE TABLE IF NOT EXISTS migrations.plugin_journal (
			plugin_name TEXT PRIMARY KEY,
			entries JSONB NOT NULL DEFAULT '[]'::jsonb
		)`,
		`CREATE TABLE IF NOT EXISTS migrations.plugin_snapshots (
			id UUID PRIMARY KEY,
			plugin_name TEXT NOT NULL,
			idx INTEGER NOT NULL,
			snapshot JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (plugin_name, idx)
		)`,
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range statements {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to initialize migration store: %w", err)
			}
		}
		return nil
	})
}

// Initialized reports whether the migration store schema exists
func (s *Store) Initialized(ctx context.Context) (bool, error) {
	var name *string
	err := s.db.WithContext(ctx).
		Raw("SELECT to_regclass('migrations.plugin_migrations')::text").
		Scan(&name).Error
	if err != nil {
		return false, fmt.Errorf("failed to probe migration store: %w", err)
	}
	return name != nil, nil
}

// LatestRecord returns the newest migration log row for a plugin, or nil
// when the plugin never registered.
func (s *Store) LatestRecord(ctx context.Context, pluginName string) (*MigrationRecord, error) {
	var rec MigrationRecord
	err := s.db.WithContext(ctx).
		Where("plugin_name = ?", pluginName).
		Order("created_at DESC, id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// InsertRecord appends a migration log row
func (s *Store) InsertRecord(ctx context.Context, pluginName, hash string) error {
	rec := MigrationRecord{
		PluginName: pluginName,
		Hash:       hash,
		CreatedAt:  time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

// Journal returns the plugin's journal, or an empty one when the plugin
// never registered.
func (s *Store) Journal(ctx context.Context, pluginName string) (*Journal, error) {
	var j Journal
	err := s.db.WithContext(ctx).
		Where("plugin_name = ?", pluginName).
		First(&j).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Journal{PluginName: pluginName, Entries: JournalEntries{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// AppendJournal appends one entry. Entries are never mutated or reordered;
// callers serialize through the plugin advisory lock.
func (s *Store) AppendJournal(ctx context.Context, pluginName string, entry JournalEntry) (int, error) {
	journal, err := s.Journal(ctx, pluginName)
	if err != nil {
		return 0, err
	}

	entries := append(journal.Entries, entry)
	if len(journal.Entries) == 0 {
		created := Journal{PluginName: pluginName, Entries: entries}
		if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
			return 0, err
		}
		return len(entries), nil
	}

	err = s.db.WithContext(ctx).
		Model(&Journal{}).
		Where("plugin_name = ?", pluginName).
		Update("entries", entries).Error
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// LatestSnapshot returns the newest snapshot row for a plugin, or nil when
// none exists.
func (s *Store) LatestSnapshot(ctx context.Context, pluginName string) (*SnapshotRecord, error) {
	var snap SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("plugin_name = ?", pluginName).
		Order("idx DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SnapshotAt returns the snapshot with the given idx
func (s *Store) SnapshotAt(ctx context.Context, pluginName string, idx int) (*SnapshotRecord, error) {
	var snap SnapshotRecord
	err := s.db.WithContext(ctx).
		Where("plugin_name = ? AND idx = ?", pluginName, idx).
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no snapshot %d for plugin %q", idx, pluginName)
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// SnapshotCount returns the number of snapshots recorded for a plugin
func (s *Store) SnapshotCount(ctx context.Context, pluginName string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&SnapshotRecord{}).
		Where("plugin_name = ?", pluginName).
		Count(&count).Error
	return count, err
}

// WriteSnapshot inserts a snapshot row
func (s *Store) WriteSnapshot(ctx context.Context, snap *SnapshotRecord) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(snap).Error
}

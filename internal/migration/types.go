package migration

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/arcfield/plugindb/internal/logger"
	"github.com/arcfield/plugindb/internal/schema"
)

// Logger interface for logging operations
type Logger = logger.Logger

// MigrationRecord is one row of the migration log. History is retained;
// the latest row per plugin carries the hash of the currently-applied
// schema.
type MigrationRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	PluginName string    `gorm:"column:plugin_name;not null;index"`
	Hash       string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName specifies the table name for migration records
func (MigrationRecord) TableName() string {
	return "migrations.plugin_migrations"
}

// BeforeCreate assigns the record id
func (r *MigrationRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// JournalEntry describes one applied schema change
type JournalEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	SnapshotIdx int       `json:"snapshotIdx"`
}

// JournalEntries is the ordered, append-only entry list stored as JSONB
type JournalEntries []JournalEntry

// Value implements driver.Valuer
func (e JournalEntries) Value() (driver.Value, error) {
	if e == nil {
		e = JournalEntries{}
	}
	return json.Marshal(e)
}

// Scan implements sql.Scanner
func (e *JournalEntries) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	case nil:
		*e = JournalEntries{}
		return nil
	default:
		return fmt.Errorf("cannot scan journal entries from %T", src)
	}
}

// Journal is the append-only change log for one plugin
type Journal struct {
	PluginName string         `gorm:"column:plugin_name;primaryKey"`
	Entries    JournalEntries `gorm:"type:jsonb;not null"`
}

// TableName specifies the table name for journals
func (Journal) TableName() string {
	return "migrations.plugin_journal"
}

// SnapshotPayload stores a schema snapshot document as JSONB
type SnapshotPayload schema.SnapshotDocument

// Value implements driver.Valuer
func (p SnapshotPayload) Value() (driver.Value, error) {
	return json.Marshal(schema.SnapshotDocument(p))
}

// Scan implements sql.Scanner
func (p *SnapshotPayload) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, (*schema.SnapshotDocument)(p))
	case string:
		return json.Unmarshal([]byte(v), (*schema.SnapshotDocument)(p))
	default:
		return fmt.Errorf("cannot scan snapshot from %T", src)
	}
}

// SnapshotRecord is one versioned snapshot row. Idx values for a plugin
// form a strictly increasing sequence starting at 0; snapshot N is the
// schema state immediately after journal entry N.
type SnapshotRecord struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PluginName string          `gorm:"column:plugin_name;not null;uniqueIndex:idx_plugin_snapshot"`
	Idx        int             `gorm:"not null;uniqueIndex:idx_plugin_snapshot"`
	Snapshot   SnapshotPayload `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time       `gorm:"not null"`
}

// TableName specifies the table name for snapshots
func (SnapshotRecord) TableName() string {
	return "migrations.plugin_snapshots"
}

// BeforeCreate assigns the snapshot id
func (r *SnapshotRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Options tunes one Migrate call
type Options struct {
	// LockTimeout bounds the wait for the per-plugin advisory lock. Zero
	// means wait indefinitely.
	LockTimeout time.Duration
}

// Result reports what a Migrate call did
type Result struct {
	PluginName     string
	Hash           string
	Applied        bool
	SnapshotIdx    int
	JournalEntries int
	Statements     int
	Description    string
}

// Status is the read-only migration state of one plugin. A plugin that
// never registered reports the zero status.
type Status struct {
	HasRun        bool
	Snapshots     int64
	LastMigration *time.Time
}

package migration

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"gorm.io/gorm"

	"github.com/arcfield/plugindb/internal/apperrors"
	"github.com/arcfield/plugindb/internal/schema"
)

// targetSchema is where plugin tables live
const targetSchema = "public"

// Service is the runtime schema migrator. One instance serves every
// plugin; cross-process mutual exclusion comes from a per-plugin advisory
// lock, so concurrent deployments never double-apply DDL.
type Service struct {
	db     *gorm.DB
	store  *Store
	logger Logger
}

// NewService creates a new migrator instance
func NewService(db *gorm.DB, logger Logger) *Service {
	return &Service{
		db:     db,
		store:  NewStore(db),
		logger: logger,
	}
}

// Store exposes the underlying migration store
func (s *Service) Store() *Store {
	return s.store
}

// Initialize creates the migration store schema; idempotent
func (s *Service) Initialize(ctx context.Context) error {
	return s.store.Initialize(ctx)
}

// lockKey derives the advisory lock key for a plugin name
func lockKey(pluginName string) int64 {
	h := fnv.New64a()
	h.Write([]byte("plugindb:" + pluginName))
	return int64(h.Sum64())
}

// forPlugin returns a view of the service whose log entries carry the
// plugin scope
func (s *Service) forPlugin(pluginName string) *Service {
	scoped := *s
	scoped.logger = s.logger.WithPlugin(pluginName)
	return &scoped
}

// Migrate compares the declared schema's fingerprint against the migration
// log and applies whatever DDL is missing. Calling it again with an
// identical declaration is a no-op, so repeated process starts are safe.
// Any failure rolls the whole transaction back: log, journal and snapshot
// are only ever updated together.
func (s *Service) Migrate(ctx context.Context, pluginName string, def schema.Definition, opts Options) (*Result, error) {
	if pluginName == "" {
		return nil, fmt.Errorf("plugin name is required")
	}
	s = s.forPlugin(pluginName)

	fingerprint := def.Fingerprint()

	// Fast path: an unchanged schema needs no lock at all.
	prior, err := s.store.LatestRecord(ctx, pluginName)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, apperrors.NewStoreNotInitializedError("migrate")
		}
		return nil, apperrors.NewMigrationError(pluginName, "failed to read migration log", err)
	}
	if prior != nil && prior.Hash == fingerprint {
		s.logger.LogDebug("Schema unchanged, skipping migration", map[string]interface{}{
			"hash": fingerprint,
		})
		return s.noopResult(ctx, pluginName, fingerprint)
	}
	priorHash := ""
	if prior != nil {
		priorHash = prior.Hash
	}

	var result *Result
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.LockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.LockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		// Held until commit or rollback
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", lockKey(pluginName)).Error; err != nil {
			return err
		}

		txStore := s.store.WithTx(tx)
		latest, err := txStore.LatestRecord(ctx, pluginName)
		if err != nil {
			return fmt.Errorf("failed to re-read migration log: %w", err)
		}

		switch {
		case latest != nil && latest.Hash == fingerprint:
			// Another process converged to the same declaration while we
			// waited on the lock.
			r, err := s.txNoopResult(ctx, txStore, pluginName, fingerprint)
			if err != nil {
				return err
			}
			result = r
			return nil

		case latest != nil && latest.Hash != priorHash:
			// The log moved under us to a hash that matches neither what
			// we started from nor what we declare: two differing
			// declarations are racing under one plugin name.
			return apperrors.NewHashConflictError(pluginName, latest.Hash, fingerprint)

		case latest == nil:
			r, err := s.applyFirstRun(ctx, txStore, pluginName, def, fingerprint)
			if err != nil {
				return err
			}
			result = r
			return nil

		default:
			r, err := s.applyDiff(ctx, txStore, pluginName, def, fingerprint, latest)
			if err != nil {
				return err
			}
			result = r
			return nil
		}
	})
	if err != nil {
		if isLockTimeout(err) {
			return s.afterLockTimeout(ctx, pluginName, fingerprint)
		}
		return nil, err
	}
	return result, nil
}

// afterLockTimeout re-reads the log after a bounded lock wait expired. If
// the holder converged to our fingerprint this call already succeeded from
// the caller's point of view.
func (s *Service) afterLockTimeout(ctx context.Context, pluginName, fingerprint string) (*Result, error) {
	latest, readErr := s.store.LatestRecord(ctx, pluginName)
	if readErr == nil && latest != nil && latest.Hash == fingerprint {
		s.logger.LogInfo("Migration already applied by a concurrent process", map[string]interface{}{
			"hash": fingerprint,
		})
		return s.noopResult(ctx, pluginName, fingerprint)
	}
	return nil, apperrors.NewMigrationError(pluginName, apperrors.ErrMsgLockTimeout, nil)
}

func (s *Service) applyFirstRun(ctx context.Context, txStore *Store, pluginName string, def schema.Definition, fingerprint string) (*Result, error) {
	plan, err := schema.Diff(schema.SnapshotDocument{Tables: map[string]schema.TableSnapshot{}}, def)
	if err != nil {
		return nil, apperrors.NewMigrationError(pluginName, apperrors.ErrMsgSchemaConflict, err)
	}
	return s.apply(ctx, txStore, pluginName, def, fingerprint, plan, 0)
}

func (s *Service) applyDiff(ctx context.Context, txStore *Store, pluginName string, def schema.Definition, fingerprint string, latest *MigrationRecord) (*Result, error) {
	snap, err := txStore.LatestSnapshot(ctx, pluginName)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest snapshot: %w", err)
	}
	if snap == nil {
		return nil, apperrors.NewMigrationError(pluginName, "migration log exists without a snapshot", nil)
	}

	plan, err := schema.Diff(schema.SnapshotDocument(snap.Snapshot), def)
	if err != nil {
		return nil, apperrors.NewMigrationError(pluginName, apperrors.ErrMsgSchemaConflict, err)
	}

	// The hashes differ, so the planner must account for the delta: either
	// DDL or an explicit retention. An empty plan here would record a hash
	// and snapshot for a schema that was never applied.
	if plan.Empty() && len(plan.Retained) == 0 {
		return nil, apperrors.NewMigrationError(pluginName, "declared change produced no DDL plan", nil)
	}
	return s.apply(ctx, txStore, pluginName, def, fingerprint, plan, snap.Idx+1)
}

// apply runs the DDL plan and records journal entry, snapshot and log row
// in the surrounding transaction.
func (s *Service) apply(ctx context.Context, txStore *Store, pluginName string, def schema.Definition, fingerprint string, plan *schema.Plan, snapshotIdx int) (*Result, error) {
	statements, err := schema.CompilePlan(targetSchema, plan)
	if err != nil {
		return nil, apperrors.NewMigrationError(pluginName, "failed to compile DDL plan", err)
	}

	for _, stmt := range statements {
		if err := txStore.db.Exec(stmt).Error; err != nil {
			return nil, apperrors.NewMigrationError(pluginName, fmt.Sprintf("DDL failed: %s", stmt), err)
		}
	}

	description := plan.Describe()
	entryCount, err := txStore.AppendJournal(ctx, pluginName, JournalEntry{
		Timestamp:   time.Now().UTC(),
		Description: description,
		SnapshotIdx: snapshotIdx,
	})
	if err != nil {
		return nil, apperrors.NewMigrationError(pluginName, "failed to append journal entry", err)
	}

	err = txStore.WriteSnapshot(ctx, &SnapshotRecord{
		PluginName: pluginName,
		Idx:        snapshotIdx,
		Snapshot:   SnapshotPayload(def.Snapshot()),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperrors.NewHashConflictError(pluginName, "unknown", fingerprint)
		}
		return nil, apperrors.NewMigrationError(pluginName, "failed to write snapshot", err)
	}

	if err := txStore.InsertRecord(ctx, pluginName, fingerprint); err != nil {
		return nil, apperrors.NewMigrationError(pluginName, "failed to record migration", err)
	}

	s.logger.LogInfo("Applied plugin migration", map[string]interface{}{
		"hash":        fingerprint,
		"snapshotIdx": snapshotIdx,
		"statements":  len(statements),
		"changes":     description,
	})

	return &Result{
		PluginName:     pluginName,
		Hash:           fingerprint,
		Applied:        true,
		SnapshotIdx:    snapshotIdx,
		JournalEntries: entryCount,
		Statements:     len(statements),
		Description:    description,
	}, nil
}

func (s *Service) noopResult(ctx context.Context, pluginName, fingerprint string) (*Result, error) {
	return s.txNoopResult(ctx, s.store, pluginName, fingerprint)
}

func (s *Service) txNoopResult(ctx context.Context, store *Store, pluginName, fingerprint string) (*Result, error) {
	snap, err := store.LatestSnapshot(ctx, pluginName)
	if err != nil {
		return nil, err
	}
	journal, err := store.Journal(ctx, pluginName)
	if err != nil {
		return nil, err
	}
	idx := -1
	if snap != nil {
		idx = snap.Idx
	}
	return &Result{
		PluginName:     pluginName,
		Hash:           fingerprint,
		Applied:        false,
		SnapshotIdx:    idx,
		JournalEntries: len(journal.Entries),
		Description:    "no changes",
	}, nil
}

// Status reads a plugin's migration state without taking locks or
// creating anything. Unknown plugins and an uninitialized store both
// report the zero status.
func (s *Service) Status(ctx context.Context, pluginName string) (*Status, error) {
	rec, err := s.store.LatestRecord(ctx, pluginName)
	if err != nil {
		if isUndefinedTable(err) {
			return &Status{}, nil
		}
		return nil, fmt.Errorf("failed to read migration log: %w", err)
	}
	if rec == nil {
		return &Status{}, nil
	}

	count, err := s.store.SnapshotCount(ctx, pluginName)
	if err != nil {
		return nil, fmt.Errorf("failed to count snapshots: %w", err)
	}

	last := rec.CreatedAt
	return &Status{
		HasRun:        true,
		Snapshots:     count,
		LastMigration: &last,
	}, nil
}

// Journal returns the ordered change history for a plugin
func (s *Service) Journal(ctx context.Context, pluginName string) (JournalEntries, error) {
	journal, err := s.store.Journal(ctx, pluginName)
	if err != nil {
		if isUndefinedTable(err) {
			return JournalEntries{}, nil
		}
		return nil, err
	}
	return journal.Entries, nil
}

// SnapshotAt returns the full schema description at journal position idx
func (s *Service) SnapshotAt(ctx context.Context, pluginName string, idx int) (*schema.SnapshotDocument, error) {
	snap, err := s.store.SnapshotAt(ctx, pluginName, idx)
	if err != nil {
		return nil, err
	}
	doc := schema.SnapshotDocument(snap.Snapshot)
	return &doc, nil
}

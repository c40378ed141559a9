package isolation

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcfield/plugindb/internal/apperrors"
)

// SetServerContext binds a connection to a server identity. The setting
// is connection-scoped, so it must run on every pooled connection; wire
// it through the pool's connect hook rather than calling it per query.
// The server must already be registered.
func SetServerContext(ctx context.Context, adapter Adapter, serverID string) error {
	if err := ValidateToken("server", serverID); err != nil {
		return err
	}

	var count int64
	if err := adapter.Select(ctx, &count,
		"SELECT count(*) FROM public.servers WHERE id = ?", serverID); err != nil {
		return fmt.Errorf("failed to look up server %q: %w", serverID, err)
	}
	if count == 0 {
		return fmt.Errorf("%s: %q", apperrors.ErrMsgUnknownServer, serverID)
	}

	if err := adapter.Exec(ctx, "SELECT set_config(?, ?, false)", serverSetting, serverID); err != nil {
		return fmt.Errorf("failed to set server context: %w", err)
	}
	return nil
}

// SetEntityContext binds the current transaction to an entity identity.
// The setting is transaction-local and vanishes at commit or rollback,
// so it cannot leak across pooled connections. Call it inside the
// transaction it should scope.
func SetEntityContext(ctx context.Context, tx Adapter, entityID string) error {
	if entityID == "" {
		return errors.New(apperrors.ErrMsgEmptyEntity)
	}
	if err := ValidateToken("entity", entityID); err != nil {
		return err
	}

	if err := tx.Exec(ctx, "SELECT set_config(?, ?, true)", entitySetting, entityID); err != nil {
		return fmt.Errorf("failed to set entity context: %w", err)
	}
	return nil
}

// WithEntityContext runs fn in a transaction scoped to the given entity.
// This is the intended way for request handlers to touch entity-owned
// rows.
func WithEntityContext(ctx context.Context, adapter Adapter, entityID string, fn func(tx Adapter) error) error {
	if entityID == "" {
		return errors.New(apperrors.ErrMsgEmptyEntity)
	}
	return adapter.Transaction(ctx, func(tx Adapter) error {
		if err := SetEntityContext(ctx, tx, entityID); err != nil {
			return err
		}
		return fn(tx)
	})
}

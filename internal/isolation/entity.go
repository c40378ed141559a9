package isolation

import (
	"context"
	"fmt"
	"strings"
)

// EntityIsolation installs the per-entity filtering layer on top of the
// server layer. Both layers stack: a row must satisfy every policy on
// its table to be visible.
type EntityIsolation struct {
	adapter   Adapter
	inspector Inspector
	logger    Logger
	excluded  map[string]bool
}

// NewEntityIsolation creates a new entity-isolation installer. Extra
// exclusions come from configuration for tables that are platform-scoped
// by design.
func NewEntityIsolation(adapter Adapter, inspector Inspector, logger Logger, excludedTables []string) *EntityIsolation {
	excluded := map[string]bool{
		// Infrastructure tables, plus the membership table the shared
		// policy itself consults. Putting a policy on participants would
		// make every room lookup recursive.
		"servers":         true,
		"server_agents":   true,
		participantsTable: true,
	}
	for _, t := range excludedTables {
		excluded[strings.ToLower(t)] = true
	}
	return &EntityIsolation{
		adapter:   adapter,
		inspector: inspector,
		logger:    logger,
		excluded:  excluded,
	}
}

// Install installs the entity identity resolver
func (e *EntityIsolation) Install(ctx context.Context) error {
	if err := requireStore(ctx, e.adapter, "install entity isolation"); err != nil {
		return err
	}
	if err := e.adapter.Exec(ctx, entityResolverSQL()); err != nil {
		return fmt.Errorf("failed to install entity resolver: %w", err)
	}
	e.logger.LogInfo("Entity isolation installed", nil)
	return nil
}

// ApplyToAllTables walks the target schema and installs the strategy each
// table's shape calls for. Tables without an ownership or room column are
// left alone and reported.
func (e *EntityIsolation) ApplyToAllTables(ctx context.Context) error {
	tables, err := e.inspector.ListTables(ctx, targetSchema)
	if err != nil {
		return err
	}

	applied := 0
	skipped := []string{}
	for _, table := range tables {
		if e.excluded[table.Name] {
			continue
		}
		kind, column, ok := entityStrategy(table)
		if !ok {
			skipped = append(skipped, table.Name)
			continue
		}

		policyName := entityPolicyName
		if kind == kindEntityShared {
			policyName = entityRoomPolicyName
		}
		covered, err := policyExists(ctx, e.adapter, targetSchema, table.Name, policyName)
		if err != nil {
			return err
		}
		if covered {
			continue
		}

		stmts, err := compilePolicy(policySpec{
			Schema: targetSchema,
			Table:  table.Name,
			Kind:   kind,
			Column: column,
		})
		if err != nil {
			return err
		}
		for _, stmt := range stmts {
			if err := e.adapter.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply entity isolation to %q: %w", table.Name, err)
			}
		}
		applied++
	}

	fields := map[string]interface{}{"tables": applied}
	if len(skipped) > 0 {
		fields["unprotected"] = skipped
	}
	e.logger.LogInfo("Applied entity isolation", fields)
	return nil
}

// Uninstall removes every entity policy; the server layer stays in place
func (e *EntityIsolation) Uninstall(ctx context.Context) error {
	return dropPolicies(ctx, e.adapter, e.logger, []string{entityPolicyName, entityRoomPolicyName})
}

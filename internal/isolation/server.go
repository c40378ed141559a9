package isolation

import (
	"context"
	"fmt"
	"time"

	"github.com/arcfield/plugindb/internal/apperrors"
	"github.com/arcfield/plugindb/internal/schema"
)

// targetSchema is where plugin tables live
const targetSchema = "public"

// Server is one registered deployment sharing the database
type Server struct {
	ID        string    `gorm:"column:id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// serverExcluded tables never receive the server filter: the registry
// cannot filter itself, and assignments must be resolvable before any
// context exists.
var serverExcluded = map[string]bool{
	"servers":       true,
	"server_agents": true,
}

// ServerIsolation installs and maintains the deployment-level filtering
// layer.
type ServerIsolation struct {
	adapter   Adapter
	inspector Inspector
	logger    Logger
}

// NewServerIsolation creates a new server-isolation installer
func NewServerIsolation(adapter Adapter, inspector Inspector, logger Logger) *ServerIsolation {
	return &ServerIsolation{
		adapter:   adapter,
		inspector: inspector,
		logger:    logger,
	}
}

// requireStore fails fast when the migration store is missing: installing
// policies before any plugin bookkeeping exists means the platform
// skipped its startup order.
func requireStore(ctx context.Context, adapter Adapter, operation string) error {
	var name *string
	if err := adapter.Select(ctx, &name, "SELECT to_regclass('migrations.plugin_migrations')::text"); err != nil {
		return fmt.Errorf("failed to probe migration store: %w", err)
	}
	if name == nil {
		return apperrors.NewStoreNotInitializedError(operation)
	}
	return nil
}

// warnOnBypass surfaces the one misconfiguration the engine cannot
// defend against: a role that bypasses row security entirely.
func warnOnBypass(ctx context.Context, adapter Adapter, logger Logger) {
	var result struct {
		Role   string
		Bypass bool
	}
	err := adapter.Select(ctx, &result,
		"SELECT rolname AS role, rolsuper OR rolbypassrls AS bypass FROM pg_roles WHERE rolname = current_user")
	if err == nil && result.Bypass {
		logger.LogWarn("Active role bypasses row-level security; installed policies will not filter anything", map[string]interface{}{
			"role": result.Role,
		})
	}
}

// InstallFunctions installs the server registry, the identity resolver
// and the per-table policy machinery. Every statement is idempotent, so
// concurrent installs from multiple processes are safe without locking.
func (s *ServerIsolation) InstallFunctions(ctx context.Context) error {
	if err := requireStore(ctx, s.adapter, "install server isolation"); err != nil {
		return err
	}
	warnOnBypass(ctx, s.adapter, s.logger)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS public.servers (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS public.server_agents (
			agent_id TEXT PRIMARY KEY,
			server_id TEXT NOT NULL REFERENCES public.servers(id)
		)`,
		serverResolverSQL(),
	}
	for _, stmt := range statements {
		if err := s.adapter.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to install server isolation functions: %w", err)
		}
	}

	// Single-tenant deployments work without explicit provisioning
	if err := s.adapter.Exec(ctx,
		"INSERT INTO public.servers (id) VALUES (?) ON CONFLICT (id) DO NOTHING", DefaultServerID); err != nil {
		return fmt.Errorf("failed to seed default server: %w", err)
	}

	if err := s.ApplyToNewTables(ctx); err != nil {
		return err
	}

	s.logger.LogInfo("Server isolation installed", nil)
	return nil
}

// GetOrCreateServer returns the server row, creating it on first contact
func (s *ServerIsolation) GetOrCreateServer(ctx context.Context, serverID string) (*Server, error) {
	if err := ValidateToken("server", serverID); err != nil {
		return nil, err
	}

	if err := s.adapter.Exec(ctx,
		"INSERT INTO public.servers (id) VALUES (?) ON CONFLICT (id) DO NOTHING", serverID); err != nil {
		return nil, fmt.Errorf("failed to create server %q: %w", serverID, err)
	}

	var server Server
	if err := s.adapter.Select(ctx, &server,
		"SELECT id, created_at FROM public.servers WHERE id = ?", serverID); err != nil {
		return nil, fmt.Errorf("failed to load server %q: %w", serverID, err)
	}
	return &server, nil
}

// AssignAgent records which server owns an agent; re-assignment upserts
func (s *ServerIsolation) AssignAgent(ctx context.Context, agentID, serverID string) error {
	if err := ValidateToken("agent", agentID); err != nil {
		return err
	}
	if err := ValidateToken("server", serverID); err != nil {
		return err
	}
	if _, err := s.GetOrCreateServer(ctx, serverID); err != nil {
		return err
	}

	err := s.adapter.Exec(ctx, `
		INSERT INTO public.server_agents (agent_id, server_id) VALUES (?, ?)
		ON CONFLICT (agent_id) DO UPDATE SET server_id = EXCLUDED.server_id`,
		agentID, serverID)
	if err != nil {
		return fmt.Errorf("failed to assign agent %q to server %q: %w", agentID, serverID, err)
	}
	return nil
}

// ApplyToNewTables covers every eligible table that is not covered yet.
// Call it after plugin migrations that may have created tables.
func (s *ServerIsolation) ApplyToNewTables(ctx context.Context) error {
	tables, err := s.inspector.ListTables(ctx, targetSchema)
	if err != nil {
		return err
	}

	applied := 0
	for _, table := range tables {
		if serverExcluded[table.Name] {
			continue
		}
		covered, err := policyExists(ctx, s.adapter, targetSchema, table.Name, serverPolicyName)
		if err != nil {
			return err
		}
		if covered {
			continue
		}
		if err := s.isolateTable(ctx, table.Name); err != nil {
			return err
		}
		applied++
	}

	if applied > 0 {
		s.logger.LogInfo("Applied server isolation to new tables", map[string]interface{}{
			"tables": applied,
		})
	}
	return nil
}

// isolateTable adds the identity column, its index and the forced policy
func (s *ServerIsolation) isolateTable(ctx context.Context, table string) error {
	if err := schema.ValidateIdentifier("table", table); err != nil {
		return err
	}
	target := qualify(targetSchema, table)

	// Existing rows backfill to the default server; new rows inherit the
	// connection's identity through the resolver default.
	addColumn := fmt.Sprintf(
		"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %q TEXT NOT NULL DEFAULT public.%s()",
		target, serverColumn, serverResolver)
	addIndex := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %q ON %s (%q)",
		"idx_"+table+"_"+serverColumn, target, serverColumn)

	stmts := []string{addColumn, addIndex}
	policyStmts, err := compilePolicy(policySpec{Schema: targetSchema, Table: table, Kind: kindServer})
	if err != nil {
		return err
	}
	stmts = append(stmts, policyStmts...)

	for _, stmt := range stmts {
		if err := s.adapter.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to isolate table %q: %w", table, err)
		}
	}
	return nil
}

// Uninstall drops every server policy and disables enforcement where no
// other policies remain. Identity columns and data stay: dropping data is
// never implicit. Development and single-server migrations only.
func (s *ServerIsolation) Uninstall(ctx context.Context) error {
	return dropPolicies(ctx, s.adapter, s.logger, []string{serverPolicyName})
}

// policyExists checks the policy catalog before creating anything
func policyExists(ctx context.Context, adapter Adapter, schemaName, table, policy string) (bool, error) {
	var count int64
	err := adapter.Select(ctx, &count,
		"SELECT count(*) FROM pg_policies WHERE schemaname = ? AND tablename = ? AND policyname = ?",
		schemaName, table, policy)
	if err != nil {
		return false, fmt.Errorf("failed to probe policies for %q: %w", table, err)
	}
	return count > 0, nil
}

// dropPolicies removes the named policies wherever they are installed and
// turns row security off on tables left with no policies at all.
func dropPolicies(ctx context.Context, adapter Adapter, logger Logger, policyNames []string) error {
	var rows []struct {
		Schemaname string
		Tablename  string
		Policyname string
	}
	err := adapter.Select(ctx, &rows,
		"SELECT schemaname, tablename, policyname FROM pg_policies WHERE policyname IN ?", policyNames)
	if err != nil {
		return fmt.Errorf("failed to enumerate policies: %w", err)
	}

	touched := map[string]string{}
	for _, row := range rows {
		if err := schema.ValidateIdentifier("schema", row.Schemaname); err != nil {
			return err
		}
		if err := schema.ValidateIdentifier("table", row.Tablename); err != nil {
			return err
		}
		target := qualify(row.Schemaname, row.Tablename)
		drop := fmt.Sprintf("DROP POLICY IF EXISTS %q ON %s", row.Policyname, target)
		if err := adapter.Exec(ctx, drop); err != nil {
			return fmt.Errorf("failed to drop policy on %q: %w", row.Tablename, err)
		}
		touched[row.Schemaname+"."+row.Tablename] = target
	}

	for key, target := range touched {
		var remaining int64
		err := adapter.Select(ctx, &remaining,
			"SELECT count(*) FROM pg_policies WHERE schemaname || '.' || tablename = ?", key)
		if err != nil {
			return fmt.Errorf("failed to count remaining policies: %w", err)
		}
		if remaining > 0 {
			// Another layer still enforces; leave row security on
			continue
		}
		for _, stmt := range []string{
			fmt.Sprintf("ALTER TABLE %s NO FORCE ROW LEVEL SECURITY", target),
			fmt.Sprintf("ALTER TABLE %s DISABLE ROW LEVEL SECURITY", target),
		} {
			if err := adapter.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to disable row security: %w", err)
			}
		}
	}

	logger.LogInfo("Dropped isolation policies", map[string]interface{}{
		"policies": policyNames,
		"tables":   len(touched),
	})
	return nil
}

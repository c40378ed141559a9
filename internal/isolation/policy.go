package isolation

import (
	"fmt"

	"github.com/arcfield/plugindb/internal/schema"
)

// Session settings and installed object names shared by both layers
const (
	serverSetting = "app.current_server_id"
	entitySetting = "app.current_entity_id"

	serverResolver = "app_current_server"
	entityResolver = "app_current_entity"

	serverColumn = "server_id"

	serverPolicyName     = "server_isolation"
	entityPolicyName     = "entity_isolation"
	entityRoomPolicyName = "entity_room_isolation"

	// DefaultServerID tags rows created before isolation was installed
	// and serves single-tenant deployments out of the box.
	DefaultServerID = "00000000-0000-0000-0000-000000000000"

	participantsTable = "participants"
)

// Column shapes that select the entity-isolation strategy. Direct
// ownership is preferred over shared access: a column comparison is
// evaluated per row, while shared access costs a membership lookup —
// always the more expensive policy, and the place to add materialized
// views or partitioning when it shows up at scale.
var (
	entityColumns = []string{"entity_id", "author_id"}
	roomColumns   = []string{"room_id", "channel_id"}
)

type policyKind int

const (
	kindServer policyKind = iota
	kindEntityDirect
	kindEntityShared
)

// policySpec describes one policy to install on one table
type policySpec struct {
	Schema string
	Table  string
	Kind   policyKind
	Column string
}

func qualify(schemaName, table string) string {
	return fmt.Sprintf("%q.%q", schemaName, table)
}

// compilePolicy renders the statements installing one forced policy. All
// identifiers pass the allow-list before interpolation; caller-supplied
// values never reach the statement text directly.
func compilePolicy(spec policySpec) ([]string, error) {
	if err := schema.ValidateIdentifier("schema", spec.Schema); err != nil {
		return nil, err
	}
	if err := schema.ValidateIdentifier("table", spec.Table); err != nil {
		return nil, err
	}

	target := qualify(spec.Schema, spec.Table)
	stmts := []string{
		fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY", target),
		// Forced: the policy binds the table owner too; only a superuser
		// or BYPASSRLS role steps around it.
		fmt.Sprintf("ALTER TABLE %s FORCE ROW LEVEL SECURITY", target),
	}

	switch spec.Kind {
	case kindServer:
		stmts = append(stmts, fmt.Sprintf(
			"CREATE POLICY %q ON %s USING (%q = public.%s())",
			serverPolicyName, target, serverColumn, serverResolver))

	case kindEntityDirect:
		if err := schema.ValidateIdentifier("column", spec.Column); err != nil {
			return nil, err
		}
		// Unset entity context means platform-level access; the server
		// layer still applies.
		stmts = append(stmts, fmt.Sprintf(
			"CREATE POLICY %q ON %s USING (public.%s() IS NULL OR %q::text = public.%s())",
			entityPolicyName, target, entityResolver, spec.Column, entityResolver))

	case kindEntityShared:
		if err := schema.ValidateIdentifier("column", spec.Column); err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE POLICY %q ON %s USING (public.%s() IS NULL OR EXISTS ("+
				"SELECT 1 FROM public.%q pr WHERE pr.%q = %s.%q AND pr.entity_id::text = public.%s()))",
			entityRoomPolicyName, target, entityResolver,
			participantsTable, spec.Column, target, spec.Column, entityResolver))

	default:
		return nil, fmt.Errorf("unknown policy kind %d", spec.Kind)
	}

	return stmts, nil
}

// serverResolverSQL installs the connection-level identity resolver
func serverResolverSQL() string {
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION public.%s() RETURNS TEXT
LANGUAGE sql STABLE AS $$
	SELECT COALESCE(NULLIF(current_setting('%s', true), ''), '%s')
$$`, serverResolver, serverSetting, DefaultServerID)
}

// entityResolverSQL installs the transaction-level identity resolver
func entityResolverSQL() string {
	return fmt.Sprintf(`CREATE OR REPLACE FUNCTION public.%s() RETURNS TEXT
LANGUAGE sql STABLE AS $$
	SELECT NULLIF(current_setting('%s', true), '')
$$`, entityResolver, entitySetting)
}

// entityStrategy picks the isolation strategy for a table shape. Direct
// ownership wins when both shapes are present.
func entityStrategy(t TableShape) (policyKind, string, bool) {
	for _, col := range entityColumns {
		if t.HasColumn(col) {
			return kindEntityDirect, col, true
		}
	}
	for _, col := range roomColumns {
		if t.HasColumn(col) {
			return kindEntityShared, col, true
		}
	}
	return 0, "", false
}

package isolation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/plugindb/internal/apperrors"
)

func TestInstallFunctionsRequiresStore(t *testing.T) {
	adapter := &fakeAdapter{}
	svc := NewServerIsolation(adapter, &fakeInspector{}, nopLogger{})

	err := svc.InstallFunctions(context.Background())
	require.Error(t, err)

	var notInit *apperrors.StoreNotInitializedError
	assert.True(t, errors.As(err, &notInit))
	assert.Empty(t, adapter.execs)
}

func TestInstallFunctionsInstallsRegistryAndResolver(t *testing.T) {
	adapter := &fakeAdapter{results: []fakeResult{storeReady()}}
	inspector := &fakeInspector{tables: []TableShape{
		{Schema: "public", Name: "notes", Columns: []string{"id", "entity_id"}},
	}}
	svc := NewServerIsolation(adapter, inspector, nopLogger{})

	require.NoError(t, svc.InstallFunctions(context.Background()))

	assert.Len(t, adapter.execMatching("CREATE TABLE IF NOT EXISTS public.servers"), 1)
	assert.Len(t, adapter.execMatching("CREATE TABLE IF NOT EXISTS public.server_agents"), 1)
	assert.Len(t, adapter.execMatching("CREATE OR REPLACE FUNCTION public.app_current_server"), 1)
	assert.Len(t, adapter.execMatching("INSERT INTO public.servers"), 1)
	assert.Equal(t, []interface{}{DefaultServerID}, adapter.args[3])

	// The notes table got the column, the index and the forced policy
	assert.Len(t, adapter.execMatching(`ALTER TABLE "public"."notes" ADD COLUMN IF NOT EXISTS "server_id"`), 1)
	assert.Len(t, adapter.execMatching(`CREATE INDEX IF NOT EXISTS "idx_notes_server_id"`), 1)
	assert.Len(t, adapter.execMatching(`FORCE ROW LEVEL SECURITY`), 1)
	assert.Len(t, adapter.execMatching(`CREATE POLICY "server_isolation"`), 1)
}

func TestInstallFunctionsIsIdempotent(t *testing.T) {
	adapter := &fakeAdapter{results: []fakeResult{
		storeReady(),
		{match: "policyname = ?", value: int64(1)},
	}}
	inspector := &fakeInspector{tables: []TableShape{
		{Schema: "public", Name: "notes", Columns: []string{"id", "entity_id"}},
	}}
	svc := NewServerIsolation(adapter, inspector, nopLogger{})

	require.NoError(t, svc.InstallFunctions(context.Background()))

	// Covered tables are left alone on a second pass
	assert.Empty(t, adapter.execMatching("ALTER TABLE"))
	assert.Empty(t, adapter.execMatching("CREATE POLICY"))
}

func TestApplyToNewTablesSkipsRegistryTables(t *testing.T) {
	adapter := &fakeAdapter{results: []fakeResult{storeReady()}}
	inspector := &fakeInspector{tables: []TableShape{
		{Schema: "public", Name: "servers", Columns: []string{"id"}},
		{Schema: "public", Name: "server_agents", Columns: []string{"agent_id", "server_id"}},
	}}
	svc := NewServerIsolation(adapter, inspector, nopLogger{})

	require.NoError(t, svc.ApplyToNewTables(context.Background()))
	assert.Empty(t, adapter.execs)
}

func TestGetOrCreateServer(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	adapter := &fakeAdapter{results: []fakeResult{
		{match: "FROM public.servers WHERE id = ?", value: Server{ID: "guild-7", CreatedAt: created}},
	}}
	svc := NewServerIsolation(adapter, &fakeInspector{}, nopLogger{})

	server, err := svc.GetOrCreateServer(context.Background(), "guild-7")
	require.NoError(t, err)
	assert.Equal(t, "guild-7", server.ID)
	assert.Equal(t, created, server.CreatedAt)
	assert.Len(t, adapter.execMatching("ON CONFLICT (id) DO NOTHING"), 1)
}

func TestGetOrCreateServerRejectsHostileID(t *testing.T) {
	adapter := &fakeAdapter{}
	svc := NewServerIsolation(adapter, &fakeInspector{}, nopLogger{})

	_, err := svc.GetOrCreateServer(context.Background(), `x'; DELETE FROM servers; --`)
	require.Error(t, err)

	var idErr *apperrors.IdentifierError
	assert.True(t, errors.As(err, &idErr))
	assert.Empty(t, adapter.execs)
}

func TestAssignAgentUpserts(t *testing.T) {
	adapter := &fakeAdapter{results: []fakeResult{
		{match: "FROM public.servers WHERE id = ?", value: Server{ID: "guild-7"}},
	}}
	svc := NewServerIsolation(adapter, &fakeInspector{}, nopLogger{})

	require.NoError(t, svc.AssignAgent(context.Background(), "agent-1", "guild-7"))

	upserts := adapter.execMatching("ON CONFLICT (agent_id) DO UPDATE")
	require.Len(t, upserts, 1)
	assert.Equal(t, []interface{}{"agent-1", "guild-7"}, adapter.args[len(adapter.args)-1])
}

func TestUninstallDropsPoliciesAndDisablesRLS(t *testing.T) {
	adapter := &fakeAdapter{results: []fakeResult{
		{match: "policyname IN ?", value: []struct {
			Schemaname string
			Tablename  string
			Policyname string
		}{
			{"public", "notes", "server_isolation"},
		}},
	}}
	svc := NewServerIsolation(adapter, &fakeInspector{}, nopLogger{})

	require.NoError(t, svc.Uninstall(context.Background()))

	assert.Len(t, adapter.execMatching(`DROP POLICY IF EXISTS "server_isolation" ON "public"."notes"`), 1)
	assert.Len(t, adapter.execMatching(`NO FORCE ROW LEVEL SECURITY`), 1)
	assert.Len(t, adapter.execMatching(`DISABLE ROW LEVEL SECURITY`), 1)
}

func TestUninstallKeepsRLSWhenOtherPoliciesRemain(t *testing.T) {
	adapter := &fakeAdapter{results: []fakeResult{
		{match: "policyname IN ?", value: []struct {
			Schemaname string
			Tablename  string
			Policyname string
		}{
			{"public", "notes", "server_isolation"},
		}},
		{match: "schemaname || '.' || tablename", value: int64(1)},
	}}
	svc := NewServerIsolation(adapter, &fakeInspector{}, nopLogger{})

	require.NoError(t, svc.Uninstall(context.Background()))

	assert.Len(t, adapter.execMatching("DROP POLICY"), 1)
	assert.Empty(t, adapter.execMatching("DISABLE ROW LEVEL SECURITY"))
}

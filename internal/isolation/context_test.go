package isolation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/plugindb/internal/apperrors"
)

func TestSetServerContext(t *testing.T) {
	adapter := &fakeAdapter{results: []fakeResult{
		{match: "count(*) FROM public.servers", value: int64(1)},
	}}

	require.NoError(t, SetServerContext(context.Background(), adapter, "guild-7"))

	require.Len(t, adapter.execs, 1)
	assert.Contains(t, adapter.execs[0], "set_config(?, ?, false)")
	assert.Equal(t, []interface{}{"app.current_server_id", "guild-7"}, adapter.args[0])
}

func TestSetServerContextRejectsUnknownServer(t *testing.T) {
	adapter := &fakeAdapter{}

	err := SetServerContext(context.Background(), adapter, "guild-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), apperrors.ErrMsgUnknownServer)
	assert.Empty(t, adapter.execs)
}

func TestSetServerContextRejectsHostileID(t *testing.T) {
	adapter := &fakeAdapter{}

	err := SetServerContext(context.Background(), adapter, "g'; RESET ALL; --")
	require.Error(t, err)

	var idErr *apperrors.IdentifierError
	assert.True(t, errors.As(err, &idErr))
}

func TestSetEntityContext(t *testing.T) {
	adapter := &fakeAdapter{}

	require.NoError(t, SetEntityContext(context.Background(), adapter, "user-42"))

	require.Len(t, adapter.execs, 1)
	assert.Contains(t, adapter.execs[0], "set_config(?, ?, true)")
	assert.Equal(t, []interface{}{"app.current_entity_id", "user-42"}, adapter.args[0])
}

func TestSetEntityContextRejectsEmptyID(t *testing.T) {
	err := SetEntityContext(context.Background(), &fakeAdapter{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), apperrors.ErrMsgEmptyEntity)
}

func TestWithEntityContextScopesTransaction(t *testing.T) {
	adapter := &fakeAdapter{}
	ran := false

	err := WithEntityContext(context.Background(), adapter, "user-42", func(tx Adapter) error {
		ran = true
		return tx.Exec(context.Background(), "SELECT 1")
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// set_config runs inside the transaction, before the caller's work
	require.Len(t, adapter.execs, 4)
	assert.Equal(t, "BEGIN", adapter.execs[0])
	assert.Contains(t, adapter.execs[1], "set_config(?, ?, true)")
	assert.Equal(t, "SELECT 1", adapter.execs[2])
	assert.Equal(t, "COMMIT", adapter.execs[3])
}

func TestWithEntityContextRejectsEmptyID(t *testing.T) {
	adapter := &fakeAdapter{}

	err := WithEntityContext(context.Background(), adapter, "", func(tx Adapter) error {
		t.Fatal("must not run")
		return nil
	})
	require.Error(t, err)
	assert.Empty(t, adapter.execs)
}

func TestWithEntityContextRollsBackOnError(t *testing.T) {
	adapter := &fakeAdapter{}
	boom := errors.New("boom")

	err := WithEntityContext(context.Background(), adapter, "user-42", func(tx Adapter) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "ROLLBACK", adapter.execs[len(adapter.execs)-1])
}

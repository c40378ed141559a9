package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffFirstRunCreatesEverything(t *testing.T) {
	plan, err := Diff(SnapshotDocument{Tables: map[string]TableSnapshot{}}, invoicesDefinition())
	require.NoError(t, err)

	require.Len(t, plan.CreateTables, 1)
	assert.Equal(t, "invoices", plan.CreateTables[0].Name)
	assert.Empty(t, plan.AddColumns)
	assert.False(t, plan.Empty())
}

func TestDiffIdenticalSchemaIsEmpty(t *testing.T) {
	def := invoicesDefinition()
	plan, err := Diff(def.Snapshot(), def)
	require.NoError(t, err)

	assert.True(t, plan.Empty())
	assert.Equal(t, "no changes", plan.Describe())
}

func TestDiffAddsColumn(t *testing.T) {
	prev := invoicesDefinition()
	next := invoicesDefinition()
	next.Tables[0].Columns = append(next.Tables[0].Columns, Column{Name: "currency", Type: "text"})

	plan, err := Diff(prev.Snapshot(), next)
	require.NoError(t, err)

	assert.Empty(t, plan.CreateTables)
	require.Len(t, plan.AddColumns, 1)
	assert.Equal(t, "invoices", plan.AddColumns[0].Table)
	assert.Equal(t, "currency", plan.AddColumns[0].Column.Name)
	assert.Contains(t, plan.Describe(), "add column invoices.currency")
}

func TestDiffRetainsRemovedColumn(t *testing.T) {
	prev := invoicesDefinition()
	next := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true, Default: "gen_random_uuid()"}},
	}}}

	plan, err := Diff(prev.Snapshot(), next)
	require.NoError(t, err)

	// No DDL: the column keeps its data
	assert.True(t, plan.Empty())
	assert.Equal(t, []string{"invoices.amount"}, plan.Retained)
}

func TestDiffRetainsRemovedTable(t *testing.T) {
	prev := Definition{Tables: []Table{
		invoicesDefinition().Tables[0],
		{Name: "receipts", Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}}},
	}}

	plan, err := Diff(prev.Snapshot(), invoicesDefinition())
	require.NoError(t, err)

	assert.True(t, plan.Empty())
	assert.Equal(t, []string{"receipts"}, plan.Retained)
}

func TestDiffRejectsTypeChange(t *testing.T) {
	prev := invoicesDefinition()
	next := invoicesDefinition()
	next.Tables[0].Columns[1].Type = "text"

	_, err := Diff(prev.Snapshot(), next)
	var incompatible *IncompatibleChangeError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "invoices", incompatible.Table)
	assert.Equal(t, "amount", incompatible.Column)
}

func TestDiffRejectsNotNullWithoutDefault(t *testing.T) {
	prev := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}, {Name: "currency", Type: "text"}},
	}}}
	next := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}, {Name: "currency", Type: "text", NotNull: true}},
	}}}

	_, err := Diff(prev.Snapshot(), next)
	var incompatible *IncompatibleChangeError
	require.ErrorAs(t, err, &incompatible)
}

func TestDiffTightensNotNullWithDefault(t *testing.T) {
	prev := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}, {Name: "currency", Type: "text"}},
	}}}
	next := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}, {Name: "currency", Type: "text", NotNull: true, Default: "'USD'"}},
	}}}

	plan, err := Diff(prev.Snapshot(), next)
	require.NoError(t, err)
	require.Len(t, plan.Constraints, 1)
	assert.True(t, plan.Constraints[0].SetNotNull)
	assert.Equal(t, "'USD'", plan.Constraints[0].SetDefault)
}

func TestDiffAddsUniqueConstraint(t *testing.T) {
	prev := invoicesDefinition()
	next := invoicesDefinition()
	next.Tables[0].Columns[1].Unique = true

	// The flag is fingerprint-visible, so the plan must carry it
	require.NotEqual(t, prev.Fingerprint(), next.Fingerprint())

	plan, err := Diff(prev.Snapshot(), next)
	require.NoError(t, err)
	require.Len(t, plan.Constraints, 1)
	assert.True(t, plan.Constraints[0].SetUnique)
	assert.False(t, plan.Empty())
	assert.Contains(t, plan.Describe(), "add unique invoices.amount")
}

func TestDiffDropsUniqueConstraint(t *testing.T) {
	prev := invoicesDefinition()
	prev.Tables[0].Columns[1].Unique = true

	plan, err := Diff(prev.Snapshot(), invoicesDefinition())
	require.NoError(t, err)
	require.Len(t, plan.Constraints, 1)
	assert.True(t, plan.Constraints[0].DropUnique)
	assert.Contains(t, plan.Describe(), "drop unique invoices.amount")
}

func TestDiffAddsForeignKeyToExistingColumn(t *testing.T) {
	prev := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}, {Name: "customer_id", Type: "uuid"}},
	}}}
	next := Definition{Tables: []Table{{
		Name: "invoices",
		Columns: []Column{
			{Name: "id", Type: "uuid", PrimaryKey: true},
			{Name: "customer_id", Type: "uuid", References: &Reference{Table: "customers", Column: "id"}},
		},
	}}}

	plan, err := Diff(prev.Snapshot(), next)
	require.NoError(t, err)
	require.Len(t, plan.Constraints, 1)
	require.NotNil(t, plan.Constraints[0].AddReference)
	assert.Equal(t, "customers", plan.Constraints[0].AddReference.Table)
	assert.Contains(t, plan.Describe(), "add foreign key invoices.customer_id")
}

func TestDiffRejectsForeignKeyChange(t *testing.T) {
	base := func(ref *Reference) Definition {
		return Definition{Tables: []Table{{
			Name: "invoices",
			Columns: []Column{
				{Name: "id", Type: "uuid", PrimaryKey: true},
				{Name: "customer_id", Type: "uuid", References: ref},
			},
		}}}
	}
	prev := base(&Reference{Table: "customers", Column: "id"})

	// Retargeting
	_, err := Diff(prev.Snapshot(), base(&Reference{Table: "accounts", Column: "id"}))
	var incompatible *IncompatibleChangeError
	require.ErrorAs(t, err, &incompatible)

	// Removal
	_, err = Diff(prev.Snapshot(), base(nil))
	require.ErrorAs(t, err, &incompatible)
}

func TestDiffChangesDefaultOnNotNullColumn(t *testing.T) {
	prev := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}, {Name: "currency", Type: "text", NotNull: true, Default: "'USD'"}},
	}}}
	next := Definition{Tables: []Table{{
		Name:    "invoices",
		Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}, {Name: "currency", Type: "text", NotNull: true, Default: "'EUR'"}},
	}}}

	plan, err := Diff(prev.Snapshot(), next)
	require.NoError(t, err)
	require.Len(t, plan.Constraints, 1)
	assert.Equal(t, "'EUR'", plan.Constraints[0].SetDefault)
	assert.False(t, plan.Constraints[0].SetNotNull)
}

func TestDiffDropsDefault(t *testing.T) {
	prev := invoicesDefinition()
	next := invoicesDefinition()
	next.Tables[0].Columns[0].Default = ""

	plan, err := Diff(prev.Snapshot(), next)
	require.NoError(t, err)
	require.Len(t, plan.Constraints, 1)
	assert.True(t, plan.Constraints[0].DropDefault)
	assert.Contains(t, plan.Describe(), "drop default invoices.id")
}

func TestDiffNewNotNullColumnNeedsDefault(t *testing.T) {
	prev := invoicesDefinition()
	next := invoicesDefinition()
	next.Tables[0].Columns = append(next.Tables[0].Columns, Column{Name: "status", Type: "text", NotNull: true})

	_, err := Diff(prev.Snapshot(), next)
	var incompatible *IncompatibleChangeError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "status", incompatible.Column)
}

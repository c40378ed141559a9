package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcfield/plugindb/internal/apperrors"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		ident string
		valid bool
	}{
		{"simple", "invoices", true},
		{"underscore prefix", "_private", true},
		{"digits", "table_2", true},
		{"uppercase", "Invoices", false},
		{"empty", "", false},
		{"quote injection", `invoices"; DROP TABLE users; --`, false},
		{"space", "my table", false},
		{"dot", "public.invoices", false},
		{"too long", "a123456789012345678901234567890123456789012345678901234567890123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier("table", tt.ident)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				var identErr *apperrors.IdentifierError
				assert.ErrorAs(t, err, &identErr)
			}
		})
	}
}

func TestCreateTableSQL(t *testing.T) {
	sql, err := CreateTableSQL("public", invoicesDefinition().Tables[0])
	require.NoError(t, err)

	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "public"."invoices"`)
	assert.Contains(t, sql, `"id" UUID DEFAULT gen_random_uuid() PRIMARY KEY`)
	assert.Contains(t, sql, `"amount" NUMERIC NOT NULL`)
}

func TestCreateTableSQLRejectsUnknownType(t *testing.T) {
	_, err := CreateTableSQL("public", Table{
		Name:    "bad",
		Columns: []Column{{Name: "c", Type: "blob"}},
	})
	var identErr *apperrors.IdentifierError
	require.ErrorAs(t, err, &identErr)
}

func TestCreateTableSQLRejectsHostileDefault(t *testing.T) {
	_, err := CreateTableSQL("public", Table{
		Name:    "bad",
		Columns: []Column{{Name: "c", Type: "text", Default: "(SELECT password FROM users)"}},
	})
	var identErr *apperrors.IdentifierError
	require.ErrorAs(t, err, &identErr)
}

func TestCompilePlanOrdersStatements(t *testing.T) {
	def := Definition{Tables: []Table{
		{Name: "rooms", Columns: []Column{{Name: "id", Type: "uuid", PrimaryKey: true}}},
		{Name: "messages", Columns: []Column{
			{Name: "id", Type: "uuid", PrimaryKey: true},
			{Name: "room_id", Type: "uuid", References: &Reference{Table: "rooms", Column: "id", OnDelete: "cascade"}},
		}},
	}}

	plan, err := Diff(SnapshotDocument{Tables: map[string]TableSnapshot{}}, def)
	require.NoError(t, err)

	stmts, err := CompilePlan("public", plan)
	require.NoError(t, err)
	require.Len(t, stmts, 3)

	// Both creates precede the foreign key
	assert.Contains(t, stmts[0], "CREATE TABLE")
	assert.Contains(t, stmts[1], "CREATE TABLE")
	assert.Contains(t, stmts[2], `ADD CONSTRAINT "fk_messages_room_id" FOREIGN KEY ("room_id")`)
	assert.Contains(t, stmts[2], "ON DELETE CASCADE")
}

func TestCompilePlanUniqueConstraint(t *testing.T) {
	add := &Plan{Constraints: []ConstraintChange{{
		Table: "invoices", Column: "number", SetUnique: true,
	}}}
	stmts, err := CompilePlan("public", add)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, `ALTER TABLE "public"."invoices" ADD CONSTRAINT "invoices_number_key" UNIQUE ("number")`, stmts[0])

	drop := &Plan{Constraints: []ConstraintChange{{
		Table: "invoices", Column: "number", DropUnique: true,
	}}}
	stmts, err = CompilePlan("public", drop)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, `ALTER TABLE "public"."invoices" DROP CONSTRAINT IF EXISTS "invoices_number_key"`, stmts[0])
}

func TestCompilePlanAddForeignKey(t *testing.T) {
	plan := &Plan{Constraints: []ConstraintChange{{
		Table: "invoices", Column: "customer_id",
		AddReference: &Reference{Table: "customers", Column: "id", OnDelete: "restrict"},
	}}}

	stmts, err := CompilePlan("public", plan)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], `ADD CONSTRAINT "fk_invoices_customer_id" FOREIGN KEY ("customer_id")`)
	assert.Contains(t, stmts[0], `REFERENCES "public"."customers" ("id") ON DELETE RESTRICT`)
}

func TestCompilePlanDropDefault(t *testing.T) {
	plan := &Plan{Constraints: []ConstraintChange{{
		Table: "invoices", Column: "currency", DropDefault: true,
	}}}

	stmts, err := CompilePlan("public", plan)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t, `ALTER TABLE "public"."invoices" ALTER COLUMN "currency" DROP DEFAULT`, stmts[0])
}

func TestCompilePlanNotNullBackfill(t *testing.T) {
	plan := &Plan{Constraints: []ConstraintChange{{
		Table: "invoices", Column: "currency", SetDefault: "'USD'", SetNotNull: true,
	}}}

	stmts, err := CompilePlan("public", plan)
	require.NoError(t, err)
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "SET DEFAULT 'USD'")
	assert.Contains(t, stmts[1], `UPDATE "public"."invoices" SET "currency" = 'USD' WHERE "currency" IS NULL`)
	assert.Contains(t, stmts[2], "SET NOT NULL")
}

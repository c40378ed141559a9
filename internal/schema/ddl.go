package schema

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/arcfield/plugindb/internal/apperrors"
)

// identifierPattern is the allow-list for every name that reaches generated
// DDL. Anything else is rejected before interpolation.
var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// columnTypes maps portable type tokens to their PostgreSQL rendering
var columnTypes = map[string]string{
	"text":        "TEXT",
	"uuid":        "UUID",
	"boolean":     "BOOLEAN",
	"integer":     "INTEGER",
	"bigint":      "BIGINT",
	"numeric":     "NUMERIC",
	"real":        "REAL",
	"double":      "DOUBLE PRECISION",
	"timestamptz": "TIMESTAMPTZ",
	"timestamp":   "TIMESTAMP",
	"date":        "DATE",
	"jsonb":       "JSONB",
	"bytea":       "BYTEA",
}

// defaultPattern accepts simple literals: quoted strings, numbers, booleans
var defaultPattern = regexp.MustCompile(`^('[^']*'|-?[0-9]+(\.[0-9]+)?|true|false)$`)

// defaultFunctions are the only function-call defaults allowed
var defaultFunctions = map[string]bool{
	"now()":             true,
	"gen_random_uuid()": true,
	"current_timestamp": true,
	"'{}'::jsonb":       true,
}

// ValidateIdentifier checks a table/column/schema name against the
// allow-list
func ValidateIdentifier(kind, name string) error {
	if !identifierPattern.MatchString(name) {
		return apperrors.NewIdentifierError(kind, name)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func validateDefault(table, column, def string) error {
	if def == "" {
		return nil
	}
	if defaultPattern.MatchString(def) || defaultFunctions[strings.ToLower(def)] {
		return nil
	}
	return apperrors.NewIdentifierError("default expression", fmt.Sprintf("%s.%s: %s", table, column, def))
}

func columnSQL(table string, c Column) (string, error) {
	if err := ValidateIdentifier("column", c.Name); err != nil {
		return "", err
	}
	pgType, ok := columnTypes[c.Type]
	if !ok {
		return "", apperrors.NewIdentifierError("column type", c.Type)
	}
	if err := validateDefault(table, c.Name, c.Default); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(quoteIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(pgType)
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	} else {
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.Unique {
			b.WriteString(" UNIQUE")
		}
	}
	return b.String(), nil
}

// CreateTableSQL renders the CREATE TABLE statement for a declared table.
// Foreign keys are added separately so create order never matters.
func CreateTableSQL(schemaName string, t Table) (string, error) {
	if err := ValidateIdentifier("schema", schemaName); err != nil {
		return "", err
	}
	if err := ValidateIdentifier("table", t.Name); err != nil {
		return "", err
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("table %s declares no columns", t.Name)
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		sql, err := columnSQL(t.Name, c)
		if err != nil {
			return "", err
		}
		cols = append(cols, sql)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s (%s)",
		quoteIdent(schemaName), quoteIdent(t.Name), strings.Join(cols, ", ")), nil
}

// AddColumnSQL renders the ALTER TABLE statement adding one column
func AddColumnSQL(schemaName, table string, c Column) (string, error) {
	if err := ValidateIdentifier("schema", schemaName); err != nil {
		return "", err
	}
	if err := ValidateIdentifier("table", table); err != nil {
		return "", err
	}
	col, err := columnSQL(table, c)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s.%s ADD COLUMN IF NOT EXISTS %s",
		quoteIdent(schemaName), quoteIdent(table), col), nil
}

// foreignKeySQL renders the deferred foreign key statements for a table
func foreignKeySQL(schemaName string, t Table) ([]string, error) {
	var stmts []string
	for _, c := range t.Columns {
		if c.References == nil {
			continue
		}
		stmt, err := referenceSQL(schemaName, t.Name, c)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

func referenceSQL(schemaName, table string, c Column) (string, error) {
	ref := c.References
	if err := ValidateIdentifier("referenced table", ref.Table); err != nil {
		return "", err
	}
	if err := ValidateIdentifier("referenced column", ref.Column); err != nil {
		return "", err
	}
	onDelete := ""
	switch strings.ToLower(ref.OnDelete) {
	case "":
	case "cascade":
		onDelete = " ON DELETE CASCADE"
	case "set null":
		onDelete = " ON DELETE SET NULL"
	case "restrict":
		onDelete = " ON DELETE RESTRICT"
	default:
		return "", apperrors.NewIdentifierError("on delete action", ref.OnDelete)
	}
	constraint := fmt.Sprintf("fk_%s_%s", table, c.Name)
	if err := ValidateIdentifier("constraint", constraint); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"ALTER TABLE %s.%s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s.%s (%s)%s",
		quoteIdent(schemaName), quoteIdent(table), quoteIdent(constraint),
		quoteIdent(c.Name), quoteIdent(schemaName), quoteIdent(ref.Table),
		quoteIdent(ref.Column), onDelete), nil
}

// CompilePlan renders the ordered statement list for an additive plan.
// Create statements come first, then deferred foreign keys, then column
// additions, then constraint adjustments.
func CompilePlan(schemaName string, p *Plan) ([]string, error) {
	var stmts []string

	for _, t := range p.CreateTables {
		sql, err := CreateTableSQL(schemaName, t)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, sql)
	}
	for _, t := range p.CreateTables {
		fks, err := foreignKeySQL(schemaName, t)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fks...)
	}

	for _, ac := range p.AddColumns {
		sql, err := AddColumnSQL(schemaName, ac.Table, ac.Column)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, sql)
		if ac.Column.References != nil {
			ref, err := referenceSQL(schemaName, ac.Table, ac.Column)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, ref)
		}
	}

	for _, cc := range p.Constraints {
		sqls, err := constraintSQL(schemaName, cc)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, sqls...)
	}

	return stmts, nil
}

func constraintSQL(schemaName string, cc ConstraintChange) ([]string, error) {
	if err := ValidateIdentifier("schema", schemaName); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("table", cc.Table); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier("column", cc.Column); err != nil {
		return nil, err
	}
	target := fmt.Sprintf("%s.%s", quoteIdent(schemaName), quoteIdent(cc.Table))
	col := quoteIdent(cc.Column)

	var stmts []string
	if cc.SetDefault != "" {
		if err := validateDefault(cc.Table, cc.Column, cc.SetDefault); err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", target, col, cc.SetDefault))
	}
	if cc.DropDefault {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", target, col))
	}
	if cc.SetNotNull {
		// Backfill NULLs from the default before tightening the constraint.
		// The UPDATE runs under any installed row policies, so it only
		// reaches the current deployment's rows; on a table shared by
		// several deployments the ALTER fails (and rolls back) until every
		// deployment has migrated its own NULLs away.
		stmts = append(stmts,
			fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL", target, col, cc.SetDefault, col),
			fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", target, col))
	}
	if cc.DropNotNull {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", target, col))
	}
	if cc.SetUnique || cc.DropUnique {
		// Matches the name PostgreSQL gives inline column UNIQUE constraints
		name := fmt.Sprintf("%s_%s_key", cc.Table, cc.Column)
		if err := ValidateIdentifier("constraint", name); err != nil {
			return nil, err
		}
		if cc.SetUnique {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", target, quoteIdent(name), col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", target, quoteIdent(name)))
		}
	}
	if cc.AddReference != nil {
		ref, err := referenceSQL(schemaName, cc.Table, Column{Name: cc.Column, References: cc.AddReference})
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, ref)
	}
	return stmts, nil
}

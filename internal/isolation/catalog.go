package isolation

import (
	"context"
	"fmt"
	"sort"
)

// catalogInspector reads table shapes from information_schema
type catalogInspector struct {
	adapter Adapter
}

// NewCatalogInspector creates an Inspector backed by the database catalog
func NewCatalogInspector(adapter Adapter) Inspector {
	return &catalogInspector{adapter: adapter}
}

func (c *catalogInspector) ListTables(ctx context.Context, schemaName string) ([]TableShape, error) {
	var rows []struct {
		TableName  string
		ColumnName string
	}
	err := c.adapter.Select(ctx, &rows, `
		SELECT c.table_name, c.column_name
		FROM information_schema.columns c
		JOIN information_schema.tables t
			ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = ? AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tables in schema %q: %w", schemaName, err)
	}

	byTable := make(map[string]*TableShape)
	for _, row := range rows {
		shape, ok := byTable[row.TableName]
		if !ok {
			shape = &TableShape{Schema: schemaName, Name: row.TableName}
			byTable[row.TableName] = shape
		}
		shape.Columns = append(shape.Columns, row.ColumnName)
	}

	tables := make([]TableShape, 0, len(byTable))
	for _, shape := range byTable {
		tables = append(tables, *shape)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

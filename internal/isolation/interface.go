package isolation

import (
	"context"

	"github.com/arcfield/plugindb/internal/database"
	"github.com/arcfield/plugindb/internal/logger"
)

// Adapter is the transactional execution handle, passed explicitly into
// every operation
type Adapter = database.Adapter

// Logger interface for logging operations
type Logger = logger.Logger

// TableShape describes one table found in the catalog
type TableShape struct {
	Schema  string
	Name    string
	Columns []string
}

// HasColumn reports whether the table has the named column
func (t TableShape) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Inspector enumerates existing tables and their columns for a schema.
// Production uses the database catalog; tests use an in-memory fake.
type Inspector interface {
	ListTables(ctx context.Context, schemaName string) ([]TableShape, error)
}

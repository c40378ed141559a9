package schema

// Column describes one declared column of a plugin table
type Column struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	NotNull    bool       `json:"notNull,omitempty"`
	PrimaryKey bool       `json:"primaryKey,omitempty"`
	Unique     bool       `json:"unique,omitempty"`
	Default    string     `json:"default,omitempty"`
	References *Reference `json:"references,omitempty"`
}

// Reference describes a foreign key target
type Reference struct {
	Table    string `json:"table"`
	Column   string `json:"column"`
	OnDelete string `json:"onDelete,omitempty"`
}

// Table describes one declared plugin table
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Definition is the declarative schema a plugin registers on startup.
// Declaration order carries no meaning; the fingerprint and the diff both
// operate on the normalized form.
type Definition struct {
	Tables []Table `json:"tables"`
}

// SnapshotDocument is the complete description of a plugin's schema at one
// point in the journal, stored as the snapshot payload.
type SnapshotDocument struct {
	Tables map[string]TableSnapshot `json:"tables"`
}

// TableSnapshot describes one table inside a snapshot document
type TableSnapshot struct {
	Columns map[string]ColumnSnapshot `json:"columns"`
}

// ColumnSnapshot describes one column inside a snapshot document
type ColumnSnapshot struct {
	Type       string     `json:"type"`
	NotNull    bool       `json:"notNull,omitempty"`
	PrimaryKey bool       `json:"primaryKey,omitempty"`
	Unique     bool       `json:"unique,omitempty"`
	Default    string     `json:"default,omitempty"`
	References *Reference `json:"references,omitempty"`
}

// Snapshot converts a definition into its snapshot document form. The
// definition is normalized first so snapshots compare cleanly across
// declaration orders.
func (d Definition) Snapshot() SnapshotDocument {
	d = d.normalize()
	doc := SnapshotDocument{Tables: make(map[string]TableSnapshot, len(d.Tables))}
	for _, t := range d.Tables {
		ts := TableSnapshot{Columns: make(map[string]ColumnSnapshot, len(t.Columns))}
		for _, c := range t.Columns {
			ts.Columns[c.Name] = ColumnSnapshot{
				Type:       c.Type,
				NotNull:    c.NotNull,
				PrimaryKey: c.PrimaryKey,
				Unique:     c.Unique,
				Default:    c.Default,
				References: c.References,
			}
		}
		doc.Tables[t.Name] = ts
	}
	return doc
}

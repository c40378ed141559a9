package schema

import (
	"fmt"
	"sort"
	"strings"
)

// IncompatibleChangeError reports a declared change that cannot be applied
// additively (type changes, NOT NULL on a populated column without a
// default). The migrator surfaces it instead of issuing destructive DDL.
type IncompatibleChangeError struct {
	Table  string
	Column string
	Reason string
}

func (e *IncompatibleChangeError) Error() string {
	return fmt.Sprintf("incompatible change to %s.%s: %s", e.Table, e.Column, e.Reason)
}

// ColumnChange is one column to add to an existing table
type ColumnChange struct {
	Table  string
	Column Column
}

// ConstraintChange is one constraint adjustment on an existing column.
// Every fingerprint-visible delta between two declarations maps to either
// a change here or an IncompatibleChangeError; nothing falls through.
type ConstraintChange struct {
	Table        string
	Column       string
	SetDefault   string
	DropDefault  bool
	DropNotNull  bool
	SetNotNull   bool
	SetUnique    bool
	DropUnique   bool
	AddReference *Reference
}

// Plan is the additive DDL plan derived from diffing a declaration against
// the last snapshot. Tables and columns that disappeared from the
// declaration are retained, never dropped.
type Plan struct {
	CreateTables []Table
	AddColumns   []ColumnChange
	Constraints  []ConstraintChange
	Retained     []string
}

// Empty reports whether the plan issues no DDL
func (p *Plan) Empty() bool {
	return len(p.CreateTables) == 0 && len(p.AddColumns) == 0 && len(p.Constraints) == 0
}

// Describe renders the journal description of the plan
func (p *Plan) Describe() string {
	var parts []string
	for _, t := range p.CreateTables {
		parts = append(parts, "create table "+t.Name)
	}
	for _, c := range p.AddColumns {
		parts = append(parts, fmt.Sprintf("add column %s.%s", c.Table, c.Column.Name))
	}
	for _, c := range p.Constraints {
		switch {
		case c.SetNotNull:
			parts = append(parts, fmt.Sprintf("set not null %s.%s", c.Table, c.Column))
		case c.DropNotNull:
			parts = append(parts, fmt.Sprintf("drop not null %s.%s", c.Table, c.Column))
		case c.SetUnique:
			parts = append(parts, fmt.Sprintf("add unique %s.%s", c.Table, c.Column))
		case c.DropUnique:
			parts = append(parts, fmt.Sprintf("drop unique %s.%s", c.Table, c.Column))
		case c.AddReference != nil:
			parts = append(parts, fmt.Sprintf("add foreign key %s.%s", c.Table, c.Column))
		case c.DropDefault:
			parts = append(parts, fmt.Sprintf("drop default %s.%s", c.Table, c.Column))
		case c.SetDefault != "":
			parts = append(parts, fmt.Sprintf("set default %s.%s", c.Table, c.Column))
		}
	}
	for _, r := range p.Retained {
		parts = append(parts, "retain "+r)
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, "; ")
}

// Diff derives the additive plan that takes the schema from prev to the
// declared definition. The result is deterministic: every slice is sorted.
func Diff(prev SnapshotDocument, next Definition) (*Plan, error) {
	next = next.normalize()
	plan := &Plan{}

	declared := make(map[string]bool, len(next.Tables))
	for _, t := range next.Tables {
		declared[t.Name] = true
		old, exists := prev.Tables[t.Name]
		if !exists {
			plan.CreateTables = append(plan.CreateTables, t)
			continue
		}
		if err := diffTable(plan, t, old); err != nil {
			return nil, err
		}
	}

	// Tables removed from the declaration are kept with their data.
	for name := range prev.Tables {
		if !declared[name] {
			plan.Retained = append(plan.Retained, name)
		}
	}
	sort.Strings(plan.Retained)

	return plan, nil
}

func diffTable(plan *Plan, t Table, old TableSnapshot) error {
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		seen[c.Name] = true
		prev, exists := old.Columns[c.Name]
		if !exists {
			if c.NotNull && c.Default == "" {
				return &IncompatibleChangeError{
					Table:  t.Name,
					Column: c.Name,
					Reason: "new NOT NULL column requires a default for existing rows",
				}
			}
			plan.AddColumns = append(plan.AddColumns, ColumnChange{Table: t.Name, Column: c})
			continue
		}
		if prev.Type != c.Type {
			return &IncompatibleChangeError{
				Table:  t.Name,
				Column: c.Name,
				Reason: fmt.Sprintf("type change %s -> %s is not additive", prev.Type, c.Type),
			}
		}
		if prev.PrimaryKey != c.PrimaryKey {
			return &IncompatibleChangeError{
				Table:  t.Name,
				Column: c.Name,
				Reason: "primary key membership cannot change",
			}
		}
		if !referenceEqual(prev.References, c.References) {
			if prev.References != nil {
				return &IncompatibleChangeError{
					Table:  t.Name,
					Column: c.Name,
					Reason: "foreign key target cannot change or be removed",
				}
			}
			plan.Constraints = append(plan.Constraints, ConstraintChange{
				Table: t.Name, Column: c.Name, AddReference: c.References,
			})
		}
		if c.Unique != prev.Unique {
			plan.Constraints = append(plan.Constraints, ConstraintChange{
				Table: t.Name, Column: c.Name, SetUnique: c.Unique, DropUnique: !c.Unique,
			})
		}

		defaultCovered := false
		if c.NotNull && !prev.NotNull {
			if c.Default == "" {
				return &IncompatibleChangeError{
					Table:  t.Name,
					Column: c.Name,
					Reason: "adding NOT NULL requires a default for existing rows",
				}
			}
			plan.Constraints = append(plan.Constraints, ConstraintChange{
				Table: t.Name, Column: c.Name, SetDefault: c.Default, SetNotNull: true,
			})
			defaultCovered = true
		}
		if !c.NotNull && prev.NotNull {
			plan.Constraints = append(plan.Constraints, ConstraintChange{
				Table: t.Name, Column: c.Name, DropNotNull: true,
			})
		}
		if !defaultCovered && c.Default != prev.Default {
			if c.Default == "" {
				plan.Constraints = append(plan.Constraints, ConstraintChange{
					Table: t.Name, Column: c.Name, DropDefault: true,
				})
			} else {
				plan.Constraints = append(plan.Constraints, ConstraintChange{
					Table: t.Name, Column: c.Name, SetDefault: c.Default,
				})
			}
		}
	}

	// Columns removed from the declaration are data-bearing; keep them.
	for name := range old.Columns {
		if !seen[name] {
			plan.Retained = append(plan.Retained, t.Name+"."+name)
		}
	}
	return nil
}

func referenceEqual(a, b *Reference) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Fingerprint computes a deterministic digest of the declared schema shape.
// Two definitions that differ only in declaration order or identifier case
// produce the same fingerprint.
func (d Definition) Fingerprint() string {
	normalized := d.normalize()
	// Marshaling a struct with sorted slices is deterministic
	payload, err := json.Marshal(normalized)
	if err != nil {
		// Definition contains only marshalable types
		panic(err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// normalize returns a canonical copy: lowercased identifiers, tables and
// columns sorted by name.
func (d Definition) normalize() Definition {
	out := Definition{Tables: make([]Table, 0, len(d.Tables))}
	for _, t := range d.Tables {
		nt := Table{
			Name:    strings.ToLower(t.Name),
			Columns: make([]Column, 0, len(t.Columns)),
		}
		for _, c := range t.Columns {
			nc := c
			nc.Name = strings.ToLower(c.Name)
			nc.Type = strings.ToLower(c.Type)
			if c.References != nil {
				ref := *c.References
				ref.Table = strings.ToLower(ref.Table)
				ref.Column = strings.ToLower(ref.Column)
				ref.OnDelete = strings.ToLower(ref.OnDelete)
				nc.References = &ref
			}
			nt.Columns = append(nt.Columns, nc)
		}
		sort.Slice(nt.Columns, func(i, j int) bool {
			return nt.Columns[i].Name < nt.Columns[j].Name
		})
		out.Tables = append(out.Tables, nt)
	}
	sort.Slice(out.Tables, func(i, j int) bool {
		return out.Tables[i].Name < out.Tables[j].Name
	})
	return out
}

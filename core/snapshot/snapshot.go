// Package snapshot defines the canonical, source-agnostic in-memory
// representation of a relational schema.
//
// A SchemaSnapshot is produced either from a resolved entity model
// (core/convert/frommodel) or from a live database catalog (dbschema); both
// producers run every identifier, type and default through core/normalize,
// so two snapshots of an equivalent schema compare equal regardless of how
// each source phrased it. Tables and columns are unordered by design:
// equality and hashing sort by key before comparing.
package snapshot

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

// IdentityGeneration is the generation mode of an identity column.
type IdentityGeneration string

const (
	IdentityAlways    IdentityGeneration = "ALWAYS"
	IdentityByDefault IdentityGeneration = "BY DEFAULT"
)

// SchemaSnapshot is a set of tables keyed by (schema, name).
type SchemaSnapshot struct {
	Tables []TableSnapshot
}

// TableSnapshot describes one table and its columns. Columns are keyed by
// name; no two columns in a table share one.
type TableSnapshot struct {
	Schema  string
	Name    string
	Columns []ColumnSnapshot
}

// ColumnSnapshot is a flat, denormalized view of one column. Constraint
// membership is projected onto the column it constrains rather than modeled
// as first-class constraint entities, which keeps diffing column-local.
// Multi-column constraints therefore appear once per participating column.
type ColumnSnapshot struct {
	Name string

	// DataType is the normalized base type (normalize.DataType); NativeType
	// keeps the provider-native spelling for diagnostics.
	DataType   string
	NativeType string

	Length            int
	Precision         int
	Scale             int
	DateTimePrecision int

	Nullable bool

	// Default is the normalized default expression; empty means none.
	Default string

	Identity           bool
	IdentityGeneration IdentityGeneration

	Generated      bool
	GenerationExpr string

	PrimaryKey     bool
	PrimaryKeyName string

	Unique     bool
	UniqueName string

	ForeignKey     bool
	ForeignKeyName string
	RefSchema      string
	RefTable       string
	RefColumn      string
	OnUpdate       string
	OnDelete       string
}

// Key returns the (schema, name) identity of a table.
func (t *TableSnapshot) Key() string {
	return t.Schema + "." + t.Name
}

// Column returns the column with the given name, or nil.
func (t *TableSnapshot) Column(name string) *ColumnSnapshot {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Table returns the table with the given schema and name, or nil.
func (s *SchemaSnapshot) Table(schema, name string) *TableSnapshot {
	for i := range s.Tables {
		if s.Tables[i].Schema == schema && s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// AddTable appends a table, returning an error on a duplicate (schema, name)
// pair.
func (s *SchemaSnapshot) AddTable(t TableSnapshot) error {
	if s.Table(t.Schema, t.Name) != nil {
		return fmt.Errorf("duplicate table %s", t.Key())
	}
	s.Tables = append(s.Tables, t)
	return nil
}

// Equal reports whether two snapshots describe the same schema. Table and
// column order is irrelevant: both sides are sorted by key before the
// field-by-field comparison.
func (s *SchemaSnapshot) Equal(other *SchemaSnapshot) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.canonicalString() == other.canonicalString()
}

// Hash returns an order-independent hash consistent with Equal.
func (s *SchemaSnapshot) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.canonicalString()))
	return h.Sum64()
}

// canonicalString serializes the snapshot with tables sorted by key and
// columns sorted by name. Equality and hashing both reduce to this string,
// which keeps them trivially consistent with each other.
//
// NativeType and constraint names are excluded: the catalog assigns its own
// constraint names, so two equivalent schemas may spell them differently.
func (s *SchemaSnapshot) canonicalString() string {
	tables := make([]TableSnapshot, len(s.Tables))
	copy(tables, s.Tables)
	sort.Slice(tables, func(i, j int) bool { return tables[i].Key() < tables[j].Key() })

	var b strings.Builder
	for _, t := range tables {
		cols := make([]ColumnSnapshot, len(t.Columns))
		copy(cols, t.Columns)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })

		fmt.Fprintf(&b, "table %s\n", t.Key())
		for _, c := range cols {
			fmt.Fprintf(&b, "  column %s type=%s(%d,%d,%d,%d) null=%t default=%q"+
				" identity=%t/%s generated=%t/%q pk=%t unique=%t"+
				" fk=%t->%s.%s(%s)/%s/%s\n",
				c.Name, c.DataType, c.Length, c.Precision, c.Scale, c.DateTimePrecision,
				c.Nullable, c.Default,
				c.Identity, c.IdentityGeneration, c.Generated, c.GenerationExpr,
				c.PrimaryKey, c.Unique,
				c.ForeignKey, c.RefSchema, c.RefTable, c.RefColumn,
				c.OnUpdate, c.OnDelete)
		}
	}
	return b.String()
}

// TypeEqual reports whether two columns have the same normalized type,
// including length, precision, scale and datetime precision.
func (c *ColumnSnapshot) TypeEqual(other *ColumnSnapshot) bool {
	return c.DataType == other.DataType &&
		c.Length == other.Length &&
		c.Precision == other.Precision &&
		c.Scale == other.Scale &&
		c.DateTimePrecision == other.DateTimePrecision
}

// ForeignKeyEqual reports whether two columns reference the same target
// with the same referential actions.
func (c *ColumnSnapshot) ForeignKeyEqual(other *ColumnSnapshot) bool {
	if c.ForeignKey != other.ForeignKey {
		return false
	}
	if !c.ForeignKey {
		return true
	}
	return c.RefSchema == other.RefSchema &&
		c.RefTable == other.RefTable &&
		c.RefColumn == other.RefColumn &&
		c.OnUpdate == other.OnUpdate &&
		c.OnDelete == other.OnDelete
}

// Package builder is the fluent authoring surface for hand-written
// migrations.
//
// A MigrationBuilder accumulates the same operation values the schema differ
// emits, so hand-authored and diff-generated migrations flow through one
// compiler (core/sqlgen). Identifiers and type spellings are normalized on
// entry; authors may write "VARCHAR(100)" and get the canonical form.
package builder

import (
	"fmt"

	"github.com/apolondb/apolon/core/normalize"
	"github.com/apolondb/apolon/core/operation"
	"github.com/apolondb/apolon/core/sqlgen"
)

// MigrationBuilder records schema change operations in call order. The
// zero value is not usable; construct with New.
type MigrationBuilder struct {
	ops []operation.MigrationOperation
}

// New returns an empty migration builder.
func New() *MigrationBuilder {
	return &MigrationBuilder{}
}

// Operations returns the recorded operations in the order they were built.
func (m *MigrationBuilder) Operations() []operation.MigrationOperation {
	return m.ops
}

// CreateSchema records a schema create.
func (m *MigrationBuilder) CreateSchema(name string) *MigrationBuilder {
	m.ops = append(m.ops, operation.MigrationOperation{
		Type:   operation.CreateSchema,
		Schema: normalize.Identifier(name),
	})
	return m
}

// CreateTable records a bare table create and returns a table builder for
// adding its columns.
func (m *MigrationBuilder) CreateTable(schema, table string) *CreateTableBuilder {
	t := &CreateTableBuilder{
		m:      m,
		schema: normalize.Identifier(schema),
		table:  normalize.Identifier(table),
	}
	m.ops = append(m.ops, operation.MigrationOperation{
		Type:   operation.CreateTable,
		Schema: t.schema,
		Table:  t.table,
	})
	return t
}

// DropTable records a table drop.
func (m *MigrationBuilder) DropTable(schema, table string) *MigrationBuilder {
	m.ops = append(m.ops, operation.MigrationOperation{
		Type:   operation.DropTable,
		Schema: normalize.Identifier(schema),
		Table:  normalize.Identifier(table),
	})
	return m
}

// Table returns a table builder for an existing table, for column and
// constraint changes outside a create.
func (m *MigrationBuilder) Table(schema, table string) *CreateTableBuilder {
	return &CreateTableBuilder{
		m:      m,
		schema: normalize.Identifier(schema),
		table:  normalize.Identifier(table),
	}
}

// CreateTableBuilder scopes column and constraint operations to one table.
type CreateTableBuilder struct {
	m      *MigrationBuilder
	schema string
	table  string
}

// Column records a column add and returns a column builder for refining it.
// The type spelling is decomposed and normalized; columns are nullable
// unless NotNull or PrimaryKey is called.
func (t *CreateTableBuilder) Column(name, dbType string) *ColumnBuilder {
	details := normalize.ExtractTypeDetails(dbType)
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:              operation.AddColumn,
		Schema:            t.schema,
		Table:             t.table,
		Column:            normalize.Identifier(name),
		DataType:          normalize.DataType(dbType),
		Length:            details.Length,
		Precision:         details.Precision,
		Scale:             details.Scale,
		DateTimePrecision: details.DateTimePrecision,
		Nullable:          true,
	})
	return &ColumnBuilder{t: t, idx: len(t.m.ops) - 1}
}

// DropColumn records a column drop.
func (t *CreateTableBuilder) DropColumn(name string) *CreateTableBuilder {
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:   operation.DropColumn,
		Schema: t.schema,
		Table:  t.table,
		Column: normalize.Identifier(name),
	})
	return t
}

// AlterColumnType records a column type change to the given spelling.
func (t *CreateTableBuilder) AlterColumnType(name, dbType string) *CreateTableBuilder {
	details := normalize.ExtractTypeDetails(dbType)
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:              operation.AlterColumnType,
		Schema:            t.schema,
		Table:             t.table,
		Column:            normalize.Identifier(name),
		DataType:          normalize.DataType(dbType),
		Length:            details.Length,
		Precision:         details.Precision,
		Scale:             details.Scale,
		DateTimePrecision: details.DateTimePrecision,
	})
	return t
}

// SetNotNull records an alteration making the column NOT NULL.
func (t *CreateTableBuilder) SetNotNull(name string) *CreateTableBuilder {
	return t.nullability(name, false)
}

// DropNotNull records an alteration making the column nullable.
func (t *CreateTableBuilder) DropNotNull(name string) *CreateTableBuilder {
	return t.nullability(name, true)
}

func (t *CreateTableBuilder) nullability(name string, nullable bool) *CreateTableBuilder {
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:     operation.AlterNullability,
		Schema:   t.schema,
		Table:    t.table,
		Column:   normalize.Identifier(name),
		Nullable: nullable,
	})
	return t
}

// SetDefault records a default change. The value is normalized and quoted
// the same way diff-generated defaults are.
func (t *CreateTableBuilder) SetDefault(name, value string) *CreateTableBuilder {
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:       operation.SetDefault,
		Schema:     t.schema,
		Table:      t.table,
		Column:     normalize.Identifier(name),
		DefaultSQL: sqlgen.DefaultExprSQL(normalize.Default(value)),
	})
	return t
}

// DropDefault records a default removal.
func (t *CreateTableBuilder) DropDefault(name string) *CreateTableBuilder {
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:   operation.DropDefault,
		Schema: t.schema,
		Table:  t.table,
		Column: normalize.Identifier(name),
	})
	return t
}

// AddUnique records a single-column unique constraint with the
// conventional uq_ name.
func (t *CreateTableBuilder) AddUnique(column string) *CreateTableBuilder {
	column = normalize.Identifier(column)
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:       operation.AddUnique,
		Schema:     t.schema,
		Table:      t.table,
		Column:     column,
		Constraint: fmt.Sprintf("uq_%s_%s", t.table, column),
	})
	return t
}

// DropConstraint records a constraint drop by name.
func (t *CreateTableBuilder) DropConstraint(name string) *CreateTableBuilder {
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:       operation.DropConstraint,
		Schema:     t.schema,
		Table:      t.table,
		Constraint: normalize.Identifier(name),
	})
	return t
}

// AddForeignKey records a single-column foreign key with the conventional
// fk_ name. onDelete may be empty for NO ACTION.
func (t *CreateTableBuilder) AddForeignKey(column, refSchema, refTable, refColumn, onDelete string) *CreateTableBuilder {
	column = normalize.Identifier(column)
	t.m.ops = append(t.m.ops, operation.MigrationOperation{
		Type:       operation.AddForeignKey,
		Schema:     t.schema,
		Table:      t.table,
		Column:     column,
		Constraint: fmt.Sprintf("fk_%s_%s", t.table, column),
		RefSchema:  normalize.Identifier(refSchema),
		RefTable:   normalize.Identifier(refTable),
		RefColumn:  normalize.Identifier(refColumn),
		OnDelete:   onDelete,
	})
	return t
}

// ColumnBuilder refines the most recently added column. Its methods mutate
// the recorded operation in place and chain.
type ColumnBuilder struct {
	t   *CreateTableBuilder
	idx int
}

func (c *ColumnBuilder) op() *operation.MigrationOperation {
	return &c.t.m.ops[c.idx]
}

// NotNull marks the column NOT NULL.
func (c *ColumnBuilder) NotNull() *ColumnBuilder {
	c.op().Nullable = false
	return c
}

// Default sets the column default. The value is normalized and quoted the
// same way diff-generated defaults are; pass expressions verbatim ("now()").
func (c *ColumnBuilder) Default(value string) *ColumnBuilder {
	c.op().DefaultSQL = sqlgen.DefaultExprSQL(normalize.Default(value))
	return c
}

// PrimaryKey marks the column as the table's primary key; primary keys are
// implicitly NOT NULL.
func (c *ColumnBuilder) PrimaryKey() *ColumnBuilder {
	op := c.op()
	op.PrimaryKey = true
	op.Nullable = false
	return c
}

// Identity makes the column GENERATED BY DEFAULT AS IDENTITY.
func (c *ColumnBuilder) Identity() *ColumnBuilder {
	c.op().Identity = true
	return c
}

// IdentityAlways makes the column GENERATED ALWAYS AS IDENTITY.
func (c *ColumnBuilder) IdentityAlways() *ColumnBuilder {
	op := c.op()
	op.Identity = true
	op.IdentityAlways = true
	return c
}

// Unique appends a unique constraint for this column.
func (c *ColumnBuilder) Unique() *ColumnBuilder {
	c.t.AddUnique(c.op().Column)
	return c
}

// References appends a foreign key from this column. onDelete may be empty
// for NO ACTION.
func (c *ColumnBuilder) References(refSchema, refTable, refColumn, onDelete string) *ColumnBuilder {
	c.t.AddForeignKey(c.op().Column, refSchema, refTable, refColumn, onDelete)
	return c
}

// Column adds another column to the same table.
func (c *ColumnBuilder) Column(name, dbType string) *ColumnBuilder {
	return c.t.Column(name, dbType)
}

// Table returns the enclosing table builder.
func (c *ColumnBuilder) Table() *CreateTableBuilder {
	return c.t
}

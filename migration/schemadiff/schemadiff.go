// Package schemadiff computes the ordered operation list that transforms an
// actual schema snapshot into an expected one.
//
// The comparison is column-local: constraints are projected onto the columns
// they constrain (see core/snapshot), so the differ never reasons about
// multi-column constraint entities. Operations come out in a dependency-safe
// order: schema creates, table creates, column adds and alterations,
// constraint adds, then destructive operations in reverse dependency order
// (constraint drops before column drops before table drops).
//
// Diff is a congruence with respect to snapshot equality: two structurally
// equal snapshots always produce an empty operation list.
package schemadiff

import (
	"sort"

	"github.com/apolondb/apolon/core/operation"
	"github.com/apolondb/apolon/core/snapshot"
	"github.com/apolondb/apolon/core/sqlgen"
)

// buckets collects operations per ordering phase; Diff concatenates the
// phases at the end. Later operations may depend on earlier ones (a column
// must exist before a foreign key references it), never the reverse.
type buckets struct {
	createSchemas   map[string]bool
	createTables    []operation.MigrationOperation
	addColumns      []operation.MigrationOperation
	alterColumns    []operation.MigrationOperation
	addConstraints  []operation.MigrationOperation
	dropConstraints []operation.MigrationOperation
	dropColumns     []operation.MigrationOperation
	dropTables      []operation.MigrationOperation
}

// Diff compares the expected (desired) snapshot against the actual (live)
// snapshot and returns the operations needed to reconcile them.
func Diff(expected, actual *snapshot.SchemaSnapshot) []operation.MigrationOperation {
	b := &buckets{createSchemas: make(map[string]bool)}

	for i := range expected.Tables {
		expTable := &expected.Tables[i]
		actTable := actual.Table(expTable.Schema, expTable.Name)
		if actTable == nil {
			b.createTable(expTable)
			continue
		}
		b.diffTable(expTable, actTable)
	}

	for i := range actual.Tables {
		actTable := &actual.Tables[i]
		if expected.Table(actTable.Schema, actTable.Name) == nil {
			b.dropTables = append(b.dropTables, operation.MigrationOperation{
				Type:   operation.DropTable,
				Schema: actTable.Schema,
				Table:  actTable.Name,
			})
		}
	}

	return b.ordered()
}

// ordered flattens the phase buckets into the final operation sequence.
func (b *buckets) ordered() []operation.MigrationOperation {
	schemas := make([]string, 0, len(b.createSchemas))
	for s := range b.createSchemas {
		schemas = append(schemas, s)
	}
	sort.Strings(schemas)

	var ops []operation.MigrationOperation
	for _, s := range schemas {
		ops = append(ops, operation.MigrationOperation{Type: operation.CreateSchema, Schema: s})
	}
	ops = append(ops, b.createTables...)
	ops = append(ops, b.addColumns...)
	ops = append(ops, b.alterColumns...)
	ops = append(ops, b.addConstraints...)
	ops = append(ops, b.dropConstraints...)
	ops = append(ops, b.dropColumns...)
	ops = append(ops, b.dropTables...)
	return ops
}

// createTable emits the schema create, the bare table create, one column
// add per column in declared order, and the table's constraint adds.
func (b *buckets) createTable(t *snapshot.TableSnapshot) {
	b.createSchemas[t.Schema] = true
	b.createTables = append(b.createTables, operation.MigrationOperation{
		Type:   operation.CreateTable,
		Schema: t.Schema,
		Table:  t.Name,
	})
	for i := range t.Columns {
		b.addColumn(t, &t.Columns[i])
	}
}

// addColumn emits the column add plus any unique or foreign key constraint
// the column carries; constraint adds land in a later phase so every
// referenced column exists first.
func (b *buckets) addColumn(t *snapshot.TableSnapshot, c *snapshot.ColumnSnapshot) {
	b.addColumns = append(b.addColumns, columnOp(operation.AddColumn, t, c))
	if c.Unique {
		b.addConstraints = append(b.addConstraints, uniqueOp(t, c))
	}
	if c.ForeignKey {
		b.addConstraints = append(b.addConstraints, foreignKeyOp(t, c))
	}
}

// diffTable diffs the columns of a table present in both snapshots.
func (b *buckets) diffTable(exp, act *snapshot.TableSnapshot) {
	for i := range exp.Columns {
		expCol := &exp.Columns[i]
		actCol := act.Column(expCol.Name)
		if actCol == nil {
			b.addColumn(exp, expCol)
			continue
		}
		b.diffColumn(exp, expCol, actCol)
	}
	for i := range act.Columns {
		actCol := &act.Columns[i]
		if exp.Column(actCol.Name) == nil {
			b.dropColumns = append(b.dropColumns, operation.MigrationOperation{
				Type:   operation.DropColumn,
				Schema: exp.Schema,
				Table:  exp.Name,
				Column: actCol.Name,
			})
		}
	}
}

// diffColumn compares a column present on both sides, property by property.
func (b *buckets) diffColumn(t *snapshot.TableSnapshot, exp, act *snapshot.ColumnSnapshot) {
	if !exp.TypeEqual(act) {
		b.alterColumns = append(b.alterColumns, columnOp(operation.AlterColumnType, t, exp))
	}

	if exp.Nullable != act.Nullable {
		op := columnOp(operation.AlterNullability, t, exp)
		op.Nullable = exp.Nullable
		b.alterColumns = append(b.alterColumns, op)
	}

	// Identity columns carry sequence defaults the model never declares;
	// default differences on them are noise.
	if !exp.Identity && !act.Identity {
		switch {
		case exp.Default != "" && exp.Default != act.Default:
			op := columnOp(operation.SetDefault, t, exp)
			op.DefaultSQL = sqlgen.DefaultExprSQL(exp.Default)
			b.alterColumns = append(b.alterColumns, op)
		case exp.Default == "" && act.Default != "":
			b.alterColumns = append(b.alterColumns, columnOp(operation.DropDefault, t, exp))
		}
	}

	if exp.Unique && !act.Unique {
		b.addConstraints = append(b.addConstraints, uniqueOp(t, exp))
	}
	if !exp.Unique && act.Unique {
		b.dropConstraints = append(b.dropConstraints, dropConstraintOp(t, act.UniqueName))
	}

	if !exp.ForeignKeyEqual(act) {
		if act.ForeignKey {
			b.dropConstraints = append(b.dropConstraints, dropConstraintOp(t, act.ForeignKeyName))
		}
		if exp.ForeignKey {
			b.addConstraints = append(b.addConstraints, foreignKeyOp(t, exp))
		}
	}
}

func columnOp(kind operation.OpType, t *snapshot.TableSnapshot, c *snapshot.ColumnSnapshot) operation.MigrationOperation {
	op := operation.MigrationOperation{
		Type:              kind,
		Schema:            t.Schema,
		Table:             t.Name,
		Column:            c.Name,
		DataType:          c.DataType,
		Length:            c.Length,
		Precision:         c.Precision,
		Scale:             c.Scale,
		DateTimePrecision: c.DateTimePrecision,
		Nullable:          c.Nullable,
	}
	if kind == operation.AddColumn {
		op.PrimaryKey = c.PrimaryKey
		op.Identity = c.Identity
		op.IdentityAlways = c.IdentityGeneration == snapshot.IdentityAlways
		if c.Default != "" && !c.Identity {
			op.DefaultSQL = sqlgen.DefaultExprSQL(c.Default)
		}
	}
	return op
}

func uniqueOp(t *snapshot.TableSnapshot, c *snapshot.ColumnSnapshot) operation.MigrationOperation {
	return operation.MigrationOperation{
		Type:       operation.AddUnique,
		Schema:     t.Schema,
		Table:      t.Name,
		Column:     c.Name,
		Constraint: c.UniqueName,
	}
}

func foreignKeyOp(t *snapshot.TableSnapshot, c *snapshot.ColumnSnapshot) operation.MigrationOperation {
	return operation.MigrationOperation{
		Type:       operation.AddForeignKey,
		Schema:     t.Schema,
		Table:      t.Name,
		Column:     c.Name,
		Constraint: c.ForeignKeyName,
		RefSchema:  c.RefSchema,
		RefTable:   c.RefTable,
		RefColumn:  c.RefColumn,
		OnDelete:   c.OnDelete,
	}
}

func dropConstraintOp(t *snapshot.TableSnapshot, name string) operation.MigrationOperation {
	return operation.MigrationOperation{
		Type:       operation.DropConstraint,
		Schema:     t.Schema,
		Table:      t.Name,
		Constraint: name,
	}
}

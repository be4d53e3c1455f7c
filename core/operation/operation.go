// Package operation defines the closed set of schema change operations the
// differ emits and the SQL compiler consumes.
//
// A MigrationOperation is a tagged record: Type selects the kind and only
// the fields relevant to that kind are populated. Hand-authored migrations
// (migration/builder) and diff-generated migrations (migration/schemadiff)
// both produce these values, so a single compiler (core/sqlgen) serves both.
package operation

import (
	"fmt"
	"strings"
)

// OpType enumerates the supported schema change kinds.
type OpType string

const (
	CreateSchema     OpType = "create_schema"
	CreateTable      OpType = "create_table"
	DropTable        OpType = "drop_table"
	AddColumn        OpType = "add_column"
	DropColumn       OpType = "drop_column"
	AlterColumnType  OpType = "alter_column_type"
	AlterNullability OpType = "alter_nullability"
	SetDefault       OpType = "set_default"
	DropDefault      OpType = "drop_default"
	AddUnique        OpType = "add_unique"
	DropConstraint   OpType = "drop_constraint"
	AddForeignKey    OpType = "add_foreign_key"
)

// MigrationOperation is one atomic, typed schema change. Schema and Table
// are always set (for CreateSchema only Schema is meaningful); the rest of
// the fields are populated per Type.
type MigrationOperation struct {
	Type   OpType
	Schema string
	Table  string

	// Column operations.
	Column            string
	DataType          string // normalized base type, e.g. "varchar"
	Length            int
	Precision         int
	Scale             int
	DateTimePrecision int
	Nullable          bool
	DefaultSQL        string // render-ready default expression
	PrimaryKey        bool
	Identity          bool
	IdentityAlways    bool

	// Constraint operations.
	Constraint string
	RefSchema  string
	RefTable   string
	RefColumn  string
	OnDelete   string
}

// TypeSQL renders the composite SQL type string for a column operation,
// combining the base type with its length, precision, scale or datetime
// precision. It is shared between the DDL compiler and human-readable
// summaries so both show the same spelling.
func (op *MigrationOperation) TypeSQL() string {
	return ComposeType(op.DataType, op.Length, op.Precision, op.Scale, op.DateTimePrecision)
}

// ComposeType builds a SQL type string from a normalized base type and its
// size parameters. Integer and float precisions are implied by the base
// type and never rendered.
func ComposeType(base string, length, precision, scale, dtPrecision int) string {
	switch base {
	case "varchar", "char", "bit", "varbit":
		if length > 0 {
			return fmt.Sprintf("%s(%d)", base, length)
		}
	case "numeric":
		if precision > 0 {
			return fmt.Sprintf("%s(%d,%d)", base, precision, scale)
		}
	case "timestamp", "timestamptz", "time", "timetz":
		// Precision 6 is the PostgreSQL default and is left implicit.
		if dtPrecision > 0 && dtPrecision != 6 {
			return fmt.Sprintf("%s(%d)", base, dtPrecision)
		}
	}
	return base
}

// Target returns the qualified object the operation applies to.
func (op *MigrationOperation) Target() string {
	switch op.Type {
	case CreateSchema:
		return op.Schema
	case CreateTable, DropTable:
		return op.Schema + "." + op.Table
	case AddUnique, DropConstraint, AddForeignKey:
		return op.Schema + "." + op.Table + "." + op.Constraint
	default:
		return op.Schema + "." + op.Table + "." + op.Column
	}
}

// String renders a one-line human-readable description of the operation.
func (op *MigrationOperation) String() string {
	switch op.Type {
	case AddColumn, AlterColumnType:
		return fmt.Sprintf("%s %s %s", op.Type, op.Target(), op.TypeSQL())
	case AlterNullability:
		if op.Nullable {
			return fmt.Sprintf("%s %s null", op.Type, op.Target())
		}
		return fmt.Sprintf("%s %s not null", op.Type, op.Target())
	case SetDefault:
		return fmt.Sprintf("%s %s %s", op.Type, op.Target(), op.DefaultSQL)
	case AddForeignKey:
		return fmt.Sprintf("%s %s -> %s.%s(%s)", op.Type, op.Target(), op.RefSchema, op.RefTable, op.RefColumn)
	default:
		return fmt.Sprintf("%s %s", op.Type, op.Target())
	}
}

// Summary renders an operation list as a numbered plan, one line per
// operation. Used by the CLI for dry runs.
func Summary(ops []MigrationOperation) string {
	if len(ops) == 0 {
		return "no changes"
	}
	var b strings.Builder
	for i := range ops {
		fmt.Fprintf(&b, "%3d. %s\n", i+1, ops[i].String())
	}
	return b.String()
}
